package remote

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/edvin/backhaul/internal/model"
)

// Entry is one item of a remote directory listing.
type Entry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
}

// Browser lists directories on agents over SSH, using the same key material
// the transfer engine uses. Operators pick backup sources with it.
type Browser struct {
	dialTimeout time.Duration
}

func NewBrowser() *Browser {
	return &Browser{dialTimeout: 10 * time.Second}
}

// List returns the entries of dir on the agent's host. The path is quoted
// before it reaches the remote shell, so spaces and metacharacters in
// directory names are safe.
func (b *Browser) List(ctx context.Context, agent *model.Agent, dir string) ([]Entry, error) {
	if dir == "" {
		dir = "/"
	}

	signer, err := ssh.ParsePrivateKey([]byte(agent.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse agent key: %w", err)
	}

	port := agent.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(agent.Host, strconv.Itoa(port))

	dialer := net.Dialer{Timeout: b.dialTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, &ssh.ClientConfig{
		User:            agent.SSHUser,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         b.dialTimeout,
	})
	if err != nil {
		tcpConn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	out, err := session.Output("ls -1Ap -- " + shellQuote(dir))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	return parseListing(string(out)), nil
}

func parseListing(out string) []Entry {
	entries := []Entry{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, "/") {
			entries = append(entries, Entry{Name: strings.TrimSuffix(line, "/"), IsDir: true})
			continue
		}
		entries = append(entries, Entry{Name: line})
	}
	return entries
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
