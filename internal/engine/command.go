package engine

import (
	"fmt"
	"os"
	"strings"

	"github.com/edvin/backhaul/internal/model"
)

// Options configures how transfer commands are built.
type Options struct {
	RsyncPath string
	SSHPath   string
	// KeyDir is where ephemeral identity files are created. Empty means
	// the system temp directory.
	KeyDir string
}

func (o Options) withDefaults() Options {
	if o.RsyncPath == "" {
		o.RsyncPath = "rsync"
	}
	if o.SSHPath == "" {
		o.SSHPath = "ssh"
	}
	return o
}

// TransferCommand is a fully built rsync invocation for one plan, including
// the materialized SSH identity file. Callers must Close it on every path
// so the key file never outlives the invocation.
type TransferCommand struct {
	Path    string
	Args    []string
	keyPath string
}

// NewTransferCommand builds the rsync-over-SSH command for a plan. The
// plan's private key is written to a 0600 temp file referenced by the ssh
// transport; dryRun adds --dry-run so the destination is never mutated.
func NewTransferCommand(plan *model.BackupPlan, opts Options, dryRun bool) (*TransferCommand, error) {
	opts = opts.withDefaults()

	keyPath, err := writeKeyFile(opts.KeyDir, plan.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("materialize SSH key: %w", err)
	}

	port := plan.Port
	if port == 0 {
		port = 22
	}

	transport := fmt.Sprintf(
		"%s -i %s -p %d -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null -o BatchMode=yes",
		opts.SSHPath, keyPath, port,
	)

	// --itemize-changes twice so rsync also reports unchanged files, which
	// the parser records as identical.
	args := []string{"-a", "--itemize-changes", "--itemize-changes", "--delete", "--stats", "--out-format=%i|%n|%l"}
	if dryRun {
		args = append(args, "--dry-run")
	}
	args = append(args, "-e", transport)

	// Trailing slash on the source syncs its contents, not the directory.
	source := fmt.Sprintf("%s@%s:%s/", plan.SSHUser, plan.Host, strings.TrimRight(plan.Source, "/"))
	args = append(args, source, plan.Destination)

	return &TransferCommand{Path: opts.RsyncPath, Args: args, keyPath: keyPath}, nil
}

// String renders the command line recorded in the rsync-command sentinel.
func (c *TransferCommand) String() string {
	return c.Path + " " + strings.Join(c.Args, " ")
}

// Close removes the identity file. Safe to call more than once.
func (c *TransferCommand) Close() error {
	if c.keyPath == "" {
		return nil
	}
	err := os.Remove(c.keyPath)
	c.keyPath = ""
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove SSH key file: %w", err)
	}
	return nil
}

// writeKeyFile writes key material to a permission-restricted temp file.
func writeKeyFile(dir, material string) (string, error) {
	f, err := os.CreateTemp(dir, "backhaul-key-*")
	if err != nil {
		return "", err
	}
	path := f.Name()

	if err := f.Chmod(0o600); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	// ssh requires a trailing newline on PEM keys.
	if !strings.HasSuffix(material, "\n") {
		material += "\n"
	}
	if _, err := f.WriteString(material); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
