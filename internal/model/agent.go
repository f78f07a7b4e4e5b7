package model

import "time"

// Agent is a remote machine that holds backup sources. The controller
// connects to it over SSH using the stored key pair.
type Agent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	SSHUser     string    `json:"ssh_user"`
	PublicKey   string    `json:"public_key"`
	PrivateKey  string    `json:"-"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
