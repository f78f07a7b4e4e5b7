package model

import "time"

// BackupPlan is a configured source→destination backup job. The transport
// fields are resolved from the linked agent at creation time and may be
// overridden per plan; the engine only ever reads them.
type BackupPlan struct {
	ID          string    `json:"id"`
	AgentID     *string   `json:"agent_id,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Schedule    string    `json:"schedule"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Active      bool      `json:"active"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	SSHUser     string    `json:"ssh_user"`
	PrivateKey  string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasTransport reports whether the plan carries everything needed to reach
// the agent. Execute and Simulate fail fast when it doesn't.
func (p *BackupPlan) HasTransport() bool {
	return p.Host != "" && p.SSHUser != "" && p.PrivateKey != ""
}
