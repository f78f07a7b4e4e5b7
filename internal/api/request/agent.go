package request

// CreateAgent registers a machine backups are pulled from.
type CreateAgent struct {
	Name    string `json:"name" validate:"required,slug"`
	Host    string `json:"host" validate:"required,hostname|ip"`
	Port    int    `json:"port" validate:"omitempty,min=1,max=65535"`
	SSHUser string `json:"ssh_user" validate:"required"`
}

// UpdateAgent changes an agent's connection details. Key material is
// managed through the key rotation endpoint, never through updates.
type UpdateAgent struct {
	Name    string `json:"name" validate:"required,slug"`
	Host    string `json:"host" validate:"required,hostname|ip"`
	Port    int    `json:"port" validate:"omitempty,min=1,max=65535"`
	SSHUser string `json:"ssh_user" validate:"required"`
}
