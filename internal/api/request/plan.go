package request

// CreatePlan configures a backup job. Transport details are resolved from
// the agent at creation time so a later agent edit never silently changes
// where an existing plan copies from.
type CreatePlan struct {
	AgentID     string `json:"agent_id" validate:"required"`
	Name        string `json:"name" validate:"required,slug"`
	Description string `json:"description" validate:"max=500"`
	Schedule    string `json:"schedule" validate:"omitempty,cron"`
	Source      string `json:"source" validate:"required"`
	Destination string `json:"destination" validate:"required"`
	Active      *bool  `json:"active"`
}

// UpdatePlan changes a plan's job configuration. Transport fields stay as
// they were resolved at creation.
type UpdatePlan struct {
	Name        string `json:"name" validate:"required,slug"`
	Description string `json:"description" validate:"max=500"`
	Schedule    string `json:"schedule" validate:"omitempty,cron"`
	Source      string `json:"source" validate:"required"`
	Destination string `json:"destination" validate:"required"`
	Active      *bool  `json:"active"`
}
