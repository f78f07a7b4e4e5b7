package core

import (
	"context"
	"fmt"

	"github.com/edvin/backhaul/internal/model"
)

// AgentService manages registered remote agents.
type AgentService struct {
	db DB
}

func NewAgentService(db DB) *AgentService {
	return &AgentService{db: db}
}

func (s *AgentService) Create(ctx context.Context, agent *model.Agent) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO agents (id, name, host, port, ssh_user, public_key, private_key, fingerprint, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		agent.ID, agent.Name, agent.Host, agent.Port, agent.SSHUser,
		agent.PublicKey, agent.PrivateKey, agent.Fingerprint,
		agent.CreatedAt, agent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

func (s *AgentService) GetByID(ctx context.Context, id string) (*model.Agent, error) {
	var a model.Agent
	err := s.db.QueryRow(ctx,
		`SELECT id, name, host, port, ssh_user, public_key, private_key, fingerprint, created_at, updated_at
		 FROM agents WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.Host, &a.Port, &a.SSHUser,
		&a.PublicKey, &a.PrivateKey, &a.Fingerprint, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	return &a, nil
}

func (s *AgentService) List(ctx context.Context, limit int, cursor string) ([]model.Agent, bool, error) {
	query := `SELECT id, name, host, port, ssh_user, public_key, private_key, fingerprint, created_at, updated_at FROM agents`
	args := []any{}
	argIdx := 1

	if cursor != "" {
		query += fmt.Sprintf(` WHERE id > $%d`, argIdx)
		args = append(args, cursor)
		argIdx++
	}

	query += ` ORDER BY id`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []model.Agent
	for rows.Next() {
		var a model.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Host, &a.Port, &a.SSHUser,
			&a.PublicKey, &a.PrivateKey, &a.Fingerprint, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, false, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate agents: %w", err)
	}

	hasMore := len(agents) > limit
	if hasMore {
		agents = agents[:limit]
	}
	return agents, hasMore, nil
}

func (s *AgentService) Update(ctx context.Context, agent *model.Agent) error {
	_, err := s.db.Exec(ctx,
		`UPDATE agents SET name = $1, host = $2, port = $3, ssh_user = $4, updated_at = now()
		 WHERE id = $5`,
		agent.Name, agent.Host, agent.Port, agent.SSHUser, agent.ID,
	)
	if err != nil {
		return fmt.Errorf("update agent %s: %w", agent.ID, err)
	}
	return nil
}

// SetKeyPair replaces the agent's stored key material.
func (s *AgentService) SetKeyPair(ctx context.Context, id, publicKey, privateKey, fingerprint string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE agents SET public_key = $1, private_key = $2, fingerprint = $3, updated_at = now()
		 WHERE id = $4`,
		publicKey, privateKey, fingerprint, id,
	)
	if err != nil {
		return fmt.Errorf("set agent %s key pair: %w", id, err)
	}
	return nil
}

func (s *AgentService) Delete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete agent %s: %w", id, err)
	}
	return nil
}
