package core

import (
	"context"
	"fmt"

	"github.com/edvin/backhaul/internal/model"
)

const planColumns = `id, agent_id, name, description, schedule, source, destination, active, host, port, ssh_user, private_key, created_at, updated_at`

// PlanService manages backup plan configuration. The engine reads plans
// through this service and never mutates them.
type PlanService struct {
	db DB
}

func NewPlanService(db DB) *PlanService {
	return &PlanService{db: db}
}

func (s *PlanService) Create(ctx context.Context, plan *model.BackupPlan) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO backup_plans (`+planColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		plan.ID, plan.AgentID, plan.Name, plan.Description, plan.Schedule,
		plan.Source, plan.Destination, plan.Active, plan.Host, plan.Port,
		plan.SSHUser, plan.PrivateKey, plan.CreatedAt, plan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert backup plan: %w", err)
	}
	return nil
}

func scanPlan(row interface{ Scan(dest ...any) error }) (model.BackupPlan, error) {
	var p model.BackupPlan
	err := row.Scan(&p.ID, &p.AgentID, &p.Name, &p.Description, &p.Schedule,
		&p.Source, &p.Destination, &p.Active, &p.Host, &p.Port,
		&p.SSHUser, &p.PrivateKey, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PlanService) GetByID(ctx context.Context, id string) (*model.BackupPlan, error) {
	row := s.db.QueryRow(ctx, `SELECT `+planColumns+` FROM backup_plans WHERE id = $1`, id)
	p, err := scanPlan(row)
	if err != nil {
		return nil, fmt.Errorf("get backup plan %s: %w", id, err)
	}
	return &p, nil
}

func (s *PlanService) List(ctx context.Context, limit int, cursor string) ([]model.BackupPlan, bool, error) {
	query := `SELECT ` + planColumns + ` FROM backup_plans`
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
		return nil, false, fmt.Errorf("list backup plans: %w", err)
	}
	defer rows.Close()

	var plans []model.BackupPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan backup plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate backup plans: %w", err)
	}

	hasMore := len(plans) > limit
	if hasMore {
		plans = plans[:limit]
	}
	return plans, hasMore, nil
}

// ListActive returns every active plan. The scheduler reloads its cron
// entries from this set.
func (s *PlanService) ListActive(ctx context.Context) ([]model.BackupPlan, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+planColumns+` FROM backup_plans WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active backup plans: %w", err)
	}
	defer rows.Close()

	var plans []model.BackupPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup plans: %w", err)
	}
	return plans, nil
}

func (s *PlanService) Update(ctx context.Context, plan *model.BackupPlan) error {
	_, err := s.db.Exec(ctx,
		`UPDATE backup_plans
		 SET agent_id = $1, name = $2, description = $3, schedule = $4, source = $5,
		     destination = $6, active = $7, host = $8, port = $9, ssh_user = $10,
		     private_key = $11, updated_at = now()
		 WHERE id = $12`,
		plan.AgentID, plan.Name, plan.Description, plan.Schedule, plan.Source,
		plan.Destination, plan.Active, plan.Host, plan.Port, plan.SSHUser,
		plan.PrivateKey, plan.ID,
	)
	if err != nil {
		return fmt.Errorf("update backup plan %s: %w", plan.ID, err)
	}
	return nil
}

func (s *PlanService) Delete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM backup_plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete backup plan %s: %w", id, err)
	}
	return nil
}
