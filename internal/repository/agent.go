package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/livechat/internal/logger"
	"github.com/livechat/internal/model"
)

type AgentRepository struct {
	pool *pgxpool.Pool
}

func NewAgentRepository(pool *pgxpool.Pool) *AgentRepository {
	return &AgentRepository{pool: pool}
}

// Upsert registers the agent by name, refreshing id and status on
// re-registration (a new console connection gets a new connection id).
func (r *AgentRepository) Upsert(ctx context.Context, a *model.Agent) error {
	defer logger.DeferLogDuration("agent.Upsert", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO agents (id, name, status, last_active, created_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (name) DO UPDATE SET
		   id = EXCLUDED.id,
		   status = EXCLUDED.status,
		   last_active = EXCLUDED.last_active`,
		a.ID, a.Name, a.Status, a.LastActive,
	)
	if err != nil {
		return fmt.Errorf("agentRepo.Upsert: %w", err)
	}
	return nil
}

func (r *AgentRepository) GetByID(ctx context.Context, id string) (*model.Agent, error) {
	defer logger.DeferLogDuration("agent.GetByID", time.Now())()
	a := &model.Agent{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, status, last_active, created_at FROM agents WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.Status, &a.LastActive, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("agentRepo.GetByID: %w", err)
	}
	return a, nil
}

func (r *AgentRepository) SetStatus(ctx context.Context, id string, status model.AgentStatus) error {
	defer logger.DeferLogDuration("agent.SetStatus", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE agents SET status = $1, last_active = now() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("agentRepo.SetStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAllOffline resets presence at startup; connections did not survive the
// restart, so neither did availability.
func (r *AgentRepository) SetAllOffline(ctx context.Context) error {
	defer logger.DeferLogDuration("agent.SetAllOffline", time.Now())()
	if _, err := r.pool.Exec(ctx, `UPDATE agents SET status = 'offline'`); err != nil {
		return fmt.Errorf("agentRepo.SetAllOffline: %w", err)
	}
	return nil
}
