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

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type RoomRepository struct {
	pool *pgxpool.Pool
}

func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

// Upsert creates the room or refreshes an existing one back to waiting. A
// repeated request_agent for the same room must not duplicate the record.
func (r *RoomRepository) Upsert(ctx context.Context, room *model.Room) error {
	defer logger.DeferLogDuration("room.Upsert", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chat_rooms (id, user_name, user_socket_id, status, last_message, created_at, last_activity_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   user_name = EXCLUDED.user_name,
		   user_socket_id = EXCLUDED.user_socket_id,
		   status = EXCLUDED.status,
		   last_message = EXCLUDED.last_message,
		   last_activity_at = EXCLUDED.last_activity_at`,
		room.ID, room.UserName, room.UserSocketID, room.State, room.LastMessage, room.CreatedAt, room.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("roomRepo.Upsert: %w", err)
	}
	return nil
}

func (r *RoomRepository) GetByID(ctx context.Context, id string) (*model.Room, error) {
	defer logger.DeferLogDuration("room.GetByID", time.Now())()
	room := &model.Room{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_name, user_socket_id, status, COALESCE(assigned_agent_id, ''), COALESCE(last_message, ''), created_at, last_activity_at
		 FROM chat_rooms WHERE id = $1`, id,
	).Scan(&room.ID, &room.UserName, &room.UserSocketID, &room.State, &room.AssignedAgentID, &room.LastMessage, &room.CreatedAt, &room.LastActivityAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("roomRepo.GetByID: %w", err)
	}
	return room, nil
}

// ListOpen returns non-closed rooms, most recent activity first.
func (r *RoomRepository) ListOpen(ctx context.Context) ([]model.Room, error) {
	defer logger.DeferLogDuration("room.ListOpen", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_name, user_socket_id, status, COALESCE(assigned_agent_id, ''), COALESCE(last_message, ''), created_at, last_activity_at
		 FROM chat_rooms
		 WHERE status != 'closed'
		 ORDER BY last_activity_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.ListOpen query: %w", err)
	}
	defer rows.Close()

	var rooms []model.Room
	for rows.Next() {
		var room model.Room
		if err := rows.Scan(&room.ID, &room.UserName, &room.UserSocketID, &room.State, &room.AssignedAgentID, &room.LastMessage, &room.CreatedAt, &room.LastActivityAt); err != nil {
			return nil, fmt.Errorf("roomRepo.ListOpen scan: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roomRepo.ListOpen rows: %w", err)
	}
	return rooms, nil
}

// Assign attaches an agent and marks the room active.
func (r *RoomRepository) Assign(ctx context.Context, roomID, agentID string) error {
	defer logger.DeferLogDuration("room.Assign", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE chat_rooms SET assigned_agent_id = $1, status = 'active', last_activity_at = now() WHERE id = $2`,
		agentID, roomID,
	)
	if err != nil {
		return fmt.Errorf("roomRepo.Assign: %w", err)
	}
	return nil
}

// Unassign detaches the agent and returns the room to the waiting pool.
func (r *RoomRepository) Unassign(ctx context.Context, roomID string) error {
	defer logger.DeferLogDuration("room.Unassign", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE chat_rooms SET assigned_agent_id = NULL, status = 'waiting', last_activity_at = now() WHERE id = $1`,
		roomID,
	)
	if err != nil {
		return fmt.Errorf("roomRepo.Unassign: %w", err)
	}
	return nil
}

// Touch records room activity: latest message preview and activity timestamp.
func (r *RoomRepository) Touch(ctx context.Context, roomID, lastMessage string, at time.Time) error {
	defer logger.DeferLogDuration("room.Touch", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE chat_rooms SET last_message = $1, last_activity_at = $2, status = CASE WHEN status = 'inactive' THEN 'waiting' ELSE status END
		 WHERE id = $3`,
		lastMessage, at, roomID,
	)
	if err != nil {
		return fmt.Errorf("roomRepo.Touch: %w", err)
	}
	return nil
}

// Close marks the room closed. Closed rooms never reappear in agent lists.
func (r *RoomRepository) Close(ctx context.Context, roomID string) error {
	defer logger.DeferLogDuration("room.Close", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE chat_rooms SET status = 'closed', assigned_agent_id = NULL WHERE id = $1`,
		roomID,
	)
	if err != nil {
		return fmt.Errorf("roomRepo.Close: %w", err)
	}
	return nil
}

// ListAssignedTo returns open rooms currently attached to the agent.
func (r *RoomRepository) ListAssignedTo(ctx context.Context, agentID string) ([]model.Room, error) {
	defer logger.DeferLogDuration("room.ListAssignedTo", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_name, user_socket_id, status, COALESCE(assigned_agent_id, ''), COALESCE(last_message, ''), created_at, last_activity_at
		 FROM chat_rooms
		 WHERE assigned_agent_id = $1 AND status != 'closed'`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("roomRepo.ListAssignedTo query: %w", err)
	}
	defer rows.Close()

	var rooms []model.Room
	for rows.Next() {
		var room model.Room
		if err := rows.Scan(&room.ID, &room.UserName, &room.UserSocketID, &room.State, &room.AssignedAgentID, &room.LastMessage, &room.CreatedAt, &room.LastActivityAt); err != nil {
			return nil, fmt.Errorf("roomRepo.ListAssignedTo scan: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roomRepo.ListAssignedTo rows: %w", err)
	}
	return rooms, nil
}
