package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/livechat/internal/logger"
	"github.com/livechat/internal/model"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Create persists a message and fills in its generated id.
func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO chat_messages (room_id, sender_id, sender_name, content, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		m.RoomID, m.SenderID, m.SenderName, m.Content, m.Role, m.Timestamp,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

// RoomMessages returns the full transcript of a room in send order.
func (r *MessageRepository) RoomMessages(ctx context.Context, roomID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.RoomMessages", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, room_id, COALESCE(sender_id, ''), COALESCE(sender_name, ''), content, role, created_at
		 FROM chat_messages
		 WHERE room_id = $1
		 ORDER BY created_at ASC, id ASC`, roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.RoomMessages query: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.Content, &m.Role, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("msgRepo.RoomMessages scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.RoomMessages rows: %w", err)
	}
	return messages, nil
}

// CreateBatch persists a transcript snapshot, skipping rows already present
// (same room, role, content and timestamp). Used when request_agent hands the
// coordinator the client-side history.
func (r *MessageRepository) CreateBatch(ctx context.Context, msgs []model.Message) error {
	defer logger.DeferLogDuration("msg.CreateBatch", time.Now())()
	for i := range msgs {
		m := &msgs[i]
		_, err := r.pool.Exec(ctx,
			`INSERT INTO chat_messages (room_id, sender_id, sender_name, content, role, created_at)
			 SELECT $1, $2, $3, $4, $5, $6
			 WHERE NOT EXISTS (
			   SELECT 1 FROM chat_messages
			   WHERE room_id = $1 AND role = $5 AND content = $4 AND created_at = $6
			 )`,
			m.RoomID, m.SenderID, m.SenderName, m.Content, m.Role, m.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("msgRepo.CreateBatch: %w", err)
		}
	}
	return nil
}
