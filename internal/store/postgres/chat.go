package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ayrohq/ayro/internal/models"
)

const chatColumns = `id::text, app_id::text, user_id::text, agent, text, direction, channel, created_at`

func scanChatMessage(row pgx.Row) (models.ChatMessage, error) {
	var (
		m         models.ChatMessage
		agent     []byte
		direction string
		channel   string
	)
	if err := row.Scan(&m.ID, &m.AppID, &m.UserID, &agent, &m.Text, &direction, &channel, &m.Date); err != nil {
		return models.ChatMessage{}, mapErr(err)
	}
	if len(agent) > 0 && string(agent) != "null" {
		var a models.Agent
		if err := json.Unmarshal(agent, &a); err != nil {
			return models.ChatMessage{}, fmt.Errorf("decode agent: %w", err)
		}
		m.Agent = &a
	}
	m.Direction = models.Direction(direction)
	m.Channel = models.Channel(channel)
	return m, nil
}

func (s *Store) CreateChatMessage(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	appID, err := parseID(msg.AppID)
	if err != nil {
		return models.ChatMessage{}, err
	}
	userID, err := parseID(msg.UserID)
	if err != nil {
		return models.ChatMessage{}, err
	}
	var agent []byte
	if msg.Agent != nil {
		if agent, err = json.Marshal(msg.Agent); err != nil {
			return models.ChatMessage{}, fmt.Errorf("encode agent: %w", err)
		}
	}
	date := msg.Date
	if date.IsZero() {
		date = utcNow()
	}
	return scanChatMessage(s.db.QueryRow(ctx, `
INSERT INTO chat_messages (id, app_id, user_id, agent, text, direction, channel, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+chatColumns,
		uuid.New(), appID, userID, agent, msg.Text, string(msg.Direction), string(msg.Channel), date,
	))
}

func (s *Store) GetChatMessage(ctx context.Context, id string) (models.ChatMessage, error) {
	pgID, err := parseID(id)
	if err != nil {
		return models.ChatMessage{}, err
	}
	return scanChatMessage(s.db.QueryRow(ctx, `SELECT `+chatColumns+` FROM chat_messages WHERE id = $1`, pgID))
}

// ListChatMessages orders by the insert sequence so the result matches
// persistence order even when timestamps collide.
func (s *Store) ListChatMessages(ctx context.Context, userID string) ([]models.ChatMessage, error) {
	pgID, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `SELECT `+chatColumns+` FROM chat_messages WHERE user_id = $1 ORDER BY seq`, pgID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	items := make([]models.ChatMessage, 0)
	for rows.Next() {
		m, err := scanChatMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, mapErr(rows.Err())
}

func (s *Store) DeleteChatMessagesBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM chat_messages WHERE created_at < $1`, before)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}
