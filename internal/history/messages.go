package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// MessageType is the author of a conversation message.
type MessageType string

const (
	HumanMessage MessageType = "human"
	AIMessage    MessageType = "ai"
)

// Message is one turn of a skill's conversation with the model.
type Message struct {
	Type    MessageType
	Content string
}

// storedMessage is the JSON shape kept in message_history.message.
type storedMessage struct {
	Type MessageType `json:"type"`
	Data struct {
		Content string `json:"content"`
	} `json:"data"`
}

// AppendMessages adds messages to a conversation session in one transaction.
// Each skill uses its own session id.
func (s *Store) AppendMessages(ctx context.Context, sessionID string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	query := s.dialect.rebind(`INSERT INTO message_history (session_id, message, created_at) VALUES (?, ?, ?)`)
	return s.inTx(ctx, "append messages", func(tx *sql.Tx) error {
		now := s.now()
		for _, m := range msgs {
			var sm storedMessage
			sm.Type = m.Type
			sm.Data.Content = m.Content
			raw, err := json.Marshal(sm)
			if err != nil {
				return fmt.Errorf("encode message: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, sessionID, string(raw), now); err != nil {
				return err
			}
		}
		return nil
	})
}

// Messages returns a session's messages in insertion order.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind(`SELECT message FROM message_history WHERE session_id = ? ORDER BY id`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		var sm storedMessage
		if err := json.Unmarshal([]byte(raw), &sm); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		msgs = append(msgs, Message{Type: sm.Type, Content: sm.Data.Content})
	}
	return msgs, rows.Err()
}
