package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	// RoleUser is a question asked by the human operator.
	RoleUser Role = "user"
	// RoleAssistant is an answer produced by the model.
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single turn in a document's chat history.
type ChatMessage struct {
	// Role is the author of the message.
	Role Role
	// Content is the text of the message.
	Content string
	// Sources holds the citation references an assistant message was
	// grounded on; empty for user messages.
	Sources []string
	// CreatedAt is when the message was persisted.
	CreatedAt time.Time
}

// ChatStore persists per-document chat history. History is only written when
// the caller opts in, so implementations never append implicitly.
type ChatStore interface {
	// AppendMessage persists one message for the given document.
	AppendMessage(ctx context.Context, documentID string, role Role, content string, sources []string) error
	// History returns the most recent n messages for the document, ordered
	// oldest-first so they can feed the model context directly.
	History(ctx context.Context, documentID string, n int) ([]ChatMessage, error)
	// ClearHistory deletes all messages for the document.
	ClearHistory(ctx context.Context, documentID string) error
}

// AppendMessage persists one message for the given document.
func (s *SQLiteStore) AppendMessage(ctx context.Context, documentID string, role Role, content string, sources []string) error {
	if sources == nil {
		sources = []string{}
	}
	encoded, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("store: append message: encode sources: %w", err)
	}
	const q = `INSERT INTO chat_messages (document_id, role, content, sources, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, documentID, string(role), content, string(encoded), time.Now().Unix()); err != nil {
		return fmt.Errorf("store: append message: %w", err)
	}
	return nil
}

// History returns the most recent n messages for the document, ordered
// oldest-first. Uses a subquery to select the tail then re-order for injection.
func (s *SQLiteStore) History(ctx context.Context, documentID string, n int) ([]ChatMessage, error) {
	const q = `
SELECT role, content, sources, created_at FROM (
    SELECT id, role, content, sources, created_at
    FROM   chat_messages
    WHERE  document_id = ?
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, documentID, n)
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var (
			m       ChatMessage
			role    string
			sources string
			ts      int64
		)
		if err := rows.Scan(&role, &m.Content, &sources, &ts); err != nil {
			return nil, fmt.Errorf("store: history scan: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &m.Sources); err != nil {
			return nil, fmt.Errorf("store: history decode sources: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.Unix(ts, 0)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: history rows: %w", err)
	}
	return msgs, nil
}

// ClearHistory deletes all messages for the document.
func (s *SQLiteStore) ClearHistory(ctx context.Context, documentID string) error {
	const q = `DELETE FROM chat_messages WHERE document_id = ?`
	if _, err := s.db.ExecContext(ctx, q, documentID); err != nil {
		return fmt.Errorf("store: clear history: %w", err)
	}
	return nil
}
