package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DefaultTitle is the placeholder assigned on creation. The first appended
// user message replaces it.
const DefaultTitle = "New Chat"

// ErrUsernameTaken is returned by CreateUser on a duplicate username.
var ErrUsernameTaken = errors.New("username already exists")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY, -- UUID
        username TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY, -- UUID
        user_id TEXT NOT NULL,
        title TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL,
        messages TEXT NOT NULL, -- JSON array of {role, content}
        FOREIGN KEY (user_id) REFERENCES users (id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *SQLiteStore) CreateUser(username, passwordHash string) (*User, error) {
	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	_, err := s.db.Exec("INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)",
		user.ID, user.Username, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) GetUserByUsername(username string) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, username, password_hash, created_at FROM users WHERE username = ?", username).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// Conversation methods

func (s *SQLiteStore) CreateConversation(userID string) (*Conversation, error) {
	conv := &Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     DefaultTitle,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Messages:  []Message{},
	}
	_, err := s.db.Exec("INSERT INTO conversations (id, user_id, title, created_at, updated_at, messages) VALUES (?, ?, ?, ?, ?, ?)",
		conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt, "[]")
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return conv, nil
}

// GetConversation returns the full transcript, or (nil, nil) when the
// conversation does not exist or belongs to someone else. The two cases are
// deliberately indistinguishable.
func (s *SQLiteStore) GetConversation(conversationID, userID string) (*Conversation, error) {
	var conv Conversation
	var messagesJSON string
	err := s.db.QueryRow("SELECT id, user_id, title, created_at, updated_at, messages FROM conversations WHERE id = ? AND user_id = ?",
		conversationID, userID).
		Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt, &messagesJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if err := json.Unmarshal([]byte(messagesJSON), &conv.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript for conversation %s: %w", conv.ID, err)
	}
	return &conv, nil
}

func (s *SQLiteStore) GetConversations(userID string) ([]ConversationSummary, error) {
	rows, err := s.db.Query("SELECT id, title, created_at, updated_at FROM conversations WHERE user_id = ? ORDER BY updated_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	summaries := []ConversationSummary{}
	for rows.Next() {
		var c ConversationSummary
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		summaries = append(summaries, c)
	}
	return summaries, rows.Err()
}

// AppendMessagePair appends a user/assistant pair to the transcript and bumps
// updated_at, all in one transaction. The first pair ever appended also
// replaces the default title with the user message truncated to 50 chars.
func (s *SQLiteStore) AppendMessagePair(conversationID, userID, userMsg, assistantMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var messagesJSON, title string
	err = tx.QueryRow("SELECT messages, title FROM conversations WHERE id = ? AND user_id = ?", conversationID, userID).
		Scan(&messagesJSON, &title)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("conversation not found")
		}
		return fmt.Errorf("failed to read transcript: %w", err)
	}

	var messages []Message
	if err := json.Unmarshal([]byte(messagesJSON), &messages); err != nil {
		return fmt.Errorf("failed to unmarshal transcript: %w", err)
	}

	newTitle := title
	if title == DefaultTitle && len(messages) == 0 {
		newTitle = DeriveTitle(userMsg)
	}

	messages = append(messages,
		Message{Role: "user", Content: userMsg},
		Message{Role: "assistant", Content: assistantMsg},
	)
	updated, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	_, err = tx.Exec("UPDATE conversations SET messages = ?, updated_at = ?, title = ? WHERE id = ? AND user_id = ?",
		string(updated), time.Now(), newTitle, conversationID, userID)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteConversation(conversationID, userID string) error {
	res, err := s.db.Exec("DELETE FROM conversations WHERE id = ? AND user_id = ?", conversationID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("conversation not found")
	}
	return nil
}

// DeriveTitle truncates the first user message to 50 characters, appending an
// ellipsis when something was cut off.
func DeriveTitle(userMsg string) string {
	runes := []rune(userMsg)
	if len(runes) <= 50 {
		return userMsg
	}
	return string(runes[:50]) + "..."
}
