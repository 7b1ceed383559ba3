package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erkineren/homework-monitor/internal/models"
	_ "github.com/lib/pq"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(ctx context.Context, dbURL string) (*Store, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s, err := NewWithDB(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an already opened connection and makes sure the schema exists.
func NewWithDB(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := initDatabase(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Store{
		db:  db,
		now: time.Now,
	}, nil
}

func initDatabase(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sent_notifications (
			id SERIAL PRIMARY KEY,
			chat_id TEXT NOT NULL,
			homework_name TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sent_notifications_created_at
			ON sent_notifications(created_at)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query %q: %w", query, err)
		}
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RecordNotification(ctx context.Context, n models.Notification) error {
	createdAt := n.SentAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sent_notifications (chat_id, homework_name, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, n.ChatID, n.HomeworkName, string(n.Status), n.Message, createdAt)
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}

	return nil
}

func (s *Store) CleanOldNotifications(ctx context.Context, olderThan time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sent_notifications
		WHERE created_at < $1
	`, s.now().Add(-olderThan))
	if err != nil {
		return fmt.Errorf("failed to clean old notifications: %w", err)
	}

	return nil
}
