package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/personabot/internal/errs"
	"github.com/edgard/personabot/internal/logger"
)

// MessageStore persists chat messages. AppendMessage is idempotent on the
// message id. Reads are not isolated from concurrent appends.
type MessageStore interface {
	// AppendMessage inserts message; a duplicate message id is a no-op.
	AppendMessage(ctx context.Context, message *Message) error
	// AppendMessages inserts a batch in one transaction. Any failure rolls the
	// whole batch back. It returns the number of rows actually inserted.
	AppendMessages(ctx context.Context, messages []Message) (int, error)
	// RecentMessages returns up to limit messages of the channel, newest first.
	RecentMessages(ctx context.Context, channelID string, limit int) ([]Message, error)
	// ChannelMessages returns the channel's full history, oldest first.
	ChannelMessages(ctx context.Context, channelID string) ([]Message, error)
	// AuthorMessages returns every message by author across channels, oldest first.
	AuthorMessages(ctx context.Context, author string) ([]Message, error)
	// TopAuthors returns the k most active authors of a channel by message count.
	TopAuthors(ctx context.Context, channelID string, k int) ([]AuthorCount, error)
}

// ProfileStore persists one generated profile per username.
type ProfileStore interface {
	// UpsertProfile inserts or overwrites the profile for username.
	UpsertProfile(ctx context.Context, username, profile string) error
	// Profiles returns every stored profile.
	Profiles(ctx context.Context) ([]UserProfile, error)
}

// Store is the full data access layer.
type Store interface {
	MessageStore
	ProfileStore

	// Ping checks the database connection.
	Ping(ctx context.Context) error
	// RunSQLMaintenance reclaims space and refreshes planner statistics.
	RunSQLMaintenance(ctx context.Context) error
}

type sqlxStore struct {
	db     *sqlx.DB
	driver string
	logger *slog.Logger
	now    func() time.Time
}

// NewStore returns a Store backed by db. driver is the config driver name
// ("sqlite" or "postgres").
func NewStore(db *sqlx.DB, driver string, log *slog.Logger) Store {
	if log == nil {
		log = logger.Discard()
	}
	return &sqlxStore{
		db:     db,
		driver: driver,
		logger: log.With("component", "store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errs.NewStorageError("ping", err)
	}
	return nil
}

const insertMessageQuery = `
	INSERT INTO messages (message_id, channel_id, author, content, timestamp)
	VALUES (:message_id, :channel_id, :author, :content, :timestamp)
	ON CONFLICT (message_id) DO NOTHING`

func validateMessage(m *Message) error {
	if m == nil {
		return errors.New("cannot save nil message")
	}
	if m.MessageID == "" {
		return errors.New("message must have a message_id")
	}
	if m.ChannelID == "" {
		return errors.New("message must have a channel_id")
	}
	if m.Timestamp.IsZero() {
		return errors.New("message must have a non-zero timestamp")
	}
	return nil
}

func (s *sqlxStore) AppendMessage(ctx context.Context, message *Message) error {
	if err := validateMessage(message); err != nil {
		return errs.NewStorageError("append message", err)
	}

	row := *message
	row.Timestamp = row.Timestamp.UTC()

	result, err := s.db.NamedExecContext(ctx, insertMessageQuery, &row)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving message", "channel_id", row.ChannelID, "message_id", row.MessageID, "error", err)
		return errs.NewStorageError("append message", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		s.logger.DebugContext(ctx, "Message already stored, skipping", "channel_id", row.ChannelID, "message_id", row.MessageID)
	}
	return nil
}

func (s *sqlxStore) AppendMessages(ctx context.Context, messages []Message) (inserted int, err error) {
	if len(messages) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errs.NewStorageError("append messages", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	stmt, err := tx.PrepareNamedContext(ctx, insertMessageQuery)
	if err != nil {
		return 0, errs.NewStorageError("append messages", fmt.Errorf("failed to prepare insert: %w", err))
	}
	defer stmt.Close()

	for i := range messages {
		row := messages[i]
		if err := validateMessage(&row); err != nil {
			return 0, errs.NewStorageError("append messages", fmt.Errorf("message %d: %w", i, err))
		}
		row.Timestamp = row.Timestamp.UTC()

		result, err := stmt.ExecContext(ctx, &row)
		if err != nil {
			return 0, errs.NewStorageError("append messages", fmt.Errorf("insert %s: %w", row.MessageID, err))
		}
		if affected, err := result.RowsAffected(); err == nil {
			inserted += int(affected)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errs.NewStorageError("append messages", fmt.Errorf("failed to commit transaction: %w", err))
	}
	tx = nil

	s.logger.InfoContext(ctx, "Stored message batch", "received", len(messages), "inserted", inserted)
	return inserted, nil
}

func (s *sqlxStore) RecentMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}

	var messages []Message
	query := s.db.Rebind(`
		SELECT message_id, channel_id, author, content, timestamp
		FROM messages
		WHERE channel_id = ?
		ORDER BY timestamp DESC, message_id DESC
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &messages, query, channelID, limit); err != nil {
		return nil, errs.NewStorageError("recent messages", err)
	}
	if messages == nil {
		messages = []Message{}
	}
	return messages, nil
}

func (s *sqlxStore) ChannelMessages(ctx context.Context, channelID string) ([]Message, error) {
	var messages []Message
	query := s.db.Rebind(`
		SELECT message_id, channel_id, author, content, timestamp
		FROM messages
		WHERE channel_id = ?
		ORDER BY timestamp ASC, message_id ASC`)
	if err := s.db.SelectContext(ctx, &messages, query, channelID); err != nil {
		return nil, errs.NewStorageError("channel messages", err)
	}
	if messages == nil {
		messages = []Message{}
	}
	return messages, nil
}

func (s *sqlxStore) AuthorMessages(ctx context.Context, author string) ([]Message, error) {
	var messages []Message
	query := s.db.Rebind(`
		SELECT message_id, channel_id, author, content, timestamp
		FROM messages
		WHERE author = ?
		ORDER BY timestamp ASC, message_id ASC`)
	if err := s.db.SelectContext(ctx, &messages, query, author); err != nil {
		return nil, errs.NewStorageError("author messages", err)
	}
	if messages == nil {
		messages = []Message{}
	}
	return messages, nil
}

func (s *sqlxStore) TopAuthors(ctx context.Context, channelID string, k int) ([]AuthorCount, error) {
	if k <= 0 {
		return []AuthorCount{}, nil
	}

	var authors []AuthorCount
	query := s.db.Rebind(`
		SELECT author, COUNT(*) AS message_count
		FROM messages
		WHERE channel_id = ?
		GROUP BY author
		ORDER BY message_count DESC, author ASC
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &authors, query, channelID, k); err != nil {
		return nil, errs.NewStorageError("top authors", err)
	}
	if authors == nil {
		authors = []AuthorCount{}
	}
	return authors, nil
}

func (s *sqlxStore) UpsertProfile(ctx context.Context, username, profile string) error {
	if strings.TrimSpace(username) == "" {
		return errs.NewStorageError("upsert profile", errors.New("username is required"))
	}

	row := UserProfile{Username: username, Profile: profile, UpdatedAt: s.now()}
	query := `
		INSERT INTO user_profiles (username, profile, updated_at)
		VALUES (:username, :profile, :updated_at)
		ON CONFLICT (username) DO UPDATE SET profile = excluded.profile, updated_at = excluded.updated_at`
	if _, err := s.db.NamedExecContext(ctx, query, &row); err != nil {
		s.logger.ErrorContext(ctx, "Error saving profile", "username", username, "error", err)
		return errs.NewStorageError("upsert profile", err)
	}
	return nil
}

func (s *sqlxStore) Profiles(ctx context.Context) ([]UserProfile, error) {
	var profiles []UserProfile
	if err := s.db.SelectContext(ctx, &profiles, `SELECT username, profile, updated_at FROM user_profiles ORDER BY username`); err != nil {
		return nil, errs.NewStorageError("profiles", err)
	}
	if profiles == nil {
		profiles = []UserProfile{}
	}
	return profiles, nil
}

func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	statements := []string{"VACUUM", "ANALYZE"}
	if s.driver == DriverPostgres {
		statements = []string{"VACUUM ANALYZE messages", "VACUUM ANALYZE user_profiles"}
	}

	for _, stmt := range statements {
		start := time.Now()
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errs.NewStorageError("maintenance", fmt.Errorf("%s: %w", stmt, err))
		}
		s.logger.InfoContext(ctx, "Maintenance statement finished", "statement", stmt, "duration", time.Since(start))
	}
	return nil
}
