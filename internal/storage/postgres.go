package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn and initializes the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) FindOrCreateUser(ctx context.Context, externalID int64, displayName string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (external_id, display_name, created_at, last_active)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (external_id) DO UPDATE SET
			last_active = NOW(),
			display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE users.display_name END
		RETURNING id, external_id, display_name, created_at, last_active
	`, externalID, displayName).Scan(&u.ID, &u.ExternalID, &u.DisplayName, &u.CreatedAt, &u.LastActive)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUserByExternalID(ctx context.Context, externalID int64) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		"SELECT id, external_id, display_name, created_at, last_active FROM users WHERE external_id = $1",
		externalID,
	).Scan(&u.ID, &u.ExternalID, &u.DisplayName, &u.CreatedAt, &u.LastActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, external_id, display_name, created_at, last_active FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.ExternalID, &u.DisplayName, &u.CreatedAt, &u.LastActive); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) CreateChannel(ctx context.Context, userID int64, name string) (*Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("channel name must not be empty")
	}
	c := Channel{UserID: userID, Name: name, Status: ChannelStatusActive}
	err := s.pool.QueryRow(ctx,
		"INSERT INTO channels (user_id, name, status) VALUES ($1, $2, $3) RETURNING id, created_at",
		userID, name, ChannelStatusActive,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) GetChannel(ctx context.Context, channelID int64) (*Channel, error) {
	var c Channel
	err := s.pool.QueryRow(ctx,
		"SELECT id, user_id, name, status, created_at FROM channels WHERE id = $1", channelID,
	).Scan(&c.ID, &c.UserID, &c.Name, &c.Status, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ListChannels(ctx context.Context, userID int64) ([]Channel, error) {
	return s.queryChannels(ctx,
		"SELECT id, user_id, name, status, created_at FROM channels WHERE user_id = $1 AND status = $2 ORDER BY id",
		userID, ChannelStatusActive)
}

func (s *PostgresStore) FindChannelsByName(ctx context.Context, name string) ([]Channel, error) {
	return s.queryChannels(ctx,
		"SELECT id, user_id, name, status, created_at FROM channels WHERE name = $1 AND status = $2 ORDER BY id",
		strings.TrimSpace(name), ChannelStatusActive)
}

func (s *PostgresStore) queryChannels(ctx context.Context, query string, args ...any) ([]Channel, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		var c Channel
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

func (s *PostgresStore) DeleteChannel(ctx context.Context, channelID int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM channels WHERE id = $1", channelID)
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddPost(ctx context.Context, channelID int64, ideaTitle, styleName, text string) (*Post, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ideaID, err := pgFindOrCreateRef(ctx, tx, "ideas", "title", ideaTitle)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve idea: %w", err)
	}
	styleID, err := pgFindOrCreateRef(ctx, tx, "styles", "name", styleName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve style: %w", err)
	}

	p := Post{ChannelID: channelID, IdeaID: ideaID, StyleID: styleID, Idea: ideaTitle, Style: styleName, Text: text}
	err = tx.QueryRow(ctx,
		"INSERT INTO posts (channel_id, idea_id, style_id, text, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at",
		channelID, ideaID, styleID, text, time.Now().UTC(),
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert post: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit post: %w", err)
	}
	return &p, nil
}

// pgFindOrCreateRef mirrors findOrCreateRef for pgx transactions.
func pgFindOrCreateRef(ctx context.Context, tx pgx.Tx, table, column, value string) (int64, error) {
	selectQ := fmt.Sprintf("SELECT id FROM %s WHERE %s = $1", table, column)

	var id int64
	err := tx.QueryRow(ctx, selectQ, value).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	insertQ := fmt.Sprintf("INSERT INTO %s (%s) VALUES ($1) ON CONFLICT (%s) DO NOTHING RETURNING id", table, column, column)
	err = tx.QueryRow(ctx, insertQ, value).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	if err := tx.QueryRow(ctx, selectQ, value).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *PostgresStore) GetPost(ctx context.Context, postID int64) (*Post, error) {
	var p Post
	err := s.pool.QueryRow(ctx,
		"SELECT "+postColumns+" "+postJoins+" WHERE p.id = $1", postID,
	).Scan(&p.ID, &p.ChannelID, &p.IdeaID, &p.StyleID, &p.Idea, &p.Style, &p.Text, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListRecentPosts(ctx context.Context, channelID int64, limit int) ([]Post, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+postColumns+" "+postJoins+`
		WHERE p.channel_id = $1
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $2`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.ChannelID, &p.IdeaID, &p.StyleID, &p.Idea, &p.Style, &p.Text, &p.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *PostgresStore) CountPosts(ctx context.Context, channelID int64) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM posts WHERE channel_id = $1", channelID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) AddEvent(ctx context.Context, userID int64, postID *int64, eventType string) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO events (user_id, post_id, event_type) VALUES ($1, $2, $3)",
		userID, postID, eventType)
	if err != nil {
		return fmt.Errorf("failed to add event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, userID int64, limit int) ([]Event, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, user_id, post_id, event_type, created_at FROM events WHERE user_id = $1 ORDER BY id DESC LIMIT $2",
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.UserID, &e.PostID, &e.EventType, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
