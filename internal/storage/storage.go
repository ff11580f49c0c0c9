package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Channels are hard-deleted; active is the only persisted status.
const ChannelStatusActive = "active"

// Event types recorded in the events table.
const (
	EventChannelCreated = "channel_created"
	EventChannelDeleted = "channel_deleted"
	EventPostGenerated  = "post_generated"
	EventPostSaved      = "post_saved"
	EventPostsImported  = "posts_imported"
)

type User struct {
	ID          int64     `json:"id"`
	ExternalID  int64     `json:"external_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	LastActive  time.Time `json:"last_active"`
}

type Channel struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Post is a stored channel post joined with its idea title and style name.
type Post struct {
	ID        int64     `json:"id"`
	ChannelID int64     `json:"channel_id"`
	IdeaID    int64     `json:"idea_id"`
	StyleID   int64     `json:"style_id"`
	Idea      string    `json:"idea"`
	Style     string    `json:"style"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type Event struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	PostID    *int64    `json:"post_id,omitempty"`
	EventType string    `json:"event_type"`
	CreatedAt time.Time `json:"created_at"`
}

// SQLiteStore implements Store on top of modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath and initializes the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_time_format=sqlite&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; lock upgrades inside deferred transactions
	// would otherwise fail with SQLITE_BUSY under concurrent AddPost.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Migrations for existing databases.
	migrations := []string{
		"ALTER TABLE users ADD COLUMN last_active DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP",
		"ALTER TABLE channels ADD COLUMN status TEXT NOT NULL DEFAULT 'active'",
	}
	for _, m := range migrations {
		db.Exec(m) // ignore "duplicate column" errors
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FindOrCreateUser returns the user with the given external id, creating it
// on first contact. Existing users get last_active (and a non-empty display
// name) refreshed.
func (s *SQLiteStore) FindOrCreateUser(ctx context.Context, externalID int64, displayName string) (*User, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (external_id, display_name, created_at, last_active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			last_active = excluded.last_active,
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE users.display_name END
	`, externalID, displayName, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return s.GetUserByExternalID(ctx, externalID)
}

// GetUserByExternalID looks a user up by platform account id.
func (s *SQLiteStore) GetUserByExternalID(ctx context.Context, externalID int64) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, external_id, display_name, created_at, last_active FROM users WHERE external_id = ?",
		externalID,
	).Scan(&u.ID, &u.ExternalID, &u.DisplayName, &u.CreatedAt, &u.LastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// ListUsers returns all users ordered by id.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
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

// CreateChannel adds an active channel owned by userID.
func (s *SQLiteStore) CreateChannel(ctx context.Context, userID int64, name string) (*Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("channel name must not be empty")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO channels (user_id, name, status, created_at) VALUES (?, ?, ?, ?)",
		userID, name, ChannelStatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Channel{ID: id, UserID: userID, Name: name, Status: ChannelStatusActive, CreatedAt: now}, nil
}

// GetChannel returns a channel by id.
func (s *SQLiteStore) GetChannel(ctx context.Context, channelID int64) (*Channel, error) {
	var c Channel
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, name, status, created_at FROM channels WHERE id = ?", channelID,
	).Scan(&c.ID, &c.UserID, &c.Name, &c.Status, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return &c, nil
}

// ListChannels returns a user's active channels in creation order.
func (s *SQLiteStore) ListChannels(ctx context.Context, userID int64) ([]Channel, error) {
	return s.queryChannels(ctx,
		"SELECT id, user_id, name, status, created_at FROM channels WHERE user_id = ? AND status = ? ORDER BY id",
		userID, ChannelStatusActive)
}

// FindChannelsByName returns every active channel with the given name,
// across all users. Names are not unique.
func (s *SQLiteStore) FindChannelsByName(ctx context.Context, name string) ([]Channel, error) {
	return s.queryChannels(ctx,
		"SELECT id, user_id, name, status, created_at FROM channels WHERE name = ? AND status = ? ORDER BY id",
		strings.TrimSpace(name), ChannelStatusActive)
}

func (s *SQLiteStore) queryChannels(ctx context.Context, query string, args ...any) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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

// DeleteChannel removes a channel and, via FK CASCADE, its posts.
func (s *SQLiteStore) DeleteChannel(ctx context.Context, channelID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM channels WHERE id = ?", channelID)
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddPost resolves the idea and style reference rows (find-or-create) and
// inserts the post, all in one transaction.
func (s *SQLiteStore) AddPost(ctx context.Context, channelID int64, ideaTitle, styleName, text string) (*Post, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ideaID, err := findOrCreateRef(ctx, tx, "ideas", "title", ideaTitle)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve idea: %w", err)
	}
	styleID, err := findOrCreateRef(ctx, tx, "styles", "name", styleName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve style: %w", err)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		"INSERT INTO posts (channel_id, idea_id, style_id, text, created_at) VALUES (?, ?, ?, ?, ?)",
		channelID, ideaID, styleID, text, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert post: %w", err)
	}
	postID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit post: %w", err)
	}

	return &Post{
		ID:        postID,
		ChannelID: channelID,
		IdeaID:    ideaID,
		StyleID:   styleID,
		Idea:      ideaTitle,
		Style:     styleName,
		Text:      text,
		CreatedAt: now,
	}, nil
}

// findOrCreateRef returns the id of the row in table whose column equals
// value. Concurrent inserts of the same value are resolved by the UNIQUE
// constraint: the losing insert returns no row and the winner is re-read.
// table and column are compile-time constants, never user input.
func findOrCreateRef(ctx context.Context, tx *sql.Tx, table, column, value string) (int64, error) {
	selectQ := fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", table, column)

	var id int64
	err := tx.QueryRowContext(ctx, selectQ, value).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	insertQ := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?) ON CONFLICT(%s) DO NOTHING RETURNING id", table, column, column)
	err = tx.QueryRowContext(ctx, insertQ, value).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	// Lost the race: read the row the other writer created.
	if err := tx.QueryRowContext(ctx, selectQ, value).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

const postColumns = `p.id, p.channel_id, p.idea_id, p.style_id, i.title, s.name, p.text, p.created_at`

const postJoins = `FROM posts p
		JOIN ideas i ON p.idea_id = i.id
		JOIN styles s ON p.style_id = s.id`

// GetPost returns a single post by id.
func (s *SQLiteStore) GetPost(ctx context.Context, postID int64) (*Post, error) {
	var p Post
	err := s.db.QueryRowContext(ctx,
		"SELECT "+postColumns+" "+postJoins+" WHERE p.id = ?", postID,
	).Scan(&p.ID, &p.ChannelID, &p.IdeaID, &p.StyleID, &p.Idea, &p.Style, &p.Text, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &p, nil
}

// ListRecentPosts returns up to limit posts of a channel, newest first.
func (s *SQLiteStore) ListRecentPosts(ctx context.Context, channelID int64, limit int) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+postColumns+" "+postJoins+`
		WHERE p.channel_id = ?
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT ?`, channelID, limit)
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

// CountPosts returns the number of posts stored for a channel.
func (s *SQLiteStore) CountPosts(ctx context.Context, channelID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts WHERE channel_id = ?", channelID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

// AddEvent appends an entry to the user's activity log.
func (s *SQLiteStore) AddEvent(ctx context.Context, userID int64, postID *int64, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (user_id, post_id, event_type, created_at) VALUES (?, ?, ?, ?)",
		userID, postID, eventType, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add event: %w", err)
	}
	return nil
}

// ListEvents returns a user's most recent events, newest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, userID int64, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, post_id, event_type, created_at FROM events WHERE user_id = ? ORDER BY id DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var postID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.UserID, &postID, &e.EventType, &e.CreatedAt); err != nil {
			return nil, err
		}
		if postID.Valid {
			e.PostID = &postID.Int64
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
