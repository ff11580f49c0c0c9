package storage

import "context"

// Store defines the storage interface for quill's data layer.
type Store interface {
	Close() error

	// Users
	FindOrCreateUser(ctx context.Context, externalID int64, displayName string) (*User, error)
	GetUserByExternalID(ctx context.Context, externalID int64) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)

	// Channels
	CreateChannel(ctx context.Context, userID int64, name string) (*Channel, error)
	GetChannel(ctx context.Context, channelID int64) (*Channel, error)
	ListChannels(ctx context.Context, userID int64) ([]Channel, error)
	FindChannelsByName(ctx context.Context, name string) ([]Channel, error)
	DeleteChannel(ctx context.Context, channelID int64) error

	// Posts
	AddPost(ctx context.Context, channelID int64, ideaTitle, styleName, text string) (*Post, error)
	GetPost(ctx context.Context, postID int64) (*Post, error)
	ListRecentPosts(ctx context.Context, channelID int64, limit int) ([]Post, error)
	CountPosts(ctx context.Context, channelID int64) (int, error)

	// Events
	AddEvent(ctx context.Context, userID int64, postID *int64, eventType string) error
	ListEvents(ctx context.Context, userID int64, limit int) ([]Event, error)
}
