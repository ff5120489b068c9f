package models

import "time"

// MediaType distinguishes movie and series watch entries
type MediaType string

const (
	MediaTypeMovie  MediaType = "MOVIE"
	MediaTypeSeries MediaType = "SERIES"
)

// User represents a registered account
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// WatchEntry records that a user watched a title. Multiple entries may exist
// per (user, tmdb_id); the latest position is derived, not stored.
// Season and Episode are zero when the entry carries no progress values.
type WatchEntry struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	TMDBID    int       `json:"tmdb_id"`
	Type      MediaType `json:"type"`
	Season    int       `json:"season"`
	Episode   int       `json:"episode"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PushSubscription is a device's Web Push endpoint with its encryption keys.
// UserID is empty while the subscription is anonymous; it is claimed on the
// next subscribe call made with an authenticated session.
type PushSubscription struct {
	ID               int64     `json:"id"`
	Endpoint         string    `json:"endpoint"`
	P256dh           string    `json:"p256dh"`
	Auth             string    `json:"auth"`
	Enabled          bool      `json:"enabled"`
	NewEpisodes      bool      `json:"new_episodes"`
	WatchlistUpdates bool      `json:"watchlist_updates"`
	Recommendations  bool      `json:"recommendations"`
	UserID           string    `json:"user_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NotificationPreferences are the per-category flags shared by all of a
// user's subscriptions
type NotificationPreferences struct {
	Enabled          bool `json:"enabled"`
	NewEpisodes      bool `json:"newEpisodes"`
	WatchlistUpdates bool `json:"watchlistUpdates"`
	Recommendations  bool `json:"recommendations"`
}

// DefaultPreferences returns the flags reported when a user has no
// subscription rows yet.
func DefaultPreferences() NotificationPreferences {
	return NotificationPreferences{
		Enabled:          false,
		NewEpisodes:      true,
		WatchlistUpdates: true,
		Recommendations:  true,
	}
}

// WatchCursor is the furthest (season, episode) position a user has recorded
// for a series
type WatchCursor struct {
	Season  int `json:"season"`
	Episode int `json:"episode"`
}
