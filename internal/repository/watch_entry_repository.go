package repository

import (
	"database/sql"

	"streamwatch/internal/models"
	"streamwatch/internal/timeutil"
)

// WatchEntryRepository handles WatchEntry database operations
type WatchEntryRepository struct {
	db *sql.DB
}

// NewWatchEntryRepository creates a new WatchEntryRepository
func NewWatchEntryRepository(sqliteDB *SQLiteDB) *WatchEntryRepository {
	return &WatchEntryRepository{db: sqliteDB.db}
}

// Create inserts a new WatchEntry. Season and episode are stored as NULL
// when zero so entries without progress stay distinguishable.
func (r *WatchEntryRepository) Create(entry *models.WatchEntry) error {
	now := timeutil.Now()
	result, err := r.db.Exec(`
		INSERT INTO watch_entries (user_id, tmdb_id, type, season, episode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.UserID, entry.TMDBID, entry.Type, nullableInt(entry.Season), nullableInt(entry.Episode), now, now)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = id
	entry.CreatedAt = now
	entry.UpdatedAt = now
	return nil
}

// GetSeriesEntriesByUser retrieves all SERIES entries for a user, most
// recently updated first.
func (r *WatchEntryRepository) GetSeriesEntriesByUser(userID string) ([]models.WatchEntry, error) {
	rows, err := r.db.Query(`
		SELECT id, user_id, tmdb_id, type, season, episode, created_at, updated_at
		FROM watch_entries
		WHERE user_id = ? AND type = ?
		ORDER BY updated_at DESC
	`, userID, models.MediaTypeSeries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.WatchEntry
	for rows.Next() {
		var entry models.WatchEntry
		var season, episode sql.NullInt64
		err := rows.Scan(&entry.ID, &entry.UserID, &entry.TMDBID, &entry.Type,
			&season, &episode, &entry.CreatedAt, &entry.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if season.Valid {
			entry.Season = int(season.Int64)
		}
		if episode.Valid {
			entry.Episode = int(episode.Int64)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func nullableInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
