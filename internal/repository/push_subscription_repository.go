package repository

import (
	"database/sql"

	"streamwatch/internal/models"
	"streamwatch/internal/timeutil"
)

// PushSubscriptionRepository handles PushSubscription database operations
type PushSubscriptionRepository struct {
	db *sql.DB
}

// NewPushSubscriptionRepository creates a new PushSubscriptionRepository
func NewPushSubscriptionRepository(sqliteDB *SQLiteDB) *PushSubscriptionRepository {
	return &PushSubscriptionRepository{db: sqliteDB.db}
}

const subscriptionColumns = `id, endpoint, p256dh, auth, enabled, new_episodes,
	watchlist_updates, recommendations, user_id, created_at, updated_at`

// Upsert inserts a subscription or, when the endpoint already exists,
// refreshes its keys, re-enables it, and claims it for the given user when a
// user is known. An existing owner is never overwritten with anonymous.
func (r *PushSubscriptionRepository) Upsert(sub *models.PushSubscription) error {
	now := timeutil.Now()
	var userID any
	if sub.UserID != "" {
		userID = sub.UserID
	}
	_, err := r.db.Exec(`
		INSERT INTO push_subscriptions (endpoint, p256dh, auth, enabled, new_episodes,
			watchlist_updates, recommendations, user_id, created_at, updated_at)
		VALUES (?, ?, ?, TRUE, TRUE, TRUE, TRUE, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			p256dh = excluded.p256dh,
			auth = excluded.auth,
			enabled = TRUE,
			user_id = COALESCE(excluded.user_id, push_subscriptions.user_id),
			updated_at = excluded.updated_at
	`, sub.Endpoint, sub.P256dh, sub.Auth, userID, now, now)
	if err != nil {
		return err
	}

	stored, err := r.GetByEndpoint(sub.Endpoint)
	if err != nil {
		return err
	}
	if stored != nil {
		*sub = *stored
	}
	return nil
}

// GetByEndpoint retrieves a subscription by its endpoint
func (r *PushSubscriptionRepository) GetByEndpoint(endpoint string) (*models.PushSubscription, error) {
	sub, err := scanSubscription(r.db.QueryRow(`
		SELECT `+subscriptionColumns+`
		FROM push_subscriptions WHERE endpoint = ?
	`, endpoint))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// GetEnabledNewEpisodesByUser retrieves the subscriptions of a user that are
// enabled and opted in to new-episode notifications.
func (r *PushSubscriptionRepository) GetEnabledNewEpisodesByUser(userID string) ([]models.PushSubscription, error) {
	return r.query(`
		SELECT `+subscriptionColumns+`
		FROM push_subscriptions
		WHERE user_id = ? AND enabled = TRUE AND new_episodes = TRUE
	`, userID)
}

// GetLatestByUser retrieves the most recently updated subscription of a user,
// or nil when the user has none.
func (r *PushSubscriptionRepository) GetLatestByUser(userID string) (*models.PushSubscription, error) {
	sub, err := scanSubscription(r.db.QueryRow(`
		SELECT `+subscriptionColumns+`
		FROM push_subscriptions
		WHERE user_id = ?
		ORDER BY updated_at DESC
		LIMIT 1
	`, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// UpdatePreferencesByUser applies the given flags to every subscription of
// the user.
func (r *PushSubscriptionRepository) UpdatePreferencesByUser(userID string, prefs models.NotificationPreferences) error {
	_, err := r.db.Exec(`
		UPDATE push_subscriptions
		SET enabled = ?, new_episodes = ?, watchlist_updates = ?, recommendations = ?, updated_at = ?
		WHERE user_id = ?
	`, prefs.Enabled, prefs.NewEpisodes, prefs.WatchlistUpdates, prefs.Recommendations, timeutil.Now(), userID)
	return err
}

// DeleteByEndpoint removes a subscription. Deleting a missing endpoint is
// not an error; the reported bool says whether a row was removed.
func (r *PushSubscriptionRepository) DeleteByEndpoint(endpoint string) (bool, error) {
	result, err := r.db.Exec(`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteByID removes a subscription by row ID, used to prune endpoints the
// push service reports as gone.
func (r *PushSubscriptionRepository) DeleteByID(id int64) error {
	_, err := r.db.Exec(`DELETE FROM push_subscriptions WHERE id = ?`, id)
	return err
}

func (r *PushSubscriptionRepository) query(query string, args ...any) ([]models.PushSubscription, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.PushSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func scanSubscription(row rowScanner) (*models.PushSubscription, error) {
	sub := &models.PushSubscription{}
	var userID sql.NullString
	err := row.Scan(&sub.ID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.Enabled,
		&sub.NewEpisodes, &sub.WatchlistUpdates, &sub.Recommendations,
		&userID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		sub.UserID = userID.String
	}
	return sub, nil
}
