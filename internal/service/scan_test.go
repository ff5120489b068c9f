package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamwatch/internal/models"
	"streamwatch/internal/push"
	"streamwatch/internal/repository"
	"streamwatch/internal/tmdb"
)

func TestDeriveWatchCursorsTakesMaxPosition(t *testing.T) {
	// Ordered most-recently-updated first, as the repository returns them.
	// The max by (season, episode) wins, not the most recent row.
	entries := []models.WatchEntry{
		{TMDBID: 100, Type: models.MediaTypeSeries, Season: 1, Episode: 5},
		{TMDBID: 100, Type: models.MediaTypeSeries, Season: 2, Episode: 1},
		{TMDBID: 100, Type: models.MediaTypeSeries, Season: 1, Episode: 2},
	}

	cursors := DeriveWatchCursors(entries)
	require.Len(t, cursors, 1)
	assert.Equal(t, models.WatchCursor{Season: 2, Episode: 1}, cursors[100])
}

func TestDeriveWatchCursorsDefaultsMissingProgress(t *testing.T) {
	entries := []models.WatchEntry{
		{TMDBID: 100, Type: models.MediaTypeSeries}, // no recorded position
	}

	cursors := DeriveWatchCursors(entries)
	assert.Equal(t, models.WatchCursor{Season: 1, Episode: 1}, cursors[100])
}

func TestDeriveWatchCursorsSeparateSeries(t *testing.T) {
	entries := []models.WatchEntry{
		{TMDBID: 100, Type: models.MediaTypeSeries, Season: 1, Episode: 3},
		{TMDBID: 200, Type: models.MediaTypeSeries, Season: 4, Episode: 8},
	}

	cursors := DeriveWatchCursors(entries)
	require.Len(t, cursors, 2)
	assert.Equal(t, models.WatchCursor{Season: 1, Episode: 3}, cursors[100])
	assert.Equal(t, models.WatchCursor{Season: 4, Episode: 8}, cursors[200])
}

// For any set of entries of one series, the derived cursor is at least as
// far as every entry by (season, episode) lexicographic order.
func TestDeriveWatchCursorsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("cursor dominates every entry", prop.ForAll(
		func(seasons, episodes []int) bool {
			n := len(seasons)
			if len(episodes) < n {
				n = len(episodes)
			}
			if n == 0 {
				return true
			}

			var entries []models.WatchEntry
			for i := 0; i < n; i++ {
				entries = append(entries, models.WatchEntry{
					TMDBID:  100,
					Type:    models.MediaTypeSeries,
					Season:  seasons[i],
					Episode: episodes[i],
				})
			}

			cursor := DeriveWatchCursors(entries)[100]
			for i := 0; i < n; i++ {
				s, e := seasons[i], episodes[i]
				if s > cursor.Season || (s == cursor.Season && e > cursor.Episode) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(1, 10)),
		gen.SliceOf(gen.IntRange(1, 20)),
	))

	properties.TestingRun(t)
}

// scanEnv wires a ScanService against a temp database, a mock metadata
// gateway, and a fake push sender.
type scanEnv struct {
	users   *repository.UserRepository
	entries *repository.WatchEntryRepository
	subs    *repository.PushSubscriptionRepository
	sender  *fakeSender
	scan    *ScanService
}

func newScanEnv(t *testing.T, gateway http.HandlerFunc) *scanEnv {
	t.Helper()

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "scan_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	server := httptest.NewServer(gateway)
	t.Cleanup(server.Close)

	users := repository.NewUserRepository(db)
	entries := repository.NewWatchEntryRepository(db)
	subs := repository.NewPushSubscriptionRepository(db)

	client := tmdb.NewClient(server.URL, "test-token")
	sender := newFakeSender()
	dispatcher := NewDispatcher(sender, subs)
	diff := NewDiffEngine(client)

	return &scanEnv{
		users:   users,
		entries: entries,
		subs:    subs,
		sender:  sender,
		scan:    NewScanService(users, entries, subs, diff, dispatcher, client),
	}
}

func (env *scanEnv) addUser(t *testing.T, email string, active bool) *models.User {
	t.Helper()
	user := &models.User{Email: email, Name: "Test User", IsActive: active}
	require.NoError(t, env.users.Create(user))
	return user
}

func (env *scanEnv) addEntry(t *testing.T, userID string, tmdbID, season, episode int) {
	t.Helper()
	require.NoError(t, env.entries.Create(&models.WatchEntry{
		UserID: userID,
		TMDBID: tmdbID,
		Type:   models.MediaTypeSeries,
		Season: season, Episode: episode,
	}))
}

func (env *scanEnv) addSubscription(t *testing.T, userID, endpoint string) {
	t.Helper()
	sub := &models.PushSubscription{
		Endpoint: endpoint,
		P256dh:   "p256dh-key",
		Auth:     "auth-secret",
		UserID:   userID,
	}
	require.NoError(t, env.subs.Upsert(sub))
}

// series42Gateway reproduces the end-to-end scenario: season 1 has episodes
// 1-4 with E4 aired yesterday, season 2 does not exist yet.
func series42Gateway(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tv/42/season/1":
			json.NewEncoder(w).Encode(map[string]any{
				"episodes": []map[string]any{
					episodeJSON(1, 1, "One", "2025-01-01"),
					episodeJSON(1, 2, "Two", "2025-01-08"),
					episodeJSON(1, 3, "Three", "2025-01-15"),
					episodeJSON(1, 4, "The Comeback", "2025-03-14"),
				},
			})
		case "/tv/42/season/2":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"status_code": 34, "status_message": "not found"})
		case "/tv/42":
			json.NewEncoder(w).Encode(map[string]any{"id": 42, "name": "Test Series"})
		default:
			t.Errorf("unexpected gateway request: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestScanEndToEnd(t *testing.T) {
	pinClock(t)

	env := newScanEnv(t, series42Gateway(t))
	user := env.addUser(t, "viewer@example.com", true)
	env.addEntry(t, user.ID, 42, 1, 3)
	env.addSubscription(t, user.ID, "https://push.example/device-1")

	result, err := env.scan.Run()
	require.NoError(t, err)

	assert.Equal(t, 1, result.UsersChecked)
	assert.Equal(t, 1, result.NewEpisodes)
	assert.Equal(t, 1, result.NotificationsSent)

	var payload push.Payload
	require.NoError(t, json.Unmarshal(env.sender.payloads["https://push.example/device-1"], &payload))
	assert.Equal(t, "New episode of Test Series!", payload.Title)
	assert.Equal(t, "S1E4: The Comeback", payload.Body)
	assert.Equal(t, "new-episode-42", payload.Tag)

	// Healthy subscription must remain untouched.
	sub, err := env.subs.GetByEndpoint("https://push.example/device-1")
	require.NoError(t, err)
	assert.NotNil(t, sub)
}

func TestScanIsIdempotentWithoutStateChanges(t *testing.T) {
	pinClock(t)

	env := newScanEnv(t, series42Gateway(t))
	user := env.addUser(t, "viewer@example.com", true)
	env.addEntry(t, user.ID, 42, 1, 3)
	env.addSubscription(t, user.ID, "https://push.example/device-1")

	first, err := env.scan.Run()
	require.NoError(t, err)
	second, err := env.scan.Run()
	require.NoError(t, err)

	// No notified-episodes ledger exists: identical inputs give identical
	// results on consecutive runs.
	assert.Equal(t, first, second)
}

func TestScanSkipsUsersWithoutSubscriptions(t *testing.T) {
	pinClock(t)

	gatewayCalls := 0
	env := newScanEnv(t, func(w http.ResponseWriter, r *http.Request) {
		gatewayCalls++
		w.WriteHeader(http.StatusNotFound)
	})

	user := env.addUser(t, "nosubs@example.com", true)
	env.addEntry(t, user.ID, 42, 1, 3)

	result, err := env.scan.Run()
	require.NoError(t, err)

	assert.Equal(t, 1, result.UsersChecked)
	assert.Zero(t, result.NewEpisodes)
	assert.Zero(t, gatewayCalls)
}

func TestScanIgnoresInactiveUsers(t *testing.T) {
	pinClock(t)

	env := newScanEnv(t, series42Gateway(t))
	user := env.addUser(t, "inactive@example.com", false)
	env.addEntry(t, user.ID, 42, 1, 3)
	env.addSubscription(t, user.ID, "https://push.example/device-1")

	result, err := env.scan.Run()
	require.NoError(t, err)

	assert.Zero(t, result.UsersChecked)
	assert.Zero(t, result.NotificationsSent)
}

func TestScanSeriesNameFallback(t *testing.T) {
	pinClock(t)

	env := newScanEnv(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tv/42/season/1":
			json.NewEncoder(w).Encode(map[string]any{
				"episodes": []map[string]any{episodeJSON(1, 4, "Four", "2025-03-14")},
			})
		case "/tv/42/season/2":
			w.WriteHeader(http.StatusNotFound)
		default:
			// Details lookup fails; the notification must still go out.
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	user := env.addUser(t, "viewer@example.com", true)
	env.addEntry(t, user.ID, 42, 1, 3)
	env.addSubscription(t, user.ID, "https://push.example/device-1")

	result, err := env.scan.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, result.NotificationsSent)

	var payload push.Payload
	require.NoError(t, json.Unmarshal(env.sender.payloads["https://push.example/device-1"], &payload))
	assert.Equal(t, "New episode of Unknown Series!", payload.Title)
}

func TestScanOneSeriesFailureDoesNotAbortOthers(t *testing.T) {
	pinClock(t)

	env := newScanEnv(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tv/42/season/1", "/tv/42/season/2":
			// Broken series: every season fetch fails.
			w.WriteHeader(http.StatusInternalServerError)
		case "/tv/99/season/2":
			json.NewEncoder(w).Encode(map[string]any{
				"episodes": []map[string]any{episodeJSON(2, 6, "Six", "2025-03-10")},
			})
		case "/tv/99/season/3":
			w.WriteHeader(http.StatusNotFound)
		case "/tv/99":
			json.NewEncoder(w).Encode(map[string]any{"id": 99, "name": "Other Series"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	user := env.addUser(t, "viewer@example.com", true)
	env.addEntry(t, user.ID, 42, 1, 3)
	env.addEntry(t, user.ID, 99, 2, 5)
	env.addSubscription(t, user.ID, "https://push.example/device-1")

	result, err := env.scan.Run()
	require.NoError(t, err)

	assert.Equal(t, 1, result.NewEpisodes)
	assert.Equal(t, 1, result.NotificationsSent)
}
