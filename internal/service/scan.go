package service

import (
	"fmt"
	"log"

	"streamwatch/internal/models"
	"streamwatch/internal/repository"
)

// ScanResult contains the aggregate counters of one scan run. Counters are
// accumulated in memory and reported together; a scan never partially
// commits its result.
type ScanResult struct {
	UsersChecked      int `json:"usersChecked"`
	NewEpisodes       int `json:"newEpisodes"`
	NotificationsSent int `json:"notificationsSent"`
}

// ScanService walks every active user's watched series, diffs them against
// upstream season data, and dispatches notifications for newly aired
// episodes.
type ScanService struct {
	users      *repository.UserRepository
	entries    *repository.WatchEntryRepository
	subs       *repository.PushSubscriptionRepository
	diff       *DiffEngine
	dispatcher *Dispatcher
	client     MetadataClient
}

// NewScanService creates a new ScanService
func NewScanService(
	users *repository.UserRepository,
	entries *repository.WatchEntryRepository,
	subs *repository.PushSubscriptionRepository,
	diff *DiffEngine,
	dispatcher *Dispatcher,
	client MetadataClient,
) *ScanService {
	return &ScanService{
		users:      users,
		entries:    entries,
		subs:       subs,
		diff:       diff,
		dispatcher: dispatcher,
		client:     client,
	}
}

// Run executes one scan pass over all eligible users. Per-series failures
// are isolated and logged; only a failure to load the candidate set aborts
// the run.
func (s *ScanService) Run() (*ScanResult, error) {
	log.Println("[Scan] Starting new episodes check...")

	users, err := s.users.GetAllActive()
	if err != nil {
		return nil, fmt.Errorf("failed to load active users: %w", err)
	}

	log.Printf("[Scan] Found %d active users", len(users))
	result := &ScanResult{UsersChecked: len(users)}

	for _, user := range users {
		subs, err := s.subs.GetEnabledNewEpisodesByUser(user.ID)
		if err != nil {
			log.Printf("[Scan] Failed to load subscriptions for user %s: %v", user.Email, err)
			continue
		}
		if len(subs) == 0 {
			// Nothing can be delivered, skip the diffing work.
			continue
		}

		entries, err := s.entries.GetSeriesEntriesByUser(user.ID)
		if err != nil {
			log.Printf("[Scan] Failed to load watch entries for user %s: %v", user.Email, err)
			continue
		}

		cursors := DeriveWatchCursors(entries)
		log.Printf("[Scan] User %s is watching %d series", user.Email, len(cursors))

		for seriesID, cursor := range cursors {
			found, sent := s.checkSeries(user, seriesID, cursor, subs)
			result.NewEpisodes += found
			if sent {
				result.NotificationsSent++
			}
		}
	}

	log.Printf("[Scan] Job completed. New episodes: %d, Notifications sent: %d",
		result.NewEpisodes, result.NotificationsSent)
	return result, nil
}

// checkSeries evaluates one (user, series) pair. Failures here must never
// abort the caller's loop, so a panic is recovered and logged.
func (s *ScanService) checkSeries(
	user models.User,
	seriesID int,
	cursor models.WatchCursor,
	subs []models.PushSubscription,
) (found int, sent bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Scan] Error checking series %d for user %s: %v", seriesID, user.Email, r)
			found, sent = 0, false
		}
	}()

	newEpisodes := s.diff.FindNewEpisodes(seriesID, cursor.Season, cursor.Episode)
	if len(newEpisodes) == 0 {
		return 0, false
	}

	log.Printf("[Scan] Found %d new episodes for series %d", len(newEpisodes), seriesID)

	sent = s.dispatcher.SendNewEpisodeNotification(user.ID, subs, s.seriesName(seriesID), newEpisodes, seriesID)
	return len(newEpisodes), sent
}

// seriesName resolves the display name for a series, falling back to a
// placeholder so a metadata hiccup never suppresses the notification.
func (s *ScanService) seriesName(seriesID int) string {
	details, err := s.client.GetSeriesDetails(seriesID)
	if err != nil || details.Name == "" {
		log.Printf("[Scan] Error fetching details for series %d: %v", seriesID, err)
		return "Unknown Series"
	}
	return details.Name
}

// DeriveWatchCursors collapses a user's watch entries into the furthest
// recorded (season, episode) position per series. The maximum is taken by
// (season, episode) lexicographic order, not recency. Entries without
// progress values compare as (0, 0) but store as (1, 1).
func DeriveWatchCursors(entries []models.WatchEntry) map[int]models.WatchCursor {
	cursors := make(map[int]models.WatchCursor)
	for _, entry := range entries {
		existing, ok := cursors[entry.TMDBID]
		if ok && !pastCursor(entry, existing) {
			continue
		}
		cursors[entry.TMDBID] = models.WatchCursor{
			Season:  defaultIfZero(entry.Season),
			Episode: defaultIfZero(entry.Episode),
		}
	}
	return cursors
}

func pastCursor(entry models.WatchEntry, cursor models.WatchCursor) bool {
	if entry.Season > cursor.Season {
		return true
	}
	return entry.Season == cursor.Season && entry.Episode > cursor.Episode
}

func defaultIfZero(n int) int {
	if n == 0 {
		return 1
	}
	return n
}
