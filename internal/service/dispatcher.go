package service

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"streamwatch/internal/models"
	"streamwatch/internal/push"
	"streamwatch/internal/tmdb"
)

// SubscriptionPruner removes subscription records whose endpoints the push
// service reports as permanently gone.
type SubscriptionPruner interface {
	DeleteByID(id int64) error
}

// Dispatcher formats new-episode notifications and fans them out to every
// subscribed device of a user.
type Dispatcher struct {
	sender push.Sender
	subs   SubscriptionPruner
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(sender push.Sender, subs SubscriptionPruner) *Dispatcher {
	return &Dispatcher{sender: sender, subs: subs}
}

// SendNewEpisodeNotification delivers one notification about the given new
// episodes to all subscriptions, concurrently and independently. It returns
// true if at least one delivery succeeded. Endpoints reported gone (404/410)
// are pruned as a side effect; other failures only log.
func (d *Dispatcher) SendNewEpisodeNotification(
	userID string,
	subscriptions []models.PushSubscription,
	seriesName string,
	newEpisodes []tmdb.Episode,
	seriesID int,
) bool {
	if len(subscriptions) == 0 || len(newEpisodes) == 0 {
		return false
	}

	sorted := make([]tmdb.Episode, len(newEpisodes))
	copy(sorted, newEpisodes)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].SeasonNumber != sorted[j].SeasonNumber {
			return sorted[i].SeasonNumber < sorted[j].SeasonNumber
		}
		return sorted[i].EpisodeNumber < sorted[j].EpisodeNumber
	})

	first := sorted[0]
	count := len(sorted)

	var title, body string
	if count == 1 {
		title = fmt.Sprintf("New episode of %s!", seriesName)
		body = fmt.Sprintf("S%dE%d: %s", first.SeasonNumber, first.EpisodeNumber, first.Name)
	} else {
		title = fmt.Sprintf("%d new episodes of %s!", count, seriesName)
		body = fmt.Sprintf("Starting with S%dE%d", first.SeasonNumber, first.EpisodeNumber)
	}

	payload := push.Payload{
		Title:              title,
		Body:               body,
		Icon:               "/icon-192x192.svg",
		Badge:              "/icon-192x192.svg",
		URL:                fmt.Sprintf("/series/%d", seriesID),
		Tag:                fmt.Sprintf("new-episode-%d", seriesID),
		RequireInteraction: false,
		Actions: []push.Action{
			{Action: "view", Title: "Watch Now"},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[Push] Failed to marshal payload for series %d: %v", seriesID, err)
		return false
	}

	// Fan out to every device; a slow or dead endpoint must not block the
	// others. Each goroutine owns exactly one result slot.
	results := make([]error, len(subscriptions))
	var wg sync.WaitGroup
	for i := range subscriptions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.sender.Send(&subscriptions[i], data)
		}(i)
	}
	wg.Wait()

	sent := false
	for i, sendErr := range results {
		if sendErr == nil {
			sent = true
			continue
		}

		sub := subscriptions[i]
		if push.IsGone(sendErr) {
			log.Printf("[Push] Removing dead subscription %d for user %s: %v", sub.ID, userID, sendErr)
			if delErr := d.subs.DeleteByID(sub.ID); delErr != nil {
				log.Printf("[Push] Failed to remove subscription %d: %v", sub.ID, delErr)
			}
			continue
		}

		// Transient failure, keep the subscription for the next run.
		log.Printf("[Push] Delivery to subscription %d failed for user %s: %v", sub.ID, userID, sendErr)
	}

	return sent
}
