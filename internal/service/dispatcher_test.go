package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamwatch/internal/models"
	"streamwatch/internal/push"
	"streamwatch/internal/tmdb"
)

// fakeSender records deliveries and fails endpoints on demand
type fakeSender struct {
	mu       sync.Mutex
	payloads map[string][]byte // endpoint -> last payload
	failWith map[string]error  // endpoint -> error to return
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		payloads: make(map[string][]byte),
		failWith: make(map[string]error),
	}
}

func (f *fakeSender) Send(sub *models.PushSubscription, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failWith[sub.Endpoint]; ok {
		return err
	}
	f.payloads[sub.Endpoint] = payload
	return nil
}

func (f *fakeSender) deliveries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

// fakePruner records which subscription rows were deleted
type fakePruner struct {
	mu      sync.Mutex
	deleted []int64
}

func (f *fakePruner) DeleteByID(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func subscription(id int64, endpoint string) models.PushSubscription {
	return models.PushSubscription{
		ID:       id,
		Endpoint: endpoint,
		P256dh:   "p256dh-key",
		Auth:     "auth-secret",
		Enabled:  true,
	}
}

func episodes(positions ...[2]int) []tmdb.Episode {
	var eps []tmdb.Episode
	for _, p := range positions {
		eps = append(eps, tmdb.Episode{
			ID:            p[0]*1000 + p[1],
			Name:          fmt.Sprintf("Episode %d", p[1]),
			SeasonNumber:  p[0],
			EpisodeNumber: p[1],
			AirDate:       "2025-03-01",
		})
	}
	return eps
}

func TestDispatcherNoOpOnEmptyInputs(t *testing.T) {
	sender := newFakeSender()
	pruner := &fakePruner{}
	d := NewDispatcher(sender, pruner)

	sent := d.SendNewEpisodeNotification("u1", nil, "Show", episodes([2]int{1, 2}), 42)
	assert.False(t, sent)

	sent = d.SendNewEpisodeNotification("u1", []models.PushSubscription{subscription(1, "ep1")}, "Show", nil, 42)
	assert.False(t, sent)

	assert.Zero(t, sender.deliveries())
	assert.Empty(t, pruner.deleted)
}

func TestDispatcherSingularPayload(t *testing.T) {
	sender := newFakeSender()
	d := NewDispatcher(sender, &fakePruner{})

	sent := d.SendNewEpisodeNotification("u1",
		[]models.PushSubscription{subscription(1, "ep1")},
		"Breaking Sad", episodes([2]int{1, 4}), 42)
	require.True(t, sent)

	var payload push.Payload
	require.NoError(t, json.Unmarshal(sender.payloads["ep1"], &payload))
	assert.Equal(t, "New episode of Breaking Sad!", payload.Title)
	assert.Equal(t, "S1E4: Episode 4", payload.Body)
	assert.Equal(t, "/series/42", payload.URL)
	assert.Equal(t, "new-episode-42", payload.Tag)
	assert.False(t, payload.RequireInteraction)
	require.Len(t, payload.Actions, 1)
	assert.Equal(t, "view", payload.Actions[0].Action)
	assert.Equal(t, "Watch Now", payload.Actions[0].Title)
}

func TestDispatcherPluralPayloadUsesEarliestEpisode(t *testing.T) {
	sender := newFakeSender()
	d := NewDispatcher(sender, &fakePruner{})

	// Deliberately out of order; the body must name the earliest episode.
	eps := episodes([2]int{2, 1}, [2]int{1, 5}, [2]int{1, 4})
	sent := d.SendNewEpisodeNotification("u1",
		[]models.PushSubscription{subscription(1, "ep1")}, "Show", eps, 7)
	require.True(t, sent)

	var payload push.Payload
	require.NoError(t, json.Unmarshal(sender.payloads["ep1"], &payload))
	assert.Equal(t, "3 new episodes of Show!", payload.Title)
	assert.Equal(t, "Starting with S1E4", payload.Body)
}

func TestDispatcherPrunesGoneEndpoints(t *testing.T) {
	sender := newFakeSender()
	sender.failWith["dead"] = &push.StatusError{StatusCode: http.StatusGone}
	pruner := &fakePruner{}
	d := NewDispatcher(sender, pruner)

	subs := []models.PushSubscription{
		subscription(1, "alive-1"),
		subscription(2, "dead"),
		subscription(3, "alive-2"),
	}

	sent := d.SendNewEpisodeNotification("u1", subs, "Show", episodes([2]int{1, 2}), 42)
	assert.True(t, sent)
	assert.Equal(t, 2, sender.deliveries())
	assert.Equal(t, []int64{2}, pruner.deleted)
}

func TestDispatcherRetainsSubscriptionOnTransientFailure(t *testing.T) {
	sender := newFakeSender()
	sender.failWith["flaky"] = &push.StatusError{StatusCode: http.StatusTooManyRequests}
	pruner := &fakePruner{}
	d := NewDispatcher(sender, pruner)

	subs := []models.PushSubscription{
		subscription(1, "flaky"),
		subscription(2, "alive"),
	}

	sent := d.SendNewEpisodeNotification("u1", subs, "Show", episodes([2]int{1, 2}), 42)
	assert.True(t, sent)
	assert.Empty(t, pruner.deleted)
}

func TestDispatcherAllDeliveriesFail(t *testing.T) {
	sender := newFakeSender()
	sender.failWith["a"] = fmt.Errorf("connection refused")
	sender.failWith["b"] = &push.StatusError{StatusCode: http.StatusNotFound}
	pruner := &fakePruner{}
	d := NewDispatcher(sender, pruner)

	subs := []models.PushSubscription{
		subscription(1, "a"),
		subscription(2, "b"),
	}

	sent := d.SendNewEpisodeNotification("u1", subs, "Show", episodes([2]int{1, 2}), 42)
	assert.False(t, sent)
	assert.Equal(t, []int64{2}, pruner.deleted) // 404 pruned, network error retained
}
