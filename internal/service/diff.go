package service

import (
	"log"
	"time"

	"streamwatch/internal/timeutil"
	"streamwatch/internal/tmdb"
)

// MetadataClient is the slice of the TMDB client the pipeline needs
type MetadataClient interface {
	GetSeriesDetails(tmdbID int) (*tmdb.SeriesDetails, error)
	GetSeasonEpisodes(tmdbID, seasonNumber int) ([]tmdb.Episode, error)
}

// DiffEngine determines which episodes of a series are new relative to a
// user's watch cursor.
type DiffEngine struct {
	client MetadataClient
}

// NewDiffEngine creates a new DiffEngine
func NewDiffEngine(client MetadataClient) *DiffEngine {
	return &DiffEngine{client: client}
}

// FindNewEpisodes returns the episodes of the series that are strictly after
// the (lastSeason, lastEpisode) cursor and have already aired.
//
// Only the cursor season and the one after it are scanned; a season cannot
// exist upstream if the one before it doesn't, so a 404 stops the scan. Any
// other gateway failure also stops the scan for this run — the next
// scheduled scan retries from current state. Result order is not guaranteed.
func (e *DiffEngine) FindNewEpisodes(seriesID, lastSeason, lastEpisode int) []tmdb.Episode {
	var newEpisodes []tmdb.Episode
	now := timeutil.Now().UTC()

	for season := lastSeason; season <= lastSeason+1; season++ {
		episodes, err := e.client.GetSeasonEpisodes(seriesID, season)
		if err != nil {
			if !tmdb.IsNotFound(err) {
				log.Printf("[Scan] Error fetching season %d of series %d: %v", season, seriesID, err)
			}
			break
		}

		for _, ep := range episodes {
			if !afterCursor(ep, lastSeason, lastEpisode) {
				continue
			}
			if !hasAired(ep, now) {
				continue
			}
			newEpisodes = append(newEpisodes, ep)
		}
	}

	return newEpisodes
}

// afterCursor reports whether the episode is strictly past the watch cursor
func afterCursor(ep tmdb.Episode, lastSeason, lastEpisode int) bool {
	if ep.SeasonNumber > lastSeason {
		return true
	}
	return ep.SeasonNumber == lastSeason && ep.EpisodeNumber > lastEpisode
}

// hasAired reports whether the episode's air date is set and not in the
// future. A missing or malformed air date counts as not aired.
func hasAired(ep tmdb.Episode, now time.Time) bool {
	if ep.AirDate == "" {
		return false
	}
	aired, err := time.ParseInLocation(time.DateOnly, ep.AirDate, time.UTC)
	if err != nil {
		return false
	}
	return !aired.After(now)
}
