package service

import (
	"fmt"
	"log"
	"time"

	"streamwatch/internal/timeutil"
)

// Scheduler triggers the daily new-episode scan. An external scheduler
// hitting the HTTP trigger works too; this one covers deployments without
// one.
type Scheduler struct {
	scan     *ScanService
	reporter ScanReporter // optional
	scanTime string       // Format: "HH:MM"
	stopChan chan struct{}
}

// NewScheduler creates a new Scheduler. The reporter may be nil.
func NewScheduler(scan *ScanService, reporter ScanReporter, scanTime string) *Scheduler {
	return &Scheduler{
		scan:     scan,
		reporter: reporter,
		scanTime: scanTime,
		stopChan: make(chan struct{}),
	}
}

// Start starts the daily scan loop
func (s *Scheduler) Start() {
	go s.runDailyScanScheduler()
	log.Printf("Scheduler started - Daily scan at %s", s.scanTime)
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

func (s *Scheduler) runDailyScanScheduler() {
	for {
		nextRun := s.calculateNextScanTime()
		duration := time.Until(nextRun)

		log.Printf("Next scan scheduled at %s (in %v)", nextRun.Format("2006-01-02 15:04:05"), duration.Round(time.Minute))

		select {
		case <-time.After(duration):
			s.runOnce()
		case <-s.stopChan:
			return
		}
	}
}

func (s *Scheduler) runOnce() {
	result, err := s.scan.Run()
	if err != nil {
		log.Printf("Scheduled scan failed: %v", err)
		return
	}

	if s.reporter != nil {
		if err := s.reporter.SendScanReport(result.UsersChecked, result.NewEpisodes, result.NotificationsSent); err != nil {
			log.Printf("Failed to send scan report: %v", err)
		}
	}
}

// calculateNextScanTime calculates the next time to run the scan
func (s *Scheduler) calculateNextScanTime() time.Time {
	now := timeutil.Now()

	hour, minute := 0, 0
	if s.scanTime != "" {
		fmt.Sscanf(s.scanTime, "%d:%d", &hour, &minute)
	}

	scanAt := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(scanAt) {
		scanAt = scanAt.Add(24 * time.Hour)
	}

	return scanAt
}
