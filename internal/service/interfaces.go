package service

// ScanReporter defines capability to report completed scan runs to an admin
// channel.
type ScanReporter interface {
	SendScanReport(usersChecked, newEpisodes, notificationsSent int) error
}
