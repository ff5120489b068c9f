package notify

import (
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"streamwatch/internal/timeutil"
)

// TelegramReporter sends scan run summaries to an admin chat. It is a
// send-only bot; no poller is started.
type TelegramReporter struct {
	bot    *tele.Bot
	chatID int64
}

// NewTelegramReporter creates a TelegramReporter for the given bot token and
// admin chat ID.
func NewTelegramReporter(token string, chatID int64) (*TelegramReporter, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram reporter not configured: missing bot token or chat ID")
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:     token,
		ParseMode: tele.ModeHTML,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramReporter{bot: bot, chatID: chatID}, nil
}

// SendScanReport sends a summary of a completed scan run
func (r *TelegramReporter) SendScanReport(usersChecked, newEpisodes, notificationsSent int) error {
	_, err := r.bot.Send(tele.ChatID(r.chatID), FormatScanReport(usersChecked, newEpisodes, notificationsSent))
	if err != nil {
		return fmt.Errorf("failed to send scan report: %w", err)
	}
	return nil
}

// FormatScanReport formats scan counters into a report message.
// Exported for testing purposes.
func FormatScanReport(usersChecked, newEpisodes, notificationsSent int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("📺 <b>New episode scan</b> (%s)\n\n", timeutil.Now().Format(time.DateOnly)))
	sb.WriteString(fmt.Sprintf("Users checked: %d\n", usersChecked))

	if newEpisodes == 0 {
		sb.WriteString("No new episodes found 🎬")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("New episodes found: %d\n", newEpisodes))
	sb.WriteString(fmt.Sprintf("Notifications sent: %d", notificationsSent))
	return sb.String()
}
