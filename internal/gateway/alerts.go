package gateway

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// AlertSeverity classifies how urgently an operator needs to see an alert.
type AlertSeverity string

const (
	AlertSeverityCritical AlertSeverity = "CRITICAL"
	AlertSeverityWarning  AlertSeverity = "WARNING"
	AlertSeverityInfo     AlertSeverity = "INFO"
)

// AlertCategory groups alerts by the subsystem that raised them.
type AlertCategory string

const (
	AlertCategoryOrder       AlertCategory = "ORDER"
	AlertCategoryTransfer    AlertCategory = "TRANSFER"
	AlertCategoryBalance     AlertCategory = "BALANCE"
	AlertCategoryAuth        AlertCategory = "AUTH"
	AlertCategoryNetwork     AlertCategory = "NETWORK"
	AlertCategoryRateLimit   AlertCategory = "RATE_LIMIT"
	AlertCategoryExecution   AlertCategory = "EXECUTION"
)

// Alert is a single structured notification.
type Alert struct {
	Severity  AlertSeverity
	Category  AlertCategory
	Message   string
	Err       error
	Venue     string
	Context   map[string]any
	Timestamp time.Time
}

// AlertSink forwards a critical alert to an operator-facing channel. A nil
// AlertSink is valid: AlertManager then only logs.
type AlertSink interface {
	Notify(ctx context.Context, alert Alert) error
}

// AlertManager logs every alert at a severity-appropriate level and, for
// CRITICAL alerts, forwards to the configured AlertSink.
type AlertManager struct {
	log  zerolog.Logger
	sink AlertSink
}

// NewAlertManager builds a manager that always logs and, if sink is
// non-nil, also forwards critical alerts there.
func NewAlertManager(log zerolog.Logger, sink AlertSink) *AlertManager {
	return &AlertManager{log: log, sink: sink}
}

// SendAlert logs alert and, for CRITICAL severity, best-effort forwards it
// to the sink — a sink failure is logged but never returned, since an
// alerting failure must not interrupt the caller's control flow.
func (m *AlertManager) SendAlert(ctx context.Context, alert Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	event := m.log.With().
		Str("severity", string(alert.Severity)).
		Str("category", string(alert.Category)).
		Str("venue", alert.Venue).
		Time("timestamp", alert.Timestamp)
	for k, v := range alert.Context {
		event = event.Interface(k, v)
	}
	logger := event.Logger()

	switch alert.Severity {
	case AlertSeverityCritical:
		logger.Error().Err(alert.Err).Msg(alert.Message)
	case AlertSeverityWarning:
		logger.Warn().Err(alert.Err).Msg(alert.Message)
	default:
		logger.Info().Msg(alert.Message)
	}

	if alert.Severity == AlertSeverityCritical && m.sink != nil {
		if err := m.sink.Notify(ctx, alert); err != nil {
			logger.Warn().Err(err).Msg("failed to forward critical alert to sink")
		}
	}
}

// TelegramSink forwards critical alerts as chat messages, the operator
// interface's out-of-band channel for faults no log aggregator catches
// fast enough.
type TelegramSink struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSink builds a sink posting to chatID using an already
// authenticated bot client.
func NewTelegramSink(bot *tgbotapi.BotAPI, chatID int64) *TelegramSink {
	return &TelegramSink{bot: bot, chatID: chatID}
}

// Notify sends alert as a plain-text Telegram message.
func (s *TelegramSink) Notify(_ context.Context, alert Alert) error {
	text := "[" + string(alert.Severity) + "] " + string(alert.Category) + " (" + alert.Venue + "): " + alert.Message
	if alert.Err != nil {
		text += " — " + alert.Err.Error()
	}
	msg := tgbotapi.NewMessage(s.chatID, text)
	_, err := s.bot.Send(msg)
	return err
}
