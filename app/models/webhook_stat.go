package models

import "time"

// Webhook outcome labels counted per day.
const (
	WebhookOutcomeProcessed        = "processed"
	WebhookOutcomeDuplicate        = "duplicate"
	WebhookOutcomeInvalidSignature = "invalid_signature"
	WebhookOutcomeInvalidPayload   = "invalid_payload"
	WebhookOutcomeInFlight         = "in_flight"
	WebhookOutcomeFailed           = "failed"
)

// WebhookDailyStat is the flushed count of one webhook outcome on one day.
type WebhookDailyStat struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Day       string    `gorm:"type:char(10);not null;index:ux_webhook_daily_stats_day_outcome,unique,priority:1" json:"day"`
	Outcome   string    `gorm:"type:varchar(32);not null;index:ux_webhook_daily_stats_day_outcome,unique,priority:2" json:"outcome"`
	Hits      int64     `gorm:"not null;default:0" json:"hits"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`
}
