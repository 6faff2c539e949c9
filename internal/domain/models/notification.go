package models

import "time"

type NotificationKind string

const (
	NotifyTradeOpen    NotificationKind = "TRADE_OPEN"
	NotifyTradeClose   NotificationKind = "TRADE_CLOSE"
	NotifyDailySummary NotificationKind = "DAILY_SUMMARY"
	NotifyError        NotificationKind = "ERROR"
	NotifyRSIExtreme   NotificationKind = "RSI_EXTREME"
	NotifyLowRisk      NotificationKind = "LOW_RISK"
	NotifyOptimization NotificationKind = "OPTIMIZATION"
	NotifyInfo         NotificationKind = "INFO"
)

type Notification struct {
	Kind   NotificationKind `json:"kind"`
	Symbol string           `json:"symbol,omitempty"`
	Text   string           `json:"text"`
	At     time.Time        `json:"at"`
}
