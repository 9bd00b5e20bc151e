package models

import "time"

// HistoryAction is what an operator did to a channel's overlay.
type HistoryAction string

const (
	ActionShow HistoryAction = "show"
	ActionHide HistoryAction = "hide"
	ActionKill HistoryAction = "kill"
)

// HistoryEntry records one show, hide or kill on a channel.
type HistoryEntry struct {
	ID         string        `json:"id"`
	Channel    string        `json:"channel"`
	Action     HistoryAction `json:"action"`
	LowerThird *LowerThird   `json:"lower_third,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}
