package models

import (
	"math"
	"time"
)

// LowerThird is a broadcast graphic overlay. A nil Duration means the
// overlay stays until it is hidden.
type LowerThird struct {
	ID       string   `json:"id,omitempty"`
	Design   string   `json:"design"`
	Title    string   `json:"title"`
	Subtitle *string  `json:"subtitle"`
	Duration *float64 `json:"duration"`
}

// Clone returns a copy that shares no pointers with lt. Nil stays nil.
func (lt *LowerThird) Clone() *LowerThird {
	if lt == nil {
		return nil
	}
	out := *lt
	if lt.Subtitle != nil {
		s := *lt.Subtitle
		out.Subtitle = &s
	}
	if lt.Duration != nil {
		d := *lt.Duration
		out.Duration = &d
	}
	return &out
}

// maxDisplaySeconds is the longest duration a time.Duration can hold.
const maxDisplaySeconds = float64(math.MaxInt64) / float64(time.Second)

// DisplayDuration converts Duration to a time.Duration. ok is false for an
// indefinite overlay, including one longer than a time.Duration can hold.
func (lt *LowerThird) DisplayDuration() (d time.Duration, ok bool) {
	if lt == nil || lt.Duration == nil || *lt.Duration >= maxDisplaySeconds {
		return 0, false
	}
	return time.Duration(*lt.Duration * float64(time.Second)), true
}

// SubtitleOrEmpty returns the subtitle or "" when absent.
func (lt *LowerThird) SubtitleOrEmpty() string {
	if lt == nil || lt.Subtitle == nil {
		return ""
	}
	return *lt.Subtitle
}
