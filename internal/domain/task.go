package domain

import "time"

type Task struct {
	ID        int64     `json:"id"`
	Owner     string    `json:"owner"`
	Title     string    `json:"title"`
	DueAt     time.Time `json:"due_at"`
	CreatedAt time.Time `json:"created_at"`
	Done      bool      `json:"done"`
	Sent      SentFlags `json:"sent"`
}

// SentFlags records which reminder thresholds have already been delivered.
// Flags only ever go from false to true.
type SentFlags struct {
	ThreeHours  bool `json:"3h"`
	OneHour     bool `json:"1h"`
	FiveMinutes bool `json:"5m"`
	Due         bool `json:"0"`
}

func (f SentFlags) Has(th Threshold) bool {
	switch th {
	case Threshold3h:
		return f.ThreeHours
	case Threshold1h:
		return f.OneHour
	case Threshold5m:
		return f.FiveMinutes
	case Threshold0:
		return f.Due
	}
	return false
}

// With returns a copy of f with the flag for th set.
func (f SentFlags) With(th Threshold) SentFlags {
	switch th {
	case Threshold3h:
		f.ThreeHours = true
	case Threshold1h:
		f.OneHour = true
	case Threshold5m:
		f.FiveMinutes = true
	case Threshold0:
		f.Due = true
	}
	return f
}
