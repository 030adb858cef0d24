// Package reminder decides which reminder thresholds a task has reached and
// what each notification says. It never touches storage.
package reminder

import (
	"fmt"
	"time"

	"example.com/remindbot/internal/domain"
)

// Thresholds lists every threshold in firing order.
var Thresholds = []domain.Threshold{
	domain.Threshold3h,
	domain.Threshold1h,
	domain.Threshold5m,
	domain.Threshold0,
}

// Firing returns the thresholds of task that are due at now and have not
// been sent, in firing order. Several may fire at once after downtime; none
// fire for a done task.
func Firing(task domain.Task, now time.Time) []domain.Threshold {
	if task.Done {
		return nil
	}
	var out []domain.Threshold
	for _, th := range Thresholds {
		if task.Sent.Has(th) {
			continue
		}
		if !now.Before(task.DueAt.Add(-th.Offset())) {
			out = append(out, th)
		}
	}
	return out
}

func Message(th domain.Threshold, title string) string {
	switch th {
	case domain.Threshold3h:
		return fmt.Sprintf("⏰ 3 hours left: %s", title)
	case domain.Threshold1h:
		return fmt.Sprintf("⏰ 1 hour left: %s", title)
	case domain.Threshold5m:
		return fmt.Sprintf("⚠️ 5 minutes left: %s", title)
	case domain.Threshold0:
		return fmt.Sprintf("🔔 Due now: %s", title)
	default:
		return fmt.Sprintf("⏰ Reminder: %s", title)
	}
}
