// Package storage holds what every task store backend shares: the error
// values callers branch on and the threshold-to-column table.
package storage

import (
	"errors"
	"fmt"

	"example.com/remindbot/internal/domain"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("store unavailable")
)

var sentColumns = map[domain.Threshold]string{
	domain.Threshold3h: "sent_3h",
	domain.Threshold1h: "sent_1h",
	domain.Threshold5m: "sent_5m",
	domain.Threshold0:  "sent_0",
}

// SentColumn returns the persisted column backing the flag for th.
func SentColumn(th domain.Threshold) (string, error) {
	col, ok := sentColumns[th]
	if !ok {
		return "", fmt.Errorf("unknown threshold %d", int(th))
	}
	return col, nil
}
