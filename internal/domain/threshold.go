package domain

import (
	"fmt"
	"time"
)

// Threshold identifies one of the fixed reminder points before a task is due.
// Values are ordered: a lower value fires earlier.
type Threshold int

const (
	Threshold3h Threshold = iota
	Threshold1h
	Threshold5m
	Threshold0
)

var thresholdOffsets = [...]time.Duration{
	Threshold3h: 3 * time.Hour,
	Threshold1h: time.Hour,
	Threshold5m: 5 * time.Minute,
	Threshold0:  0,
}

var thresholdNames = [...]string{
	Threshold3h: "T-3h",
	Threshold1h: "T-1h",
	Threshold5m: "T-5m",
	Threshold0:  "T-0",
}

func (th Threshold) Valid() bool {
	return th >= Threshold3h && th <= Threshold0
}

// Offset is how long before the due time the threshold is reached.
func (th Threshold) Offset() time.Duration {
	if !th.Valid() {
		return 0
	}
	return thresholdOffsets[th]
}

func (th Threshold) String() string {
	if !th.Valid() {
		return fmt.Sprintf("Threshold(%d)", int(th))
	}
	return thresholdNames[th]
}
