package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDataUnavailable marks a single data source that could not be reached.
// Callers substitute documented defaults for that source instead of aborting.
var ErrDataUnavailable = errors.New("market data unavailable")

// ErrQuoteUnavailable marks one venue that had no quote for a pair.
var ErrQuoteUnavailable = errors.New("quote unavailable")

// SuspendedError is returned by the RiskGate while the circuit breaker is
// open. It carries every active trigger reason and the estimated recovery
// time; nothing is ever silently approved while trading is suspended.
type SuspendedError struct {
	Reasons     []string
	ActivatedAt time.Time
	RecoveryETA time.Time
}

func (e *SuspendedError) Error() string {
	return fmt.Sprintf("trading suspended: %s (recovery eta %s)",
		strings.Join(e.Reasons, "; "), e.RecoveryETA.Format(time.RFC3339))
}

// IsSuspended reports whether err is a trading-suspended error.
func IsSuspended(err error) bool {
	var se *SuspendedError
	return errors.As(err, &se)
}
