package localstore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/fittrack/internal/domain"
)

// ChallengeKey holds the user's weight challenge. It never leaves the device.
func ChallengeKey(userID string) Key[domain.Challenge] {
	return NewKey("challenge:"+userID, func(c domain.Challenge) error { return c.Validate() })
}

// LastSeenVersionKey holds the last release notes version the user dismissed.
func LastSeenVersionKey(userID string) Key[string] {
	return NewKey("last_seen_version:"+userID, func(v string) error {
		if strings.TrimSpace(v) == "" {
			return errors.New("version must not be empty")
		}
		return nil
	})
}

// Consent records the analytics consent decision for this device.
type Consent struct {
	Analytics bool      `json:"analytics"`
	DecidedAt time.Time `json:"decided_at"`
}

// ConsentKey holds the device-wide consent decision.
func ConsentKey() Key[Consent] {
	return NewKey("consent", func(c Consent) error {
		if c.DecidedAt.IsZero() {
			return fmt.Errorf("%w: decided_at is required", domain.ErrValidation)
		}
		return nil
	})
}
