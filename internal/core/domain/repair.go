package domain

import "time"

// GoodConfig is the last configuration confirmed to pass a test.
type GoodConfig struct {
	BaseURL    string `json:"baseUrl"`
	TagApplied bool   `json:"tagApplied"`
}

// RepairState is the durable per-indexer repair record. It is created
// lazily on first encounter and mutated at most once per decision cycle.
//
// CooldownUntil is set only once ConsecutiveFailures reaches the
// configured attempt limit, and cleared on success or forced retest.
type RepairState struct {
	ConsecutiveFailures int         `json:"consecutive_failures"`
	CooldownUntil       *time.Time  `json:"cooldown_until,omitempty"`
	LastKnownGood       *GoodConfig `json:"last_known_good,omitempty"`
	LastAttemptAt       *time.Time  `json:"last_attempt_at,omitempty"`
}

// InCooldown reports whether the indexer is still inside its cooldown window.
func (s RepairState) InCooldown(now time.Time) bool {
	return s.CooldownUntil != nil && now.Before(*s.CooldownUntil)
}
