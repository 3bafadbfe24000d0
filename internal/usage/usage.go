// Package usage implements the append-only AI usage ledger. Every admitted
// chat request writes exactly one record after its stream completes; quota
// decisions and the stats endpoint read from the same table.
package usage

import "time"

// Principal kinds recorded in the ledger.
const (
	KindRegistered = "registered"
	KindGuest      = "guest"
)

// Record is one immutable ledger row.
type Record struct {
	ID            string         `json:"id"`
	PrincipalID   string         `json:"principal_id"`   // User ID or guest fingerprint.
	PrincipalKind string         `json:"principal_kind"` // KindRegistered or KindGuest.
	UsageType     string         `json:"usage_type"`     // e.g. "diagram_chat".
	TokensUsed    int            `json:"tokens_used"`
	Model         string         `json:"model"`
	Success       bool           `json:"success"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Stats summarizes a user's ledger history.
type Stats struct {
	TotalUsage      int      `json:"totalUsage"`
	SuccessfulUsage int      `json:"successfulUsage"`
	TotalTokens     int      `json:"totalTokens"`
	RecentUsage     []Record `json:"recentUsage"`
}

// Limits reports a caller's current admission state alongside stats.
type Limits struct {
	CanUse         bool `json:"canUse"`
	RemainingUsage int  `json:"remainingUsage"`
	Limit          int  `json:"limit"`
	UsageCount     int  `json:"usageCount"`
}
