package quota

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge-ai/flowforge/internal/auth"
	"github.com/flowforge-ai/flowforge/internal/usage"
)

// Gate admits or rejects chat requests against the usage ledger.
type Gate struct {
	usage  *usage.Store
	cfg    Config
	logger *zap.Logger

	// now is swappable in tests.
	now func() time.Time
}

// NewGate creates a Gate backed by the given usage ledger.
func NewGate(us *usage.Store, cfg Config, logger *zap.Logger) *Gate {
	return &Gate{usage: us, cfg: cfg, logger: logger, now: time.Now}
}

// Resolve identifies the caller of a request. A request with valid
// bearer claims in its context is a registered principal; anything else
// is a guest keyed by IP fingerprint. An invalid or expired token does
// not reject the request, it just demotes the caller to guest.
func (g *Gate) Resolve(r *http.Request) Principal {
	if claims := auth.UserFromContext(r.Context()); claims != nil {
		return Principal{Kind: KindRegistered, UserID: claims.UserID}
	}
	return Principal{Kind: KindGuest, Fingerprint: Fingerprint(r)}
}

// Admit checks whether the principal may start a chat request. It only
// reads the ledger; recording happens after the stream finishes, so a
// rejected request never consumes quota.
func (g *Gate) Admit(ctx context.Context, p Principal) (Decision, error) {
	switch p.Kind {
	case KindRegistered:
		return g.admitRegistered(ctx, p.UserID)
	case KindGuest:
		return g.admitGuest(ctx, p.Fingerprint)
	default:
		return Decision{}, fmt.Errorf("unknown principal kind %q", p.Kind)
	}
}

func (g *Gate) admitRegistered(ctx context.Context, userID string) (Decision, error) {
	since := startOfUTCDay(g.now())
	count, err := g.usage.CountForUserSince(ctx, userID, since)
	if err != nil {
		return Decision{}, fmt.Errorf("admit user: %w", err)
	}
	return g.decide(g.cfg.RegisteredDaily, count), nil
}

func (g *Gate) admitGuest(ctx context.Context, fingerprint string) (Decision, error) {
	since := g.now().Add(-guestWindow)
	count, err := g.usage.CountForGuestSince(ctx, fingerprint, since)
	if err != nil {
		return Decision{}, fmt.Errorf("admit guest: %w", err)
	}
	d := g.decide(g.cfg.GuestMonthly, count)
	if !d.Allowed {
		last, err := g.usage.LastGuestUse(ctx, fingerprint)
		if err != nil {
			g.logger.Warn("last guest use lookup failed", zap.Error(err))
		} else {
			d.LastUsed = last
		}
	}
	return d, nil
}

func (g *Gate) decide(limit, count int) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:    count < limit,
		Limit:      limit,
		UsageCount: count,
		Remaining:  remaining,
	}
}

// UserLimits reports a registered user's current admission state in the
// shape the usage endpoint returns.
func (g *Gate) UserLimits(ctx context.Context, userID string) (usage.Limits, error) {
	d, err := g.admitRegistered(ctx, userID)
	if err != nil {
		return usage.Limits{}, err
	}
	return usage.Limits{
		CanUse:         d.Allowed,
		RemainingUsage: d.Remaining,
		Limit:          d.Limit,
		UsageCount:     d.UsageCount,
	}, nil
}
