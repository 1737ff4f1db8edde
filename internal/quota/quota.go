package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/podushkina/meetscribe/internal/observability"
)

type Outcome string

const (
	Allow                Outcome = "allow"
	WarnLowQuota         Outcome = "warn-low-quota"
	BlockExceedsQuota    Outcome = "block-exceeds-quota"
	BlockQuotaFull       Outcome = "block-quota-full"
	BlockUnknownDuration Outcome = "block-unknown-duration"
)

// Projected usage above this share of the quota needs confirmation.
const warnNumerator, warnDenominator = 9, 10

type Subscription struct {
	OwnerID      string `json:"owner_id"`
	Plan         string `json:"plan"`
	QuotaMinutes int    `json:"quota_minutes"`
	UsedMinutes  int    `json:"used_minutes"`
}

func (s Subscription) RemainingMinutes() int {
	if r := s.QuotaMinutes - s.UsedMinutes; r > 0 {
		return r
	}
	return 0
}

type Decision struct {
	Outcome          Outcome `json:"outcome"`
	Plan             string  `json:"plan"`
	Metered          bool    `json:"metered"`
	DurationSeconds  int     `json:"duration_seconds"`
	CandidateMinutes int     `json:"candidate_minutes"`
	QuotaMinutes     int     `json:"quota_minutes,omitempty"`
	UsedMinutes      int     `json:"used_minutes,omitempty"`
	RemainingMinutes int     `json:"remaining_minutes,omitempty"`
	RemainingAfter   int     `json:"remaining_after,omitempty"`
	ShortfallMinutes int     `json:"shortfall_minutes,omitempty"`
}

func (d Decision) Blocked() bool {
	switch d.Outcome {
	case BlockExceedsQuota, BlockQuotaFull, BlockUnknownDuration:
		return true
	}
	return false
}

func (d Decision) NeedsConfirmation() bool {
	return d.Outcome == WarnLowQuota
}

// Message is the user-facing explanation of the decision.
func (d Decision) Message() string {
	switch d.Outcome {
	case BlockUnknownDuration:
		return "The length of this recording could not be determined, so it cannot be checked against your quota."
	case BlockQuotaFull:
		return fmt.Sprintf("You have used all %d minutes of your %s plan this period.", d.QuotaMinutes, d.Plan)
	case BlockExceedsQuota:
		return fmt.Sprintf("This recording needs %d minutes but only %d remain (%d short).", d.CandidateMinutes, d.RemainingMinutes, d.ShortfallMinutes)
	case WarnLowQuota:
		return fmt.Sprintf("After this upload only %d of %d minutes will remain.", d.RemainingAfter, d.QuotaMinutes)
	default:
		return ""
	}
}

// BlockedError is returned when an upload is stopped before any task
// exists.
type BlockedError struct {
	Decision Decision
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("upload blocked (%s): %s", e.Decision.Outcome, e.Decision.Message())
}

// CeilMinutes converts seconds to whole minutes, rounding up.
func CeilMinutes(seconds int) int {
	if seconds <= 0 {
		return 0
	}
	return (seconds + 59) / 60
}

// Evaluate decides whether an upload of durationSeconds may proceed under
// sub. Unmetered plans always allow. The order of checks matters: hard
// stops come before the soft warning.
func Evaluate(sub Subscription, metered bool, durationSeconds int) Decision {
	d := Decision{
		Outcome:          Allow,
		Plan:             sub.Plan,
		Metered:          metered,
		DurationSeconds:  durationSeconds,
		CandidateMinutes: CeilMinutes(durationSeconds),
	}
	if !metered {
		return d
	}

	d.QuotaMinutes = sub.QuotaMinutes
	d.UsedMinutes = sub.UsedMinutes
	d.RemainingMinutes = sub.RemainingMinutes()

	switch {
	case durationSeconds <= 0:
		d.Outcome = BlockUnknownDuration
	case sub.UsedMinutes >= sub.QuotaMinutes:
		d.Outcome = BlockQuotaFull
	case d.CandidateMinutes > d.RemainingMinutes:
		d.Outcome = BlockExceedsQuota
		d.ShortfallMinutes = d.CandidateMinutes - d.RemainingMinutes
	case (sub.UsedMinutes+d.CandidateMinutes)*warnDenominator > sub.QuotaMinutes*warnNumerator:
		d.Outcome = WarnLowQuota
		d.RemainingAfter = d.RemainingMinutes - d.CandidateMinutes
	}
	return d
}

type SubscriptionReader interface {
	// GetSubscription returns nil, nil when the owner has no stored
	// subscription.
	GetSubscription(ctx context.Context, ownerID string) (*Subscription, error)
}

var ErrNoSubscriptions = errors.New("subscription reader is nil")

type Guard struct {
	subs    SubscriptionReader
	catalog *Catalog
}

func NewGuard(subs SubscriptionReader, catalog *Catalog) (*Guard, error) {
	if subs == nil {
		return nil, ErrNoSubscriptions
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Guard{subs: subs, catalog: catalog}, nil
}

// Subscription resolves the owner's effective subscription, falling back
// to the catalog's default plan with no usage.
func (g *Guard) Subscription(ctx context.Context, ownerID string) (Subscription, error) {
	sub, err := g.subs.GetSubscription(ctx, ownerID)
	if err != nil {
		return Subscription{}, fmt.Errorf("read subscription: %w", err)
	}
	if sub == nil {
		def := g.catalog.Default()
		return Subscription{OwnerID: ownerID, Plan: def.Name, QuotaMinutes: def.QuotaMinutes}, nil
	}
	return *sub, nil
}

func (g *Guard) Check(ctx context.Context, ownerID string, durationSeconds int) (Decision, error) {
	sub, err := g.Subscription(ctx, ownerID)
	if err != nil {
		return Decision{}, err
	}

	d := Evaluate(sub, g.catalog.Metered(sub.Plan), durationSeconds)
	observability.Default.IncCounter("quota_decisions_total", map[string]string{"outcome": string(d.Outcome)}, 1)
	return d, nil
}

func (g *Guard) Catalog() *Catalog {
	return g.catalog
}
