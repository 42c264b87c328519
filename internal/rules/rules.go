// Package rules decides which messages are eligible for deletion.
// Evaluation is pure and deterministic: the same message and rule
// always yield the same verdict, which is what makes resuming a run
// after a crash safe even though rules are re-read on every start.
package rules

import (
	"time"

	"github.com/p-blackswan/history-sweeper/internal/transport"
)

// Rule is one retention predicate.
type Rule struct {
	// OlderThan is the minimum age before a message may be deleted.
	// Zero or negative disables deletion entirely.
	OlderThan time.Duration

	// ExcludePinned keeps pinned messages regardless of age.
	ExcludePinned bool

	// ExcludeOwn keeps messages sent by the account itself.
	ExcludeOwn bool

	// ExcludeMedia lists media kinds exempt from deletion.
	ExcludeMedia []string
}

// ShouldDelete reports whether m is eligible for deletion under r at
// the given reference time. Pure: no side effects, no clock reads.
func (r Rule) ShouldDelete(m transport.Message, now time.Time) bool {
	if r.OlderThan <= 0 {
		return false
	}
	if now.Sub(m.Date) <= r.OlderThan {
		return false
	}
	if r.ExcludePinned && m.Pinned {
		return false
	}
	if r.ExcludeOwn && m.Out {
		return false
	}
	for _, kind := range r.ExcludeMedia {
		if kind == m.Media {
			return false
		}
	}
	return true
}

// Policy is the full retention configuration for a run: a default rule,
// an optional chat scope, and per-chat overrides. Specific rules win
// over the general one, following the usual prune-policy merge order.
type Policy struct {
	Default   Rule
	Scope     []int64 // nil or empty = all chats
	Overrides map[int64]Rule
}

// InScope reports whether chatID is covered by this policy.
func (p *Policy) InScope(chatID int64) bool {
	if len(p.Scope) == 0 {
		return true
	}
	for _, id := range p.Scope {
		if id == chatID {
			return true
		}
	}
	return false
}

// RuleFor returns the effective rule for chatID.
func (p *Policy) RuleFor(chatID int64) Rule {
	if r, ok := p.Overrides[chatID]; ok {
		return r
	}
	return p.Default
}
