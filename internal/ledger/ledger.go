// Package ledger implements the salience ledger: the append-only
// balance model that decides which topics are worth a model's
// attention, and by how much.
package ledger

import (
	"fmt"
	"time"

	"github.com/watcherhq/watcher/internal/config"
	"github.com/watcherhq/watcher/internal/store"
	"github.com/watcherhq/watcher/internal/topic"
)

// Ledger wraps the persistence layer with the numeric policies in the
// salience config. It holds no balances in memory; the store's ledger
// table is the sole source of truth.
type Ledger struct {
	st  *store.Store
	cfg config.SalienceConfig
}

// New builds a Ledger bound to a store and a resolved salience config.
func New(st *store.Store, cfg config.SalienceConfig) *Ledger {
	return &Ledger{st: st, cfg: cfg}
}

// capFor returns the per-topic cap for a category, falling back to the
// self cap only for the self category and to 0 (no earning possible)
// for an unconfigured category — callers should always configure every
// recognized category.
func (l *Ledger) capFor(category string) float64 {
	if c, ok := l.cfg.Caps[category]; ok {
		return c
	}
	return 0
}

// Balance returns a topic's current balance, the sum of its ledger
// entries. Topics with no entries have balance 0.
func (l *Ledger) Balance(topicKey string) (float64, error) {
	return l.st.TopicBalance(topicKey)
}

// Earn applies an earn operation to a topic, clamping to its category
// cap, then propagates one hop to related warm topics and spills over
// any clamped overflow. source, when non-empty, is recorded as the
// originating topic for audit.
func (l *Ledger) Earn(key topic.Key, amount float64, reason, source string) (newBalance float64, overflow float64, err error) {
	if amount <= 0 {
		bal, err := l.Balance(key.String())
		return bal, 0, err
	}

	if err := l.st.UpsertTopic(key.String(), string(key.Category), key.Server, false); err != nil {
		return 0, 0, fmt.Errorf("ledger: earn %s: %w", key.String(), err)
	}

	balance, err := l.Balance(key.String())
	if err != nil {
		return 0, 0, fmt.Errorf("ledger: earn %s: %w", key.String(), err)
	}

	cap := l.capFor(string(key.Category))
	headroom := cap - balance
	if headroom < 0 {
		headroom = 0
	}
	actual := amount
	if actual > headroom {
		actual = headroom
	}
	overflow = amount - actual

	if actual > 0 {
		if err := l.st.AppendLedgerEntry(&store.LedgerEntry{
			TopicKey:    key.String(),
			Kind:        store.TxnEarn,
			Amount:      actual,
			Reason:      reason,
			SourceTopic: source,
		}); err != nil {
			return 0, 0, fmt.Errorf("ledger: earn %s: %w", key.String(), err)
		}
		if err := l.st.TouchTopic(key.String()); err != nil {
			return 0, 0, fmt.Errorf("ledger: earn %s: %w", key.String(), err)
		}
	}

	newBalance = balance + actual

	if err := l.propagate(key, actual, overflow, reason); err != nil {
		return newBalance, overflow, fmt.Errorf("ledger: propagate from %s: %w", key.String(), err)
	}

	return newBalance, overflow, nil
}

// propagate fans a single hop of the earned amount (and any overflow)
// out to the related set, landing only on topics that are currently
// warm. Propagation and spillover entries never themselves propagate.
func (l *Ledger) propagate(source topic.Key, actual, overflow float64, reason string) error {
	if actual <= 0 && overflow <= 0 {
		return nil
	}
	related, err := topic.Related(source, l)
	if err != nil {
		return err
	}
	for _, r := range related {
		balance, err := l.Balance(r.String())
		if err != nil {
			return err
		}
		if balance <= l.cfg.WarmThreshold {
			continue
		}
		factor := l.cfg.PropagationFactor
		if source.Global() != r.Global() {
			factor = l.cfg.GlobalPropagation
		}
		if actual > 0 {
			if err := l.st.UpsertTopic(r.String(), string(r.Category), r.Server, true); err != nil {
				return err
			}
			if err := l.st.AppendLedgerEntry(&store.LedgerEntry{
				TopicKey:    r.String(),
				Kind:        store.TxnPropagate,
				Amount:      actual * factor,
				Reason:      reason,
				SourceTopic: source.String(),
			}); err != nil {
				return err
			}
		}
		if overflow > 0 {
			if err := l.st.AppendLedgerEntry(&store.LedgerEntry{
				TopicKey:    r.String(),
				Kind:        store.TxnSpillover,
				Amount:      overflow * l.cfg.SpilloverFactor,
				Reason:      reason,
				SourceTopic: source.String(),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Spend withdraws up to amount from a topic's balance, clamped to the
// available balance, and captures a partial retention refund at spend
// time. Returns the actual amount spent.
func (l *Ledger) Spend(topicKey string, amount float64, reason string) (actual float64, err error) {
	if amount <= 0 {
		return 0, nil
	}
	balance, err := l.Balance(topicKey)
	if err != nil {
		return 0, fmt.Errorf("ledger: spend %s: %w", topicKey, err)
	}
	actual = amount
	if actual > balance {
		actual = balance
	}
	if actual <= 0 {
		return 0, nil
	}
	if err := l.st.AppendLedgerEntry(&store.LedgerEntry{
		TopicKey: topicKey,
		Kind:     store.TxnSpend,
		Amount:   -actual,
		Reason:   reason,
	}); err != nil {
		return 0, fmt.Errorf("ledger: spend %s: %w", topicKey, err)
	}
	retained := actual * l.cfg.RetentionRate
	if retained > 0 {
		if err := l.st.AppendLedgerEntry(&store.LedgerEntry{
			TopicKey: topicKey,
			Kind:     store.TxnRetain,
			Amount:   retained,
			Reason:   reason,
		}); err != nil {
			return 0, fmt.Errorf("ledger: spend %s: %w", topicKey, err)
		}
	}
	return actual, nil
}

// WarmUser appends a warm entry for a global user topic if it is not
// already warm, used by the first-DM and two-distinct-servers triggers.
func (l *Ledger) WarmUser(userID string) error {
	key := topic.MakeUser("", userID)
	if err := l.st.UpsertTopic(key.String(), string(topic.CategoryUser), "", false); err != nil {
		return fmt.Errorf("ledger: warm user %s: %w", userID, err)
	}
	balance, err := l.Balance(key.String())
	if err != nil {
		return fmt.Errorf("ledger: warm user %s: %w", userID, err)
	}
	if balance > l.cfg.WarmThreshold {
		return nil
	}
	return l.st.AppendLedgerEntry(&store.LedgerEntry{
		TopicKey: key.String(),
		Kind:     store.TxnWarm,
		Amount:   l.cfg.InitialGlobalWarmth,
		Reason:   "global_warm",
	})
}

// IsWarm reports whether a topic's current balance exceeds the warm
// threshold.
func (l *Ledger) IsWarm(topicKey string) (bool, error) {
	balance, err := l.Balance(topicKey)
	if err != nil {
		return false, err
	}
	return balance > l.cfg.WarmThreshold, nil
}

// DecayOne applies the decay policy to a single topic if its last
// activity is older than the grace threshold, catching up multiple
// missed days at once rather than assuming a single daily tick.
// Idempotent within a day: a topic already decayed today produces no
// further entry.
func (l *Ledger) DecayOne(t store.Topic, now time.Time) error {
	threshold := time.Duration(l.cfg.DecayThresholdDays) * 24 * time.Hour
	if now.Sub(t.LastActivityAt) < threshold {
		return nil
	}
	balance, err := l.Balance(t.Key)
	if err != nil {
		return fmt.Errorf("ledger: decay %s: %w", t.Key, err)
	}
	if balance <= 0 {
		return nil
	}
	lastDecay, err := l.st.LastDecayAt(t.Key)
	if err != nil {
		return fmt.Errorf("ledger: decay %s: %w", t.Key, err)
	}
	// Decay only accrues for days past the grace threshold, not from
	// last_activity_at itself.
	since := t.LastActivityAt.Add(threshold)
	if !lastDecay.IsZero() && lastDecay.After(since) {
		since = lastDecay
	}
	days := int(now.Sub(since) / (24 * time.Hour))
	if days <= 0 {
		return nil
	}
	r := l.cfg.DecayRatePerDay
	remaining := 1 - r
	factor := 1.0
	for i := 0; i < days; i++ {
		factor *= remaining
	}
	decayAmount := balance * (1 - factor)
	if decayAmount < l.cfg.DecayMinStep {
		return nil
	}
	return l.st.AppendLedgerEntry(&store.LedgerEntry{
		TopicKey: t.Key,
		Kind:     store.TxnDecay,
		Amount:   -decayAmount,
		Reason:   fmt.Sprintf("decay:%ddays", days),
	})
}

// DecaySweep runs DecayOne over every topic whose last_activity_at
// predates the decay threshold. Intended to be invoked by the scheduler
// roughly once per day; it is safe to call more often.
func (l *Ledger) DecaySweep(now time.Time) (int, error) {
	cutoff := now.Add(-time.Duration(l.cfg.DecayThresholdDays) * 24 * time.Hour)
	topics, err := l.st.ListInactiveTopics(cutoff)
	if err != nil {
		return 0, fmt.Errorf("ledger: decay sweep: %w", err)
	}
	applied := 0
	for _, t := range topics {
		if err := l.DecayOne(t, now); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}
