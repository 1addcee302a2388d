package ledger

import (
	"sort"

	"github.com/watcherhq/watcher/internal/topic"
)

// Candidate is one topic eligible for budget-group selection, along
// with its current balance and the estimated cost of reflecting on it.
type Candidate struct {
	Key          string
	Balance      float64
	ExpectedCost float64
}

// Selected is one topic chosen by Select, with the amount of budget it
// consumed.
type Selected struct {
	Key   string
	Spent float64
}

// groupCandidates groups a flat candidate list by the budget group its
// key resolves to.
func groupCandidates(candidates []Candidate) (map[topic.BudgetGroup][]Candidate, error) {
	out := make(map[topic.BudgetGroup][]Candidate)
	for _, c := range candidates {
		if c.Balance <= 0 {
			continue
		}
		k, err := topic.Parse(c.Key)
		if err != nil {
			continue
		}
		g := k.Budget()
		out[g] = append(out[g], c)
	}
	for g := range out {
		sort.Slice(out[g], func(i, j int) bool { return out[g][i].Balance > out[g][j].Balance })
	}
	return out, nil
}

// Select runs the two-pass budget-group allocation: each group gets
// B*allocation[g], greedily fills from its highest-balance topics, then
// any unspent headroom is redistributed proportionally to groups that
// still had unmet demand. The self pool is independent and selected
// separately by SelectSelf.
func (l *Ledger) Select(totalBudget float64, candidates []Candidate) ([]Selected, error) {
	grouped, err := groupCandidates(candidates)
	if err != nil {
		return nil, err
	}

	type groupState struct {
		group     topic.BudgetGroup
		budget    float64
		spent     float64
		remaining []Candidate // candidates not yet picked, in balance order
		picked    []Selected
		demand    bool // true if it ran out of budget before candidates
	}

	states := make(map[topic.BudgetGroup]*groupState)
	for g, alloc := range l.cfg.BudgetGroups {
		states[topic.BudgetGroup(g)] = &groupState{
			group:     topic.BudgetGroup(g),
			budget:    totalBudget * alloc,
			remaining: grouped[topic.BudgetGroup(g)],
		}
	}

	fill := func(gs *groupState) {
		for len(gs.remaining) > 0 {
			c := gs.remaining[0]
			if gs.spent+c.ExpectedCost > gs.budget {
				gs.demand = true
				break
			}
			gs.spent += c.ExpectedCost
			gs.picked = append(gs.picked, Selected{Key: c.Key, Spent: c.ExpectedCost})
			gs.remaining = gs.remaining[1:]
		}
	}

	for _, gs := range states {
		fill(gs)
	}

	// Redistribute leftover budget proportionally among groups that
	// still have unmet demand (ran out of budget with candidates left).
	var leftover float64
	var demandTotal float64
	for _, gs := range states {
		if gs.budget > gs.spent && !gs.demand {
			leftover += gs.budget - gs.spent
		}
		if gs.demand {
			demandTotal += gs.budget
		}
	}
	if leftover > 0 && demandTotal > 0 {
		for _, gs := range states {
			if !gs.demand {
				continue
			}
			share := leftover * (gs.budget / demandTotal)
			gs.budget += share
			fill(gs)
		}
	}

	var out []Selected
	for _, gs := range states {
		out = append(out, gs.picked...)
	}
	return out, nil
}

// SelectSelf runs the self pool independently of the group budgets.
func (l *Ledger) SelectSelf(candidates []Candidate) ([]Selected, error) {
	budget := l.cfg.SelfBudget
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Balance > candidates[j].Balance })
	var spent float64
	var out []Selected
	for _, c := range candidates {
		if c.Balance <= 0 {
			continue
		}
		if spent+c.ExpectedCost > budget {
			continue
		}
		spent += c.ExpectedCost
		out = append(out, Selected{Key: c.Key, Spent: c.ExpectedCost})
	}
	return out, nil
}
