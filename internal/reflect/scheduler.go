// Package reflect drives layer activation: deciding when a layer runs
// and which topics it runs against, then handing the result to the
// layer executor. It reuses the cron parser and file-lock primitives
// of the job scheduler, narrowed to one lock per layer rather than one
// lock for the whole process.
package reflect

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/watcherhq/watcher/internal/config"
	"github.com/watcherhq/watcher/internal/layer"
	"github.com/watcherhq/watcher/internal/ledger"
	"github.com/watcherhq/watcher/internal/scheduler"
	"github.com/watcherhq/watcher/internal/store"
	"github.com/watcherhq/watcher/internal/topic"
)

// signalCategory is the insight category the threshold-driven path
// counts by default: self-insights produced by the self-concept layers.
const signalCategory = "self"

// Scheduler owns the two activation paths named in the reflection
// scheduler contract: time-driven (cron) and threshold-driven (insight
// count crossing a layer's trigger_threshold). Both paths converge on
// activate, which takes the single-writer lock, selects targets, and
// calls the executor.
type Scheduler struct {
	cfg       config.ReflectConfig
	st        *store.Store
	lg        *ledger.Ledger
	exec      *layer.Executor
	layersDir string
	tmplDir   string

	mu     sync.RWMutex
	layers map[string]*layer.Layer
	crons  map[string]*scheduler.CronExpr

	now func() time.Time
}

// New builds a Scheduler. Layers are not loaded until LoadLayers is called.
func New(cfg config.ReflectConfig, st *store.Store, lg *ledger.Ledger, exec *layer.Executor, layersDir, templateDir string) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		st:        st,
		lg:        lg,
		exec:      exec,
		layersDir: layersDir,
		tmplDir:   templateDir,
		layers:    make(map[string]*layer.Layer),
		crons:     make(map[string]*scheduler.CronExpr),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// LoadLayers (re)reads every layer definition from layersDir, validating
// each and parsing its schedule if present. A later call replaces the
// full set — layers removed from disk are forgotten.
func (s *Scheduler) LoadLayers() error {
	entries, err := os.ReadDir(s.layersDir)
	if err != nil {
		return fmt.Errorf("reflect: read layers dir %s: %w", s.layersDir, err)
	}

	layers := make(map[string]*layer.Layer)
	crons := make(map[string]*scheduler.CronExpr)
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		path := filepath.Join(s.layersDir, name)
		l, err := layer.Load(path)
		if err != nil {
			return fmt.Errorf("reflect: load layer %s: %w", path, err)
		}
		if err := l.Validate(s.tmplDir); err != nil {
			return fmt.Errorf("reflect: validate layer %s: %w", l.Name, err)
		}
		layers[l.Name] = l
		if l.Schedule != "" {
			cron, err := scheduler.ParseCron(l.Schedule)
			if err != nil {
				return fmt.Errorf("reflect: parse schedule for layer %s: %w", l.Name, err)
			}
			crons[l.Name] = cron
		}
	}

	s.mu.Lock()
	s.layers = layers
	s.crons = crons
	s.mu.Unlock()
	return nil
}

// Layers returns every loaded layer definition, sorted by name.
func (s *Scheduler) Layers() []*layer.Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*layer.Layer, 0, len(s.layers))
	for _, l := range s.layers {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns a loaded layer by name.
func (s *Scheduler) Get(name string) (*layer.Layer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layers[name]
	return l, ok
}

// Run ticks until ctx is cancelled, firing time-driven activations and
// re-evaluating thresholds whenever a run completes. It returns after
// the current tick (and any in-flight activation it started) finishes.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.LoadLayers(); err != nil {
		return err
	}
	s.checkThresholds(ctx)

	if !s.cfg.Enabled {
		<-ctx.Done()
		return nil
	}

	interval := s.cfg.TickInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := s.now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			now := t.UTC()
			s.tick(ctx, last, now)
			last = now
		}
	}
}

// tick fires every cron-scheduled layer whose next instant after last
// falls at or before now, within the misfire grace window. Multiple
// missed instants collapse to a single activation — no retroactive runs.
func (s *Scheduler) tick(ctx context.Context, last, now time.Time) {
	grace := s.cfg.MisfireGrace
	if grace <= 0 {
		grace = time.Hour
	}

	s.mu.RLock()
	var due []string
	for name, cron := range s.crons {
		next := cron.Next(last)
		if next.IsZero() || next.After(now) {
			continue
		}
		if now.Sub(next) > grace {
			slog.Warn("scheduler misfire coalesced", "layer", name, "scheduled_for", next, "now", now)
			continue
		}
		due = append(due, name)
	}
	s.mu.RUnlock()
	sort.Strings(due)

	for _, name := range due {
		if _, err := s.activate(ctx, name, "schedule"); err != nil {
			slog.Error("reflect: scheduled activation failed", "layer", name, "error", err)
		}
	}
	if len(due) > 0 {
		s.checkThresholds(ctx)
	}
}

// checkThresholds evaluates every threshold-driven layer's signal count
// against its trigger_threshold, activating any that have crossed it.
// Called at process start, after every tick that fired a schedule, and
// after every manual trigger.
func (s *Scheduler) checkThresholds(ctx context.Context) {
	for _, l := range s.Layers() {
		if l.TriggerThreshold <= 0 {
			continue
		}
		count, err := s.signalCount(l.Name)
		if err != nil {
			slog.Warn("reflect: signal count", "layer", l.Name, "error", err)
			continue
		}
		if count < l.TriggerThreshold {
			continue
		}
		if _, err := s.activate(ctx, l.Name, "threshold"); err != nil {
			slog.Error("reflect: threshold activation failed", "layer", l.Name, "error", err)
		}
	}
}

// signalCount returns the number of self-insights stored since a
// layer's signal baseline was last reset (at its previous activation).
func (s *Scheduler) signalCount(name string) (int, error) {
	total, err := s.st.CountInsights(signalCategory)
	if err != nil {
		return 0, err
	}
	record, err := s.st.GetScheduledLayer(name)
	if err != nil {
		return 0, err
	}
	baseline := 0
	if record != nil {
		baseline = record.SignalBaseline
	}
	return total - baseline, nil
}

// Trigger activates a layer manually, bypassing its schedule and
// threshold but using the identical locking and selection path.
func (s *Scheduler) Trigger(ctx context.Context, name string) (*store.Run, error) {
	run, err := s.activate(ctx, name, "manual")
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("reflect: layer %q is already running", name)
	}
	s.checkThresholds(ctx)
	return run, nil
}

// activate acquires the layer's single-writer lock, selects targets,
// and runs the executor. It returns (nil, nil) if the layer is already
// running (the lock is held), never (nil, nil) on a genuine failure.
func (s *Scheduler) activate(ctx context.Context, name, trigger string) (*store.Run, error) {
	l, ok := s.Get(name)
	if !ok {
		return nil, fmt.Errorf("reflect: unknown layer %q", name)
	}

	lock := scheduler.NewFileLock(s.lockPath(name))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("reflect: lock layer %s: %w", name, err)
	}
	if !acquired {
		slog.Info("layer activation skipped: already running", "layer", name, "trigger", trigger)
		return nil, nil
	}
	defer lock.Unlock()

	slog.Info("layer_triggered", "layer", name, "trigger", trigger)

	selected, err := s.selectTargets(l)
	if err != nil {
		return nil, fmt.Errorf("reflect: select targets for %s: %w", name, err)
	}
	targets := make([]layer.Target, 0, len(selected))
	for _, sel := range selected {
		targets = append(targets, layer.Target{TopicKey: sel.Key, Budget: sel.Spent})
	}

	run, err := s.exec.Run(ctx, l, targets)
	if err != nil {
		slog.Error("layer_run_failed", "layer", name, "error", err)
		return nil, err
	}

	baseline, err := s.st.CountInsights(signalCategory)
	if err != nil {
		slog.Warn("reflect: read signal baseline", "layer", name, "error", err)
	} else if err := s.st.RecordScheduledLayerRun(name, run.Status, run.StartedAt, run.ID, baseline); err != nil {
		slog.Warn("reflect: record scheduled layer run", "layer", name, "error", err)
	}

	if run.Status == store.RunFailed {
		slog.Warn("layer_run_failed", "layer", name, "run_id", run.ID, "trigger", trigger)
	} else {
		slog.Info("layer_run_completed", "layer", name, "run_id", run.ID, "status", run.Status,
			"insights", run.InsightsCreated, "trigger", trigger)
	}
	return run, nil
}

func (s *Scheduler) lockPath(name string) string {
	dir := s.cfg.LockDir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, name+".lock")
}

// selectTargets computes total_budget for the activation and runs the
// budget-group selector (or the independent self pool) restricted to
// the layer's target category, producing up to max_targets topic keys.
func (s *Scheduler) selectTargets(l *layer.Layer) ([]ledger.Selected, error) {
	if l.TargetCategory == "" {
		return nil, nil
	}

	topics, err := s.candidateTopics(l)
	if err != nil {
		return nil, err
	}

	candidates := make([]ledger.Candidate, 0, len(topics))
	cost := s.cfg.DefaultTargetCost
	if cost <= 0 {
		cost = 5
	}
	for _, t := range topics {
		bal, err := s.lg.Balance(t.Key)
		if err != nil {
			return nil, err
		}
		if bal <= 0 {
			continue
		}
		expected := cost
		if expected > bal {
			expected = bal
		}
		candidates = append(candidates, ledger.Candidate{Key: t.Key, Balance: bal, ExpectedCost: expected})
	}

	var selected []ledger.Selected
	if l.TargetCategory == string(topic.CategorySelf) {
		selected, err = s.lg.SelectSelf(candidates)
	} else {
		n := l.MaxTargets
		if n <= 0 {
			n = len(candidates)
		}
		totalBudget := cost * float64(n)
		selected, err = s.lg.Select(totalBudget, candidates)
	}
	if err != nil {
		return nil, err
	}

	if l.MaxTargets > 0 && len(selected) > l.MaxTargets {
		sort.Slice(selected, func(i, j int) bool { return selected[i].Spent > selected[j].Spent })
		selected = selected[:l.MaxTargets]
	}
	return selected, nil
}

// candidateTopics resolves a layer's target_category/target_filter into
// the topic rows eligible for selection. target_filter names a server
// id to restrict to, "*" for every server, or empty for the true
// global scope of categories that support one.
func (s *Scheduler) candidateTopics(l *layer.Layer) ([]store.Topic, error) {
	server := l.TargetFilter
	return s.st.ListTopicsByCategory(l.TargetCategory, server)
}
