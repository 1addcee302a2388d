package layer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/watcherhq/watcher/internal/config"
	"github.com/watcherhq/watcher/internal/insight"
	"github.com/watcherhq/watcher/internal/ledger"
	"github.com/watcherhq/watcher/internal/promptx"
	"github.com/watcherhq/watcher/internal/provider"
	"github.com/watcherhq/watcher/internal/store"
	"github.com/watcherhq/watcher/internal/topic"
)

// Target is one topic selected for a run, together with the salience
// budget the scheduler's selection pass allocated to it.
type Target struct {
	TopicKey string
	Budget   float64
}

// ModelResolver resolves a node's configured model string (a profile
// name or a literal provider/model pair) to a usable client. Kept as an
// injected function so the executor stays ignorant of credential and
// provider-construction concerns.
type ModelResolver func(model string) (provider.LLMProvider, error)

// SelfConceptWriter persists a self-concept document. The default
// implementation writes to disk; tests substitute an in-memory stub.
type SelfConceptWriter func(path, content string) error

// Executor drives one layer's nodes against a set of selected targets,
// producing a run record and zero or more insights.
type Executor struct {
	Store            *store.Store
	Ledger           *ledger.Ledger
	Retrieval        config.RetrievalConfig
	TemplateDir      string
	SelfConceptDir   string
	MaxRetries       int
	ResolveModel     ModelResolver
	WriteSelfConcept SelfConceptWriter
	Now              func() time.Time
}

// New builds an Executor wired against the given store, ledger and
// configuration.
func New(st *store.Store, lg *ledger.Ledger, cfg *config.Config, resolve ModelResolver) *Executor {
	return &Executor{
		Store:            st,
		Ledger:           lg,
		Retrieval:        cfg.Retrieval,
		TemplateDir:      cfg.Paths.TemplatesDir,
		SelfConceptDir:   cfg.Paths.SelfConceptDir,
		MaxRetries:       cfg.Executor.MaxRetries,
		ResolveModel:     resolve,
		WriteSelfConcept: writeSelfConceptFile,
		Now:              func() time.Time { return time.Now().UTC() },
	}
}

func writeSelfConceptFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// execContext is the per-target scratch state threaded through a
// layer's nodes, mirroring the executor's context object.
type execContext struct {
	Topic            topic.Key
	TopicRaw         string
	Messages         []store.Message
	Insights         []insight.Retrieved
	LayerRuns        []store.Run
	LLMResponse      string
	TokensInput      int
	TokensOutput     int
	Budget           float64
	OriginalSalience float64
	SalienceSpent    float64
	InsightsWritten  int
}

// Run executes a layer against every target. A node failure abandons
// only the current target (fail-forward); prior and subsequent targets
// are unaffected. Salience is spent only on a successful store_insight.
func (e *Executor) Run(ctx context.Context, l *Layer, targets []Target) (*store.Run, error) {
	run := &store.Run{
		LayerName:        l.Name,
		LayerContentHash: l.ContentHash,
		StartedAt:        e.now(),
		TargetsMatched:   len(targets),
	}
	if err := e.Store.InsertRun(run); err != nil {
		return nil, fmt.Errorf("layer: insert run for %s: %w", l.Name, err)
	}

	for _, target := range targets {
		key, err := topic.Parse(target.TopicKey)
		if err != nil {
			run.TargetsSkipped++
			run.Errors = append(run.Errors, store.RunError{Topic: target.TopicKey, Node: "", Error: err.Error()})
			continue
		}

		ec := &execContext{Topic: key, TopicRaw: target.TopicKey, Budget: target.Budget}
		failed := false
		for _, node := range l.Nodes {
			if err := e.runNode(ctx, l, run, node, ec); err != nil {
				run.Errors = append(run.Errors, store.RunError{Topic: target.TopicKey, Node: string(node.Type), Error: err.Error()})
				failed = true
				break
			}
		}

		if failed {
			run.TargetsSkipped++
		} else {
			run.TargetsProcessed++
		}
		run.InsightsCreated += ec.InsightsWritten
		run.TokensIn += ec.TokensInput
		run.TokensOut += ec.TokensOutput
	}

	run.TokensTotal = run.TokensIn + run.TokensOut
	run.Status = determineStatus(run)
	ended := e.now()
	run.EndedAt = &ended
	if err := e.Store.UpdateRun(run); err != nil {
		return nil, fmt.Errorf("layer: finalize run %s: %w", run.ID, err)
	}
	return run, nil
}

func determineStatus(run *store.Run) string {
	if run.TargetsMatched > 0 && run.TargetsSkipped == run.TargetsMatched {
		return store.RunFailed
	}
	if run.TargetsSkipped > 0 {
		return store.RunPartial
	}
	if run.InsightsCreated == 0 && len(run.Errors) == 0 {
		return store.RunDry
	}
	return store.RunSuccess
}

func (e *Executor) runNode(ctx context.Context, l *Layer, run *store.Run, node Node, ec *execContext) error {
	switch node.Type {
	case NodeFetchMessages:
		return e.execFetchMessages(node, ec)
	case NodeFetchInsights:
		return e.execFetchInsights(node, ec)
	case NodeFetchLayerRuns:
		return e.execFetchLayerRuns(l, node, ec)
	case NodeLLMCall:
		return e.execLLMCall(ctx, node, run, ec)
	case NodeStoreInsight:
		return e.execStoreInsight(node, run, ec)
	case NodeUpdateSelfConcept:
		return e.execUpdateSelfConcept(node, ec)
	case NodeSynthesizeGlobal:
		return e.execSynthesizeGlobal(run, ec)
	case NodeReduceOutput:
		return nil
	default:
		return fmt.Errorf("unrecognized node type %q", node.Type)
	}
}

func (e *Executor) execFetchMessages(node Node, ec *execContext) error {
	p := node.FetchMessages
	limit := p.Limit
	if limit == 0 {
		limit = p.LimitPerChannel
	}
	since := e.now().Add(-time.Duration(p.LookbackHours) * time.Hour)
	msgs, err := messagesForTopic(e.Store, ec.Topic, since, limit)
	if err != nil {
		return fmt.Errorf("fetch_messages: %w", err)
	}
	ec.Messages = msgs
	return nil
}

func (e *Executor) execFetchInsights(node Node, ec *execContext) error {
	p := node.FetchInsights
	now := e.now()
	req := insight.Request{TopicKey: ec.TopicRaw, Profile: p.RetrievalProfile, Limit: p.MaxPerTopic}

	var hits []insight.Retrieved
	var err error
	switch {
	case ec.Topic.Category == topic.CategoryUser && ec.Topic.Global():
		hits, err = insight.RetrieveGlobal(e.Store, e.Retrieval, ec.Topic.Parts[0], req, now)
	case p.TopicPattern != "":
		keys, kerr := e.Store.KeysLike(p.TopicPattern)
		if kerr != nil {
			return fmt.Errorf("fetch_insights: %w", kerr)
		}
		for _, k := range keys {
			r2 := req
			r2.TopicKey = k
			h, herr := insight.Retrieve(e.Store, e.Retrieval, r2, now)
			if herr != nil {
				return fmt.Errorf("fetch_insights: %w", herr)
			}
			hits = append(hits, h...)
		}
	default:
		hits, err = insight.Retrieve(e.Store, e.Retrieval, req, now)
	}
	if err != nil {
		return fmt.Errorf("fetch_insights: %w", err)
	}

	if p.SinceDays > 0 {
		cutoff := now.Add(-time.Duration(p.SinceDays) * 24 * time.Hour)
		hits = filterInsightsSince(hits, cutoff)
	}
	if len(p.Categories) > 0 {
		hits = filterInsightsByCategory(hits, p.Categories)
	}
	ec.Insights = hits
	return nil
}

func (e *Executor) execFetchLayerRuns(l *Layer, node Node, ec *execContext) error {
	p := node.FetchLayerRuns
	since := e.now().Add(-time.Duration(p.SinceDays) * 24 * time.Hour)
	runs, err := e.Store.ListRuns(store.RunFilter{LayerName: l.Name, Since: since})
	if err != nil {
		return fmt.Errorf("fetch_layer_runs: %w", err)
	}
	if !p.IncludeErrors {
		filtered := make([]store.Run, 0, len(runs))
		for _, r := range runs {
			if len(r.Errors) == 0 {
				filtered = append(filtered, r)
			}
		}
		runs = filtered
	}
	ec.LayerRuns = runs
	return nil
}

func (e *Executor) execLLMCall(ctx context.Context, node Node, run *store.Run, ec *execContext) error {
	p := node.LLMCall
	prompt, err := promptx.Render(filepath.Join(e.TemplateDir, p.PromptTemplate), templateContext(ec))
	if err != nil {
		return fmt.Errorf("llm_call: %w", err)
	}

	prov, err := e.ResolveModel(p.Model)
	if err != nil {
		return fmt.Errorf("llm_call: resolve model %s: %w", p.Model, err)
	}

	start := e.now()
	resp, callErr := prov.Chat(ctx, &provider.ChatRequest{
		Messages:    []provider.Message{{Role: "user", Content: prompt}},
		Model:       p.Model,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	})
	latency := e.now().Sub(start)

	providerID, _ := provider.ParseModelString(p.Model)
	if providerID == "" {
		providerID = "default"
	}
	call := &store.Call{
		RunID:     run.ID,
		Kind:      "llm_call",
		Provider:  providerID,
		Model:     p.Model,
		Prompt:    prompt,
		LatencyMs: latency.Milliseconds(),
	}
	if callErr != nil {
		call.Success = false
		call.ErrorMessage = callErr.Error()
		_ = e.Store.InsertCall(call)
		return fmt.Errorf("llm_call: %w", callErr)
	}

	call.Response = resp.Content
	call.TokensIn = resp.Usage.PromptTokens
	call.TokensOut = resp.Usage.CompletionTokens
	call.Success = true
	if err := e.Store.InsertCall(call); err != nil {
		return fmt.Errorf("llm_call: record call: %w", err)
	}

	ec.LLMResponse = resp.Content
	ec.TokensInput += resp.Usage.PromptTokens
	ec.TokensOutput += resp.Usage.CompletionTokens
	return nil
}

func (e *Executor) execStoreInsight(node Node, run *store.Run, ec *execContext) error {
	p := node.StoreInsight
	payload, _ := parseInsightResponse(ec.LLMResponse)

	original, err := e.Ledger.Balance(ec.TopicRaw)
	if err != nil {
		return fmt.Errorf("store_insight: %w", err)
	}
	ec.OriginalSalience = original

	spent, err := e.Ledger.Spend(ec.TopicRaw, ec.Budget, fmt.Sprintf("store_insight:%s", run.LayerName))
	if err != nil {
		return fmt.Errorf("store_insight: %w", err)
	}
	if spent <= 0 {
		return fmt.Errorf("store_insight: no salience available to spend for %s", ec.TopicRaw)
	}
	ec.SalienceSpent = spent

	participants, _ := json.Marshal(payload.Participants)
	synthesisSources, _ := json.Marshal(payload.SynthesisSources)

	req := insight.WriteRequest{
		RunID:              run.ID,
		TopicKey:           ec.TopicRaw,
		Category:           p.Category,
		Content:            payload.Content,
		SourcesScopeMax:    scopeMax(ec.Messages),
		SalienceSpent:      spent,
		StrengthAdjustment: floatOr(payload.StrengthAdjustment, 1.0),
		Confidence:         floatOr(payload.Confidence, 0.5),
		Importance:         floatOr(payload.Importance, 0.5),
		Novelty:            floatOr(payload.Novelty, 0.5),
		Joy:                payload.Joy,
		Concern:            payload.Concern,
		Curiosity:          payload.Curiosity,
		Warmth:             payload.Warmth,
		Tension:            payload.Tension,
		Supersedes:         payload.Supersedes,
		ContextChannel:     payload.ContextChannel,
		ContextThread:      payload.ContextThread,
		ContextSubject:     payload.ContextSubject,
		Participants:       string(participants),
		SynthesisSources:   string(synthesisSources),
	}
	in, err := insight.Write(e.Store, req)
	if err != nil {
		return fmt.Errorf("store_insight: %w", err)
	}
	ec.Insights = append(ec.Insights, insight.Retrieved{Insight: *in})
	ec.InsightsWritten++
	return nil
}

func (e *Executor) execUpdateSelfConcept(node Node, ec *execContext) error {
	p := node.UpdateSelfConcept
	content := ec.LLMResponse
	if p.Conditional {
		decision, ok := parseSelfConceptDecision(ec.LLMResponse)
		if !ok || !decision.ShouldUpdate {
			return nil
		}
		content = decision.Content
	}
	path := p.DocumentPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.SelfConceptDir, path)
	}
	if err := e.WriteSelfConcept(path, content); err != nil {
		return fmt.Errorf("update_self_concept: %w", err)
	}
	return nil
}

// execSynthesizeGlobal mirrors a server-scoped understanding up to the
// matching global topic, for categories that have a global form.
func (e *Executor) execSynthesizeGlobal(run *store.Run, ec *execContext) error {
	if ec.Topic.Global() {
		return nil
	}
	if ec.Topic.Category != topic.CategoryUser && ec.Topic.Category != topic.CategoryDyad {
		return nil
	}
	if ec.SalienceSpent <= 0 {
		return nil
	}

	globalKey := topic.Key{Category: ec.Topic.Category, Parts: ec.Topic.Parts}
	globalKey.Raw = globalKey.String()

	req := insight.WriteRequest{
		RunID:              run.ID,
		TopicKey:           globalKey.Raw,
		Category:           "synthesis",
		Content:            ec.LLMResponse,
		SourcesScopeMax:    scopeMax(ec.Messages),
		SalienceSpent:      ec.SalienceSpent,
		StrengthAdjustment: 1.0,
		Confidence:         0.5,
		Importance:         0.5,
		Novelty:            0.5,
		Curiosity:          floatPtr(0.5),
		SynthesisSources:   ec.TopicRaw,
	}
	in, err := insight.Write(e.Store, req)
	if err != nil {
		return fmt.Errorf("synthesize_to_global: %w", err)
	}
	ec.Insights = append(ec.Insights, insight.Retrieved{Insight: *in})
	ec.InsightsWritten++
	return nil
}

func templateContext(ec *execContext) map[string]any {
	return map[string]any{
		"topic":      ec.TopicRaw,
		"messages":   ec.Messages,
		"insights":   ec.Insights,
		"layer_runs": ec.LayerRuns,
		"budget":     ec.Budget,
	}
}

func filterInsightsSince(hits []insight.Retrieved, cutoff time.Time) []insight.Retrieved {
	out := make([]insight.Retrieved, 0, len(hits))
	for _, h := range hits {
		if h.CreatedAt.After(cutoff) {
			out = append(out, h)
		}
	}
	return out
}

func filterInsightsByCategory(hits []insight.Retrieved, categories []string) []insight.Retrieved {
	allowed := make(map[string]bool, len(categories))
	for _, c := range categories {
		allowed[c] = true
	}
	out := make([]insight.Retrieved, 0, len(hits))
	for _, h := range hits {
		if allowed[h.Category] {
			out = append(out, h)
		}
	}
	return out
}
