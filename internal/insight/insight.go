// Package insight implements the write path and retrieval profiles for
// the durable memory store: the content a layer run produces about a
// topic, and the algorithm that later surfaces it back to a prompt.
package insight

import (
	"fmt"
	"time"

	"github.com/watcherhq/watcher/internal/store"
)

// ErrInvalidValence is returned when none of the five valence fields is
// set, or one is outside [0,1].
var ErrInvalidValence = fmt.Errorf("insight: at least one valence field must be non-null and in [0,1]")

// WriteRequest is the input to Write, gathering everything the executor
// captured before the spend that produced this insight.
type WriteRequest struct {
	RunID              string
	TopicKey           string
	Category           string
	Content            string
	SourcesScopeMax    string
	SalienceSpent      float64
	StrengthAdjustment float64
	Confidence         float64
	Importance         float64
	Novelty            float64
	Joy                *float64
	Concern            *float64
	Curiosity          *float64
	Warmth             *float64
	Tension            *float64
	Supersedes         string
	ContextChannel     string
	ContextThread      string
	ContextSubject     string
	Participants       string
	SynthesisSources   string
}

// Write validates a write request, computes strength, and appends the
// insight row. It never updates or deletes an existing insight.
func Write(st *store.Store, req WriteRequest) (*store.Insight, error) {
	return write(st, req, time.Now().UTC())
}

func write(st *store.Store, req WriteRequest, now time.Time) (*store.Insight, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	in := &store.Insight{
		TopicKey:           req.TopicKey,
		Category:           req.Category,
		Content:            req.Content,
		SourcesScopeMax:    req.SourcesScopeMax,
		CreatedAt:          now,
		RunID:              req.RunID,
		SalienceSpent:      req.SalienceSpent,
		StrengthAdjustment: req.StrengthAdjustment,
		Strength:           req.SalienceSpent * req.StrengthAdjustment,
		Confidence:         req.Confidence,
		Importance:         req.Importance,
		Novelty:            req.Novelty,
		Joy:                req.Joy,
		Concern:            req.Concern,
		Curiosity:          req.Curiosity,
		Warmth:             req.Warmth,
		Tension:            req.Tension,
		Supersedes:         req.Supersedes,
		ContextChannel:     req.ContextChannel,
		ContextThread:      req.ContextThread,
		ContextSubject:     req.ContextSubject,
		Participants:       req.Participants,
		SynthesisSources:   req.SynthesisSources,
	}
	if err := st.InsertInsight(in); err != nil {
		return nil, fmt.Errorf("insight: store for %s: %w", req.TopicKey, err)
	}
	return in, nil
}

func validate(req WriteRequest) error {
	if req.TopicKey == "" {
		return fmt.Errorf("insight: topic key required")
	}
	valences := []*float64{req.Joy, req.Concern, req.Curiosity, req.Warmth, req.Tension}
	anySet := false
	for _, v := range valences {
		if v == nil {
			continue
		}
		anySet = true
		if *v < 0 || *v > 1 {
			return ErrInvalidValence
		}
	}
	if !anySet {
		return ErrInvalidValence
	}
	if req.StrengthAdjustment < 0.1 || req.StrengthAdjustment > 10 {
		return fmt.Errorf("insight: strength_adjustment %v out of range [0.1, 10]", req.StrengthAdjustment)
	}
	for name, v := range map[string]float64{"confidence": req.Confidence, "importance": req.Importance, "novelty": req.Novelty} {
		if v < 0 || v > 1 {
			return fmt.Errorf("insight: %s %v out of range [0,1]", name, v)
		}
	}
	return nil
}
