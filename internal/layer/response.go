package layer

import (
	"encoding/json"
	"regexp"
	"strings"
)

// insightPayload is the shape an llm_call response is expected to carry
// for a store_insight node, either as bare JSON or fenced in a code block.
type insightPayload struct {
	Content            string   `json:"content"`
	Confidence         *float64 `json:"confidence"`
	Importance         *float64 `json:"importance"`
	Novelty            *float64 `json:"novelty"`
	StrengthAdjustment *float64 `json:"strength_adjustment"`
	Joy                *float64 `json:"joy"`
	Concern            *float64 `json:"concern"`
	Curiosity          *float64 `json:"curiosity"`
	Warmth             *float64 `json:"warmth"`
	Tension            *float64 `json:"tension"`
	Supersedes         string   `json:"supersedes"`
	ContextChannel     string   `json:"context_channel"`
	ContextThread      string   `json:"context_thread"`
	ContextSubject     string   `json:"context_subject"`
	Participants       []string `json:"participants"`
	SynthesisSources   []string `json:"synthesis_sources"`
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// parseInsightResponse parses an llm_call response into an insightPayload.
// fellBack reports whether the graceful fallback applied: the raw text
// became content and default metrics filled in the rest.
func parseInsightResponse(raw string) (payload insightPayload, fellBack bool) {
	candidate := strings.TrimSpace(raw)
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		candidate = strings.TrimSpace(m[1])
	}
	var p insightPayload
	if err := json.Unmarshal([]byte(candidate), &p); err == nil && p.Content != "" {
		return p, false
	}
	return fallbackPayload(raw), true
}

func fallbackPayload(raw string) insightPayload {
	return insightPayload{
		Content:            raw,
		Confidence:         floatPtr(0.5),
		Importance:         floatPtr(0.5),
		Novelty:            floatPtr(0.5),
		StrengthAdjustment: floatPtr(1.0),
		Curiosity:          floatPtr(0.5),
	}
}

func floatPtr(v float64) *float64 { return &v }

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// selfConceptDecision is the optional gate parsed from a prior llm_call
// response for a conditional update_self_concept node.
type selfConceptDecision struct {
	ShouldUpdate bool   `json:"should_update"`
	Content      string `json:"content"`
}

func parseSelfConceptDecision(raw string) (selfConceptDecision, bool) {
	candidate := strings.TrimSpace(raw)
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		candidate = strings.TrimSpace(m[1])
	}
	var d selfConceptDecision
	if err := json.Unmarshal([]byte(candidate), &d); err != nil {
		return selfConceptDecision{}, false
	}
	return d, true
}
