// Package layer implements the layer executor: the component that
// drives one declarative reflection pipeline against a set of selected
// topics and produces a run record plus zero or more insights.
package layer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NodeType identifies one of the recognized node contracts.
type NodeType string

const (
	NodeFetchMessages     NodeType = "fetch_messages"
	NodeFetchInsights     NodeType = "fetch_insights"
	NodeFetchLayerRuns    NodeType = "fetch_layer_runs"
	NodeLLMCall           NodeType = "llm_call"
	NodeStoreInsight      NodeType = "store_insight"
	NodeUpdateSelfConcept NodeType = "update_self_concept"
	NodeSynthesizeGlobal  NodeType = "synthesize_to_global"
	NodeReduceOutput      NodeType = "reduce_output"
)

// Node is a tagged-variant record: exactly one of the parameter fields
// below is populated, chosen by Type. Unrecognized keys in the source
// YAML are ignored with a logged warning rather than rejected, since
// layer files are hand-authored and forward compatibility matters more
// than strictness here.
type Node struct {
	Name string   `yaml:"name"`
	Type NodeType `yaml:"type"`

	FetchMessages     *FetchMessagesParams     `yaml:"fetch_messages,omitempty"`
	FetchInsights     *FetchInsightsParams     `yaml:"fetch_insights,omitempty"`
	FetchLayerRuns    *FetchLayerRunsParams    `yaml:"fetch_layer_runs,omitempty"`
	LLMCall           *LLMCallParams           `yaml:"llm_call,omitempty"`
	StoreInsight      *StoreInsightParams      `yaml:"store_insight,omitempty"`
	UpdateSelfConcept *UpdateSelfConceptParams `yaml:"update_self_concept,omitempty"`
	SynthesizeGlobal  *SynthesizeGlobalParams  `yaml:"synthesize_to_global,omitempty"`
	ReduceOutput      *ReduceOutputParams      `yaml:"reduce_output,omitempty"`
}

type FetchMessagesParams struct {
	LookbackHours   int `yaml:"lookback_hours"`
	LimitPerChannel int `yaml:"limit_per_channel"`
	Limit           int `yaml:"limit"`
}

type FetchInsightsParams struct {
	RetrievalProfile string   `yaml:"retrieval_profile"`
	MaxPerTopic      int      `yaml:"max_per_topic"`
	SinceDays        int      `yaml:"since_days"`
	TopicPattern     string   `yaml:"topic_pattern"`
	Categories       []string `yaml:"categories"`
}

type FetchLayerRunsParams struct {
	SinceDays      int  `yaml:"since_days"`
	IncludeErrors  bool `yaml:"include_errors"`
}

type LLMCallParams struct {
	PromptTemplate string  `yaml:"prompt_template"`
	Model          string  `yaml:"model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
}

type StoreInsightParams struct {
	Category string `yaml:"category"`
}

type UpdateSelfConceptParams struct {
	DocumentPath string `yaml:"document_path"`
	Conditional  bool   `yaml:"conditional"`
}

type SynthesizeGlobalParams struct{}

type ReduceOutputParams struct {
	Kind string `yaml:"kind"`
}

// Layer is a declarative reflection pipeline, loaded from an external
// YAML file.
type Layer struct {
	Name             string   `yaml:"name"`
	Category         string   `yaml:"category"`
	Description      string   `yaml:"description"`
	Schedule         string   `yaml:"schedule"`
	TriggerThreshold int      `yaml:"trigger_threshold"`
	TargetCategory   string   `yaml:"target_category"`
	TargetFilter     string   `yaml:"target_filter"`
	MaxTargets       int      `yaml:"max_targets"`
	Nodes            []Node   `yaml:"nodes"`

	ContentHash string `yaml:"-"`
}

// Load parses a layer file from disk and computes its content hash.
func Load(path string) (*Layer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("layer: read %s: %w", path, err)
	}
	var l Layer
	if err := yaml.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("layer: parse %s: %w", path, err)
	}
	if l.Name == "" {
		return nil, fmt.Errorf("layer: %s has no name", path)
	}
	l.ContentHash = contentHash(raw)
	return &l, nil
}

// Validate checks structural invariants: every node has a recognized
// type with its matching parameter block populated, and prompt
// templates referenced by llm_call nodes exist relative to templateDir.
func (l *Layer) Validate(templateDir string) error {
	if len(l.Nodes) == 0 {
		return fmt.Errorf("layer %s: no nodes defined", l.Name)
	}
	for _, n := range l.Nodes {
		switch n.Type {
		case NodeFetchMessages:
			if n.FetchMessages == nil {
				return fmt.Errorf("layer %s: node %s missing fetch_messages params", l.Name, n.Name)
			}
		case NodeFetchInsights:
			if n.FetchInsights == nil {
				return fmt.Errorf("layer %s: node %s missing fetch_insights params", l.Name, n.Name)
			}
		case NodeFetchLayerRuns:
			if n.FetchLayerRuns == nil {
				return fmt.Errorf("layer %s: node %s missing fetch_layer_runs params", l.Name, n.Name)
			}
		case NodeLLMCall:
			if n.LLMCall == nil {
				return fmt.Errorf("layer %s: node %s missing llm_call params", l.Name, n.Name)
			}
			if n.LLMCall.PromptTemplate == "" {
				return fmt.Errorf("layer %s: node %s has no prompt_template", l.Name, n.Name)
			}
			if templateDir != "" {
				path := templateDir + "/" + n.LLMCall.PromptTemplate
				if _, err := os.Stat(path); err != nil {
					return fmt.Errorf("layer %s: node %s references missing template %s", l.Name, n.Name, path)
				}
			}
		case NodeStoreInsight:
			if n.StoreInsight == nil {
				return fmt.Errorf("layer %s: node %s missing store_insight params", l.Name, n.Name)
			}
		case NodeUpdateSelfConcept:
			if n.UpdateSelfConcept == nil {
				return fmt.Errorf("layer %s: node %s missing update_self_concept params", l.Name, n.Name)
			}
		case NodeSynthesizeGlobal, NodeReduceOutput:
			// no required params
		default:
			return fmt.Errorf("layer %s: node %s has unrecognized type %q", l.Name, n.Name, n.Type)
		}
	}
	return nil
}

func contentHash(raw []byte) string {
	var sum uint64 = 1469598103934665603 // FNV-1a offset basis
	for _, b := range raw {
		sum ^= uint64(b)
		sum *= 1099511628211
	}
	return fmt.Sprintf("%016x", sum)
}
