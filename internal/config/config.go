// Package config provides configuration types and loading for watcher.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Model, Providers, Gateway, Tools, Salience,
// Retrieval, Executor, Reflect.
type Config struct {
	Paths         PathsConfig                   `json:"paths"`
	Model         ModelConfig                   `json:"model"`
	Agents        *AgentsConfig                 `json:"agents,omitempty"`
	Providers     ProvidersConfig               `json:"providers"`
	Gateway       GatewayConfig                 `json:"gateway"`
	Tools         ToolsConfig                   `json:"tools"`
	Salience      SalienceConfig                `json:"salience"`
	Retrieval     RetrievalConfig               `json:"retrieval"`
	ModelProfiles map[string]ModelProfileConfig `json:"modelProfiles"`
	Executor      ExecutorConfig                `json:"executor"`
	Reflect       ReflectConfig                 `json:"reflect"`
}

// ---------------------------------------------------------------------------
// Executor – layer execution limits
// ---------------------------------------------------------------------------

// ExecutorConfig bounds per-run retry and truncation behaviour.
type ExecutorConfig struct {
	MaxRetries      int `json:"maxRetries" envconfig:"EXECUTOR_MAX_RETRIES"`
	MaxPromptTokens int `json:"maxPromptTokens" envconfig:"EXECUTOR_MAX_PROMPT_TOKENS"`
}

// ---------------------------------------------------------------------------
// Reflect – layer activation scheduling
// ---------------------------------------------------------------------------

// ReflectConfig governs the reflection scheduler: cron-driven and
// threshold-driven layer activation, and the single-writer-per-layer lock.
type ReflectConfig struct {
	Enabled           bool          `json:"enabled" envconfig:"REFLECT_ENABLED"`
	TickInterval      time.Duration `json:"tickInterval" envconfig:"REFLECT_TICK_INTERVAL"`
	MisfireGrace      time.Duration `json:"misfireGrace" envconfig:"REFLECT_MISFIRE_GRACE"`
	LockDir           string        `json:"lockDir" envconfig:"REFLECT_LOCK_DIR"`
	DefaultTargetCost float64       `json:"defaultTargetCost" envconfig:"REFLECT_DEFAULT_TARGET_COST"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	Workspace      string `json:"workspace" envconfig:"WORKSPACE"`
	WorkRepoPath   string `json:"workRepoPath" envconfig:"WORK_REPO_PATH"`
	SystemRepoPath string `json:"systemRepoPath" envconfig:"SYSTEM_REPO_PATH"`
	LayersDir      string `json:"layersDir" envconfig:"LAYERS_DIR"`
	TemplatesDir   string `json:"templatesDir" envconfig:"TEMPLATES_DIR"`
	SelfConceptDir string `json:"selfConceptDir" envconfig:"SELF_CONCEPT_DIR"`
	DatabasePath   string `json:"databasePath" envconfig:"DATABASE_PATH"`
}

// ---------------------------------------------------------------------------
// Model – LLM behaviour
// ---------------------------------------------------------------------------

// ModelConfig groups LLM model and agent-loop settings.
type ModelConfig struct {
	Name              string            `json:"name" envconfig:"MODEL"`
	MaxTokens         int               `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature       float64           `json:"temperature" envconfig:"TEMPERATURE"`
	MaxToolIterations int               `json:"maxToolIterations" envconfig:"MAX_TOOL_ITERATIONS"`
	TaskRouting       map[string]string `json:"taskRouting,omitempty"` // task category -> "provider/model"
}

// ---------------------------------------------------------------------------
// Providers – LLM API keys & endpoints
// ---------------------------------------------------------------------------

// ProvidersConfig contains LLM provider configurations.
type ProvidersConfig struct {
	Anthropic        ProviderConfig     `json:"anthropic"`
	OpenAI           ProviderConfig     `json:"openai"`
	LocalWhisper     LocalWhisperConfig `json:"localWhisper"`
	OpenRouter       ProviderConfig     `json:"openrouter"`
	DeepSeek         ProviderConfig     `json:"deepseek"`
	Groq             ProviderConfig     `json:"groq"`
	Gemini           ProviderConfig     `json:"gemini"`
	VLLM             ProviderConfig     `json:"vllm"`
	XAI              ProviderConfig     `json:"xai"`
	ScalyticsCopilot ProviderConfig     `json:"scalyticsCopilot"`
}

// ProviderConfig contains settings for a single LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
}

// LocalWhisperConfig contains settings for local Whisper transcription.
type LocalWhisperConfig struct {
	Enabled    bool   `json:"enabled" envconfig:"WHISPER_ENABLED"`
	Model      string `json:"model" envconfig:"WHISPER_MODEL"`
	BinaryPath string `json:"binaryPath" envconfig:"WHISPER_BINARY_PATH"`
}

// ---------------------------------------------------------------------------
// Gateway – HTTP server networking
// ---------------------------------------------------------------------------

// GatewayConfig contains gateway server settings.
type GatewayConfig struct {
	Host          string `json:"host" envconfig:"HOST"`
	Port          int    `json:"port" envconfig:"PORT"`
	DashboardPort int    `json:"dashboardPort" envconfig:"DASHBOARD_PORT"`
	AuthToken     string `json:"authToken" envconfig:"AUTH_TOKEN"`
	TLSCert       string `json:"tlsCert" envconfig:"TLS_CERT"`
	TLSKey        string `json:"tlsKey" envconfig:"TLS_KEY"`
}

// ---------------------------------------------------------------------------
// Tools – tool-specific behaviour
// ---------------------------------------------------------------------------

// ToolsConfig contains tool-specific settings.
type ToolsConfig struct {
	Exec      ExecToolConfig      `json:"exec"`
	Web       WebToolConfig       `json:"web"`
	Subagents SubagentsToolConfig `json:"subagents"`
}

// AgentsConfig lists the configured agent identities.
type AgentsConfig struct {
	List []AgentListEntry `json:"list,omitempty"`
}

// AgentListEntry describes a configured agent identity.
type AgentListEntry struct {
	ID        string              `json:"id"`
	Name      string              `json:"name,omitempty"`
	Default   bool                `json:"default,omitempty"`
	Model     *AgentModelSpec     `json:"model,omitempty"`
	Subagents *AgentSubagentsSpec `json:"subagents,omitempty"`
}

// AgentModelSpec pins an agent to a primary model with ordered fallbacks,
// overriding ModelConfig.Name for that one agent.
type AgentModelSpec struct {
	Primary   string   `json:"primary"`
	Fallbacks []string `json:"fallbacks,omitempty"`
}

// AgentSubagentsSpec overrides the global subagent model for one agent.
type AgentSubagentsSpec struct {
	Model string `json:"model,omitempty"`
}

// ExecToolConfig contains shell execution tool settings.
type ExecToolConfig struct {
	Timeout             time.Duration `json:"timeout"`
	RestrictToWorkspace bool          `json:"restrictToWorkspace" envconfig:"EXEC_RESTRICT_WORKSPACE"`
}

// WebToolConfig contains web tool settings.
type WebToolConfig struct {
	Search SearchConfig `json:"search"`
}

// SearchConfig contains web search settings.
type SearchConfig struct {
	APIKey     string `json:"apiKey" envconfig:"BRAVE_API_KEY"`
	MaxResults int    `json:"maxResults"`
}

// SubagentsToolConfig contains limits for spawned child agent sessions.
type SubagentsToolConfig struct {
	MaxConcurrent       int                `json:"maxConcurrent" envconfig:"MAX_CONCURRENT"`
	MaxSpawnDepth       int                `json:"maxSpawnDepth" envconfig:"MAX_SPAWN_DEPTH"`
	MaxChildrenPerAgent int                `json:"maxChildrenPerAgent" envconfig:"MAX_CHILDREN_PER_AGENT"`
	ArchiveAfterMinutes int                `json:"archiveAfterMinutes" envconfig:"ARCHIVE_AFTER_MINUTES"`
	AllowAgents         []string           `json:"allowAgents" envconfig:"ALLOW_AGENTS"`
	Model               string             `json:"model" envconfig:"MODEL"`
	Thinking            string             `json:"thinking" envconfig:"THINKING"`
	Tools               SubagentToolPolicy `json:"tools"`
}

type SubagentToolPolicy struct {
	Allow []string `json:"allow"`
	Deny  []string `json:"deny"`
}

// ---------------------------------------------------------------------------
// Salience – the watcher's earning/decay/propagation policy
// ---------------------------------------------------------------------------

// SalienceConfig holds every numeric policy the ledger applies.
type SalienceConfig struct {
	Weights             SalienceWeights    `json:"weights"`
	Caps                map[string]float64 `json:"caps"`         // category -> per-topic cap
	BudgetGroups        map[string]float64 `json:"budgetGroups"` // group -> allocation fraction (sums to 1, excl. self)
	SelfBudget          float64            `json:"selfBudget" envconfig:"SALIENCE_SELF_BUDGET"`
	WarmThreshold       float64            `json:"warmThreshold" envconfig:"SALIENCE_WARM_THRESHOLD"`
	PropagationFactor   float64            `json:"propagationFactor" envconfig:"SALIENCE_PROPAGATION_FACTOR"`
	GlobalPropagation   float64            `json:"globalPropagationFactor" envconfig:"SALIENCE_GLOBAL_PROPAGATION_FACTOR"`
	SpilloverFactor     float64            `json:"spilloverFactor" envconfig:"SALIENCE_SPILLOVER_FACTOR"`
	RetentionRate       float64            `json:"retentionRate" envconfig:"SALIENCE_RETENTION_RATE"`
	InitialGlobalWarmth float64            `json:"initialGlobalWarmth" envconfig:"SALIENCE_INITIAL_GLOBAL_WARMTH"`
	DecayThresholdDays  int                `json:"decayThresholdDays" envconfig:"SALIENCE_DECAY_THRESHOLD_DAYS"`
	DecayRatePerDay     float64            `json:"decayRatePerDay" envconfig:"SALIENCE_DECAY_RATE_PER_DAY"`
	DecayMinStep        float64            `json:"decayMinStep" envconfig:"SALIENCE_DECAY_MIN_STEP"`
}

// SalienceWeights are the per-event earning amounts.
type SalienceWeights struct {
	Message      float64 `json:"message"`
	Reply        float64 `json:"reply"`
	Mention      float64 `json:"mention"`
	DMMessage    float64 `json:"dmMessage"`
	MediaBoost   float64 `json:"mediaBoostFactor"`
	Reaction     float64 `json:"reaction"`
	ThreadCreate float64 `json:"threadCreate"`
}

// ---------------------------------------------------------------------------
// Retrieval – insight retrieval profile table
// ---------------------------------------------------------------------------

// RetrievalConfig names the four fixed retrieval profiles by weight pair.
type RetrievalConfig struct {
	Profiles map[string]RetrievalProfile `json:"profiles"`
}

// RetrievalProfile is one (recency weight, strength weight) pair.
type RetrievalProfile struct {
	RecencyWeight      float64 `json:"recencyWeight"`
	StrengthWeight     float64 `json:"strengthWeight"`
	IncludeConflicting bool    `json:"includeConflicting"`
}

// ---------------------------------------------------------------------------
// ModelProfiles – named model/provider/timeout bundles for llm_call nodes
// ---------------------------------------------------------------------------

// ModelProfileConfig names one resolvable (provider, model, timeout) bundle.
type ModelProfileConfig struct {
	Provider    string        `json:"provider"`
	Model       string        `json:"model"`
	MaxTokens   int           `json:"maxTokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Workspace:      "~/watcher-workspace",
			WorkRepoPath:   "~/watcher-workspace",
			SystemRepoPath: "~/watcher-workspace",
			LayersDir:      "./layers",
			TemplatesDir:   "./prompts",
			SelfConceptDir: "./self",
			DatabasePath:   "./watcher.db",
		},
		Model: ModelConfig{
			Name:              "anthropic/claude-sonnet-4-5",
			MaxTokens:         8192,
			Temperature:       0.7,
			MaxToolIterations: 20,
		},
		Providers: ProvidersConfig{
			LocalWhisper: LocalWhisperConfig{
				Enabled:    true,
				Model:      "base",
				BinaryPath: "/opt/homebrew/bin/whisper",
			},
		},
		Gateway: GatewayConfig{
			Host:          "127.0.0.1", // Secure default
			Port:          18790,
			DashboardPort: 18791,
		},
		Tools: ToolsConfig{
			Exec: ExecToolConfig{
				Timeout:             60 * time.Second,
				RestrictToWorkspace: true, // Secure default
			},
			Web: WebToolConfig{
				Search: SearchConfig{
					MaxResults: 10,
				},
			},
			Subagents: SubagentsToolConfig{
				MaxConcurrent:       8,
				MaxSpawnDepth:       1,
				MaxChildrenPerAgent: 5,
				ArchiveAfterMinutes: 60,
			},
		},
		Salience: SalienceConfig{
			Weights: SalienceWeights{
				Message:      1.0,
				Reply:        0.5,
				Mention:      0.3,
				DMMessage:    1.5,
				MediaBoost:   1.5,
				Reaction:     0.2,
				ThreadCreate: 0.7,
			},
			Caps: map[string]float64{
				"user":             10,
				"dyad":             10,
				"channel":          20,
				"thread":           10,
				"role":             5,
				"user_in_channel":  5,
				"dyad_in_channel":  5,
				"subject":          8,
				"emoji":            3,
				"self":             50,
			},
			BudgetGroups: map[string]float64{
				"social":   0.35,
				"global":   0.2,
				"spaces":   0.25,
				"semantic": 0.15,
				"culture":  0.05,
			},
			SelfBudget:          5,
			WarmThreshold:       1.0,
			PropagationFactor:   0.3,
			GlobalPropagation:   0.15,
			SpilloverFactor:     0.5,
			RetentionRate:       0.3,
			InitialGlobalWarmth: 1.5,
			DecayThresholdDays:  7,
			DecayRatePerDay:     0.01,
			DecayMinStep:        0.001,
		},
		Retrieval: RetrievalConfig{
			Profiles: map[string]RetrievalProfile{
				"recent":        {RecencyWeight: 0.8, StrengthWeight: 0.2},
				"balanced":      {RecencyWeight: 0.5, StrengthWeight: 0.5},
				"deep":          {RecencyWeight: 0.3, StrengthWeight: 0.7},
				"comprehensive": {RecencyWeight: 0.5, StrengthWeight: 0.5, IncludeConflicting: true},
			},
		},
		ModelProfiles: map[string]ModelProfileConfig{
			"default": {
				Provider:    "anthropic",
				Model:       "anthropic/claude-sonnet-4-5",
				MaxTokens:   2048,
				Temperature: 0.7,
				Timeout:     30 * time.Second,
			},
		},
		Executor: ExecutorConfig{
			MaxRetries:      3,
			MaxPromptTokens: 6000,
		},
		Reflect: ReflectConfig{
			Enabled:           false,
			TickInterval:      60 * time.Second,
			MisfireGrace:      time.Hour,
			LockDir:           "./locks",
			DefaultTargetCost: 5,
		},
	}
}
