package types

import "time"

// Operator names understood by the operator builder.
const (
	OpNormalizeEvidence       = "normalize_evidence"
	OpMergeDuplicates         = "merge_duplicates"
	OpRemoveWeak              = "remove_weak"
	OpModelMergeDuplicates    = "model_merge_duplicates"
	OpModelExtractAssumptions = "model_extract_assumptions"
)

// OperatorSpec names one operator in the refinement pipeline and carries its
// parameters. Unused parameters are ignored.
type OperatorSpec struct {
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Threshold is the evidence-overlap similarity for merge_duplicates.
	// Nil means the default (0.8); an explicit zero is kept.
	Threshold *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty" mapstructure:"threshold"`

	// MinConfidence is the cut-off for remove_weak. Nil means the default
	// (0.3); an explicit zero keeps every claim.
	MinConfidence *float64 `json:"min_confidence,omitempty" yaml:"min_confidence,omitempty" mapstructure:"min_confidence"`

	// Trim makes normalize_evidence also trim whitespace and drop empty
	// evidence entries.
	Trim bool `json:"trim,omitempty" yaml:"trim,omitempty" mapstructure:"trim"`
}

// Float64 returns a pointer to v, for OperatorSpec literals.
func Float64(v float64) *float64 { return &v }

// RefineConfig holds settings for the refinement stage.
type RefineConfig struct {
	// MaxIterations caps the fixed-point loop (default 100). Zero means the
	// loop body never runs.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations" mapstructure:"max_iterations"`

	// Verbose raises engine diagnostics from debug to info.
	Verbose bool `json:"verbose" yaml:"verbose" mapstructure:"verbose"`

	// Operators is the ordered pipeline. Order matters.
	Operators []OperatorSpec `json:"operators" yaml:"operators" mapstructure:"operators"`
}

// DefaultRefineConfig returns the rule-based pipeline with its stock
// parameters.
func DefaultRefineConfig() RefineConfig {
	return RefineConfig{
		MaxIterations: 100,
		Operators: []OperatorSpec{
			{Name: OpNormalizeEvidence},
			{Name: OpMergeDuplicates, Threshold: Float64(0.8)},
			{Name: OpRemoveWeak, MinConfidence: Float64(0.3)},
		},
	}
}

// AIProvider identifies the text-generation service.
type AIProvider string

const (
	ProviderClaude AIProvider = "claude"
	ProviderOpenAI AIProvider = "openai"
)

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Provider selects the backend: claude or openai.
	Provider AIProvider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// MaxTokens bounds each response (default 4096).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// RequestsPerSecond throttles calls; zero disables throttling.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// CacheTTL keeps identical prompts from being sent twice within the
	// window; zero disables caching.
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`

	// Timeout bounds a single request (default 60s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// DefaultAIConfig returns the Claude defaults.
func DefaultAIConfig() AIConfig {
	return AIConfig{
		Provider:   ProviderClaude,
		Model:      "claude-sonnet-4-5-20250929",
		MaxRetries: 3,
		MaxTokens:  4096,
		CacheTTL:   10 * time.Minute,
		Timeout:    60 * time.Second,
	}
}

// ExtractionConfig holds settings for the claim extraction stage.
type ExtractionConfig struct {
	// DocumentsDir contains the Markdown documents to extract from.
	DocumentsDir string `json:"documents_dir" yaml:"documents_dir" mapstructure:"documents_dir"`

	// KnowledgeDir is the base directory for knowledge output (contains states/).
	KnowledgeDir string `json:"knowledge_dir" yaml:"knowledge_dir" mapstructure:"knowledge_dir"`
}

// KnowledgeBaseConfig holds settings for the claim base.
type KnowledgeBaseConfig struct {
	// KnowledgeDir is the base directory for knowledge (contains states/, index/).
	KnowledgeDir string `json:"knowledge_dir" yaml:"knowledge_dir" mapstructure:"knowledge_dir"`

	// MaxResults is the default maximum number of search results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// Config groups every stage configuration.
type Config struct {
	Refine        RefineConfig        `json:"refine" yaml:"refine" mapstructure:"refine"`
	AI            AIConfig            `json:"ai" yaml:"ai" mapstructure:"ai"`
	Extraction    ExtractionConfig    `json:"extraction" yaml:"extraction" mapstructure:"extraction"`
	KnowledgeBase KnowledgeBaseConfig `json:"knowledge_base" yaml:"knowledge_base" mapstructure:"knowledge_base"`
}

// DefaultConfig returns the configuration used when no file or flag
// overrides a value.
func DefaultConfig() Config {
	return Config{
		Refine: DefaultRefineConfig(),
		AI:     DefaultAIConfig(),
		Extraction: ExtractionConfig{
			DocumentsDir: "documents",
			KnowledgeDir: "knowledge",
		},
		KnowledgeBase: KnowledgeBaseConfig{
			KnowledgeDir: "knowledge",
			MaxResults:   20,
		},
	}
}
