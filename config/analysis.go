package config

// AnalysisConfig contains configuration for the language-model analysis provider.
type AnalysisConfig struct {
	// APIKey is the provider credential. The pipeline fails fast when a job
	// requires analysis and no key is configured.
	APIKey string `env:"ANALYSIS_API_KEY"`

	// BaseURL overrides the provider endpoint (for OpenAI-compatible gateways).
	// Empty means the provider default.
	BaseURL string `env:"ANALYSIS_BASE_URL"`

	// ModelDefault is the model used when the task options carry no
	// recognized analysis tier.
	ModelDefault string `env:"ANALYSIS_MODEL_DEFAULT" envDefault:"gpt-4o-mini"`

	// ModelFast is the model used for the "fast" analysis tier.
	ModelFast string `env:"ANALYSIS_MODEL_FAST" envDefault:"gpt-4o-mini"`

	// ModelDeep is the model used for the "deep" analysis tier.
	ModelDeep string `env:"ANALYSIS_MODEL_DEEP" envDefault:"gpt-4o"`

	// DefaultTemperature is used when the task options carry no usable
	// temperature value.
	DefaultTemperature float64 `env:"ANALYSIS_TEMPERATURE" envDefault:"0.2"`

	// PromptDir is the directory holding prompt files. A prompt reference
	// without a path separator resolves to <PromptDir>/<ref>.txt.
	PromptDir string `env:"ANALYSIS_PROMPT_DIR" envDefault:"prompts"`

	// DefaultPrompt is the prompt reference used when the task options carry none.
	DefaultPrompt string `env:"ANALYSIS_PROMPT_DEFAULT" envDefault:"default"`
}

// Sanitize applies guardrails to analysis configuration values.
func (a *AnalysisConfig) Sanitize() {
	if a.DefaultTemperature < 0 || a.DefaultTemperature > 2 {
		a.DefaultTemperature = 0.2
	}
	if a.ModelDefault == "" {
		a.ModelDefault = "gpt-4o-mini"
	}
	if a.ModelFast == "" {
		a.ModelFast = a.ModelDefault
	}
	if a.ModelDeep == "" {
		a.ModelDeep = a.ModelDefault
	}
}

// GitHubConfig contains configuration for the repository fetch adapter.
type GitHubConfig struct {
	// Token is the GitHub API token. Optional; unauthenticated requests are
	// heavily rate limited but work for public repositories.
	Token string `env:"GITHUB_TOKEN"`

	// APIBaseURL is the GitHub REST API base (override for GHE).
	APIBaseURL string `env:"GITHUB_API_BASE_URL" envDefault:"https://api.github.com"`

	// MaxFileBytes is the per-file size cap when building the code digest.
	MaxFileBytes int64 `env:"GITHUB_MAX_FILE_BYTES" envDefault:"65536"`

	// MaxDigestBytes caps the total digest size handed to the analysis provider.
	MaxDigestBytes int64 `env:"GITHUB_MAX_DIGEST_BYTES" envDefault:"2097152"`
}

// IPFSConfig contains configuration for report publication.
type IPFSConfig struct {
	// APIURL is the IPFS HTTP API endpoint used by the publish operation.
	APIURL string `env:"IPFS_API_URL" envDefault:"http://localhost:5001"`
}
