package config

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int         `yaml:"port"`
	DSN            string      `yaml:"dsn"` // MySQL DSN
	RedisURL       string      `yaml:"redis_url"`
	Env            string      `yaml:"env"` // "development" | "production"
	JWTSecret      string      `yaml:"jwt_secret"`
	AllowedOrigins []string    `yaml:"allowed_origins"`
	Owner          OwnerConfig `yaml:"owner"`
	AI             AIConfig    `yaml:"ai"`
	Vault          VaultConfig `yaml:"vault"`
	Bark           BarkConfig  `yaml:"bark"`
}

// OwnerConfig seeds the case-manager account on first boot.
type OwnerConfig struct {
	Username     string `yaml:"username"`
	Name         string `yaml:"name"`
	Mail         string `yaml:"mail"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

// AIConfig selects model providers and per-task model assignments.
type AIConfig struct {
	Providers      []AIProvider       `yaml:"providers"`
	DraftingModel  *AIModelAssignment `yaml:"drafting_model,omitempty"`
	EvaluatorModel *AIModelAssignment `yaml:"evaluator_model,omitempty"`
}

// AIModelAssignment pins a task to a provider and optionally overrides its model.
type AIModelAssignment struct {
	ProviderID string `yaml:"provider_id"`
	Model      string `yaml:"model"`
}

// AIProvider describes one configured model provider.
type AIProvider struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Type         string `yaml:"type"` // OpenAI | OpenAI-Compatible | Anthropic
	APIKey       string `yaml:"api_key"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	DefaultModel string `yaml:"default_model"`
	Enabled      bool   `yaml:"enabled"`
}

// VaultConfig points at the evidence retrieval (chunk search) service.
type VaultConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	TopK     int    `yaml:"top_k"`
}

// BarkConfig enables push notifications for long-running generation runs.
type BarkConfig struct {
	Key       string `yaml:"key"`
	ServerURL string `yaml:"server_url"`
	Title     string `yaml:"title"`
}
