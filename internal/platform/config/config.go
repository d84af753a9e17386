package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Usage         UsageConfig         `mapstructure:"usage"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Email         EmailConfig         `mapstructure:"email"`
	Payments      PaymentsConfig      `mapstructure:"payments"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Subscriptions SubscriptionsConfig `mapstructure:"subscriptions"`
	Workers       WorkersConfig       `mapstructure:"workers"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Global GlobalDBConfig `mapstructure:"global"`
	Tenant TenantDBConfig `mapstructure:"tenant"`
}

type GlobalDBConfig struct {
	URL            string `mapstructure:"url"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// TenantDBConfig is used by the sql tenant storage backend, which keeps one
// sqlite file per user directory.
type TenantDBConfig struct {
	MaxConnectionsPerUser int `mapstructure:"max_connections_per_user"`
}

type StorageConfig struct {
	// Backend selects where tenant records live: "file" or "sql".
	Backend string `mapstructure:"backend"`
	// BlobBackend selects where document bytes live: "file" or "s3".
	BlobBackend    string   `mapstructure:"blob_backend"`
	RootDir        string   `mapstructure:"root_dir"`
	PathScheme     string   `mapstructure:"path_scheme"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes"`
	S3             S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

type UsageConfig struct {
	// Backend is "memory" (process lifetime) or "sql" (persisted counters).
	Backend string `mapstructure:"backend"`
}

type JWTConfig struct {
	Secret          string        `mapstructure:"secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	CookieName      string        `mapstructure:"cookie_name"`
}

type RateLimitConfig struct {
	APIReadPerMinute  int `mapstructure:"api_read_per_minute"`
	APIWritePerMinute int `mapstructure:"api_write_per_minute"`
	AIPerMinute       int `mapstructure:"ai_per_minute"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

type EmailConfig struct {
	Provider string     `mapstructure:"provider"`
	SMTP     SMTPConfig `mapstructure:"smtp"`
}

type SMTPConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
}

type PaymentsConfig struct {
	Provider  string            `mapstructure:"provider"`
	StripeKey string            `mapstructure:"stripe_key"`
	PriceIDs  map[string]string `mapstructure:"price_ids"`
}

type LLMConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type SubscriptionsConfig struct {
	TrialDays int `mapstructure:"trial_days"`
	// TrialPlan is the plan a new organization trials after signup.
	TrialPlan string `mapstructure:"trial_plan"`
}

type WorkersConfig struct {
	TrialExpiryInterval time.Duration `mapstructure:"trial_expiry_interval"`
	ReconcileInterval   time.Duration `mapstructure:"reconcile_interval"`
	ReconcileDelete     bool          `mapstructure:"reconcile_delete"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("database.global.url", "file:./data/global.db")
	v.SetDefault("database.global.max_connections", 10)
	v.SetDefault("database.tenant.max_connections_per_user", 2)
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.blob_backend", "file")
	v.SetDefault("storage.root_dir", "./user_data")
	v.SetDefault("storage.path_scheme", "hashed")
	v.SetDefault("storage.max_upload_bytes", 50<<20)
	v.SetDefault("usage.backend", "sql")
	v.SetDefault("jwt.access_token_ttl", 15*time.Minute)
	v.SetDefault("jwt.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("jwt.cookie_name", "lawdesk_session")
	v.SetDefault("rate_limit.api_read_per_minute", 1000)
	v.SetDefault("rate_limit.api_write_per_minute", 100)
	v.SetDefault("rate_limit.ai_per_minute", 10)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("llm.model", "claude-3-5-sonnet-latest")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("subscriptions.trial_days", 14)
	v.SetDefault("subscriptions.trial_plan", "professional")
	v.SetDefault("workers.trial_expiry_interval", time.Hour)
	v.SetDefault("workers.reconcile_interval", 24*time.Hour)
}

// Load reads an optional .env file, then the YAML config at path. Environment
// variables override file values (storage.root_dir -> STORAGE_ROOT_DIR).
func Load(path string) (*Config, error) {
	// .env is optional; system environment wins when it is missing.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
