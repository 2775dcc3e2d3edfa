package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Orchestrator providers understood by the API.
const (
	ProviderHTTP   = "http"
	ProviderDocker = "docker"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName  string
	AppEnv   string
	AppPort  string
	LogLevel string

	DatabaseURL string
	RedisURL    string
	NATSURL     string
	EventPrefix string

	JWTSecret string
	JWTTTL    time.Duration

	OrchestratorProvider  string
	OrchestratorURL       string
	OrchestratorNamespace string
	OrchestratorTimeout   time.Duration
	DockerHost            string
	DockerNetwork         string

	BaseDomain         string
	TLSCert            string
	ImagePullSecrets   []string
	InstanceTTL        time.Duration
	FlagPrefix         string
	MaxSubdomainLength int
	ReaperInterval     time.Duration

	SubmitRateLimit  int
	SubmitRateWindow time.Duration

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// UploadsEnabled reports whether challenge attachments can be stored.
func (c Config) UploadsEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CTF")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "CTF API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("nats.subject_prefix", "ctf")
	v.SetDefault("jwt.ttl", "24h")
	v.SetDefault("orchestrator.provider", ProviderHTTP)
	v.SetDefault("orchestrator.url", "https://challenge-manager.cfrt.dev")
	v.SetDefault("orchestrator.namespace", "default")
	v.SetDefault("orchestrator.timeout", "15s")
	v.SetDefault("docker.network", "bridge")
	v.SetDefault("challenge.base_domain", "tasks.cfrt.dev")
	v.SetDefault("challenge.tls_cert", "wildcard-cert")
	v.SetDefault("challenge.instance_ttl", "1h")
	v.SetDefault("challenge.flag_prefix", "flag")
	v.SetDefault("challenge.max_subdomain_length", 63)
	v.SetDefault("reaper.interval", "30s")
	v.SetDefault("submit.rate_limit", 10)
	v.SetDefault("submit.rate_window", "1m")
	v.SetDefault("cloudinary.folder", "ctf/challenges")

	durations := map[string]time.Duration{}
	for _, key := range []string{"jwt.ttl", "orchestrator.timeout", "challenge.instance_ttl", "reaper.interval", "submit.rate_window"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		LogLevel:               strings.ToLower(v.GetString("log.level")),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		EventPrefix:            v.GetString("nats.subject_prefix"),
		JWTSecret:              v.GetString("jwt.secret"),
		JWTTTL:                 durations["jwt.ttl"],
		OrchestratorProvider:   strings.ToLower(v.GetString("orchestrator.provider")),
		OrchestratorURL:        strings.TrimRight(v.GetString("orchestrator.url"), "/"),
		OrchestratorNamespace:  v.GetString("orchestrator.namespace"),
		OrchestratorTimeout:    durations["orchestrator.timeout"],
		DockerHost:             v.GetString("docker_host"),
		DockerNetwork:          v.GetString("docker.network"),
		BaseDomain:             v.GetString("challenge.base_domain"),
		TLSCert:                v.GetString("challenge.tls_cert"),
		ImagePullSecrets:       splitList(v.GetString("challenge.image_pull_secrets")),
		InstanceTTL:            durations["challenge.instance_ttl"],
		FlagPrefix:             v.GetString("challenge.flag_prefix"),
		MaxSubdomainLength:     v.GetInt("challenge.max_subdomain_length"),
		ReaperInterval:         durations["reaper.interval"],
		SubmitRateLimit:        v.GetInt("submit.rate_limit"),
		SubmitRateWindow:       durations["submit.rate_window"],
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.OrchestratorProvider {
	case ProviderHTTP:
		if cfg.OrchestratorURL == "" {
			return Config{}, fmt.Errorf("orchestrator url must be provided for the http provider")
		}
	case ProviderDocker:
	default:
		return Config{}, fmt.Errorf("unsupported orchestrator provider %q", cfg.OrchestratorProvider)
	}

	if cfg.MaxSubdomainLength <= 0 {
		cfg.MaxSubdomainLength = 63
	}

	if cfg.SubmitRateLimit <= 0 {
		cfg.SubmitRateLimit = 10
	}

	return cfg, nil
}

func splitList(input string) []string {
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
