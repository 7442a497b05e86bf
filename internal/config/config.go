package config

import (
	"os"
	"time"
)

// BackendConfig holds the connection settings for one external backend.
type BackendConfig struct {
	URL          string
	Token        string
	AuthUser     string
	AuthPassword string
}

// Config aggregates every environment-driven setting the assistant reads.
type Config struct {
	ListenAddr string
	Version    string

	Loki      BackendConfig
	Tempo     BackendConfig
	Grafana   BackendConfig
	ArgoCD    BackendConfig
	SonarQube BackendConfig
	Milvus    BackendConfig
	Weather   BackendConfig

	SupervisorModel   string
	PlanningModel     string
	OrchestratorModel string
	ValidationModel   string

	DefaultLogLimit   int
	DefaultTraceLimit int
	DefaultTimeRange  string

	RunBudget      time.Duration
	RecursionLimit int

	StateBackend string
	SQLitePath   string
	RedisAddr    string
	SessionsPath string
}

// FromEnv builds a Config from the process environment. Every field has a
// working default so the assistant can start against local backends.
func FromEnv() Config {
	return Config{
		ListenAddr: Getenv("OPSMIND_LISTEN_ADDR", ":8080"),
		Version:    Getenv("OPSMIND_VERSION", "dev"),

		Loki: BackendConfig{
			URL:          Getenv("LOKI_URL", "http://localhost:3100"),
			AuthUser:     os.Getenv("LOKI_AUTH_USER"),
			AuthPassword: os.Getenv("LOKI_AUTH_PASSWORD"),
		},
		Tempo: BackendConfig{
			URL:          Getenv("TEMPO_URL", "http://localhost:3200"),
			AuthUser:     os.Getenv("TEMPO_AUTH_USER"),
			AuthPassword: os.Getenv("TEMPO_AUTH_PASSWORD"),
		},
		Grafana: BackendConfig{
			URL:   Getenv("GRAFANA_URL", "http://localhost:3000"),
			Token: os.Getenv("GRAFANA_TOKEN"),
		},
		ArgoCD: BackendConfig{
			URL:   Getenv("ARGOCD_SERVER", "http://localhost:8090"),
			Token: os.Getenv("ARGOCD_TOKEN"),
		},
		SonarQube: BackendConfig{
			URL:   Getenv("SONARQUBE_URL", "http://localhost:9000"),
			Token: os.Getenv("SONARQUBE_TOKEN"),
		},
		Milvus: BackendConfig{
			URL:   Getenv("MILVUS_URI", "http://localhost:19530"),
			Token: os.Getenv("MILVUS_TOKEN"),
		},
		Weather: BackendConfig{
			URL:   Getenv("WEATHER_API_URL", "https://api.openweathermap.org"),
			Token: os.Getenv("WEATHER_API_KEY"),
		},

		SupervisorModel:   Getenv("SUPERVISOR_MODEL", "gpt-4o-mini"),
		PlanningModel:     Getenv("PLANNING_MODEL", "gpt-4o-mini"),
		OrchestratorModel: Getenv("ORCHESTRATOR_MODEL", "gpt-4o-mini"),
		ValidationModel:   Getenv("VALIDATION_MODEL", "gpt-4o-mini"),

		DefaultLogLimit:   ParseIntEnv("DEFAULT_LOG_LIMIT", 100),
		DefaultTraceLimit: ParseIntEnv("DEFAULT_TRACE_LIMIT", 20),
		DefaultTimeRange:  Getenv("DEFAULT_TIME_RANGE", "1h"),

		RunBudget:      ParseDurationEnv("OPSMIND_RUN_BUDGET", 60*time.Second),
		RecursionLimit: ParseIntEnv("OPSMIND_RECURSION_LIMIT", 100),

		StateBackend: Getenv("OPSMIND_STATE_BACKEND", "sqlite"),
		SQLitePath:   Getenv("OPSMIND_SQLITE_PATH", "./.opsmind/state.db"),
		RedisAddr:    Getenv("OPSMIND_REDIS_ADDR", "127.0.0.1:6379"),
		SessionsPath: Getenv("OPSMIND_SESSIONS_PATH", "./.opsmind/sessions.db"),
	}
}
