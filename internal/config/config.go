package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// ParserConfig controls the voice-command state machine.
type ParserConfig struct {
	WakePhrase        string   `yaml:"wake_phrase"`
	WakeAliases       []string `yaml:"wake_aliases"`
	IdleTimeoutSec    int      `yaml:"idle_timeout_sec"`
	MaxIdleWords      int      `yaml:"max_idle_words"`
	CallKeywords      []string `yaml:"call_keywords"`
	ParkKeywords      []string `yaml:"park_keywords"`
	SummitKeywords    []string `yaml:"summit_keywords"`
	FrequencyKeywords []string `yaml:"frequency_keywords"`
	EndKeywords       []string `yaml:"end_keywords"`
}

// SpotterConfig controls record building and dispatch.
type SpotterConfig struct {
	Callsign           string `yaml:"callsign"`
	DefaultMode        string `yaml:"default_mode"`
	Comment            string `yaml:"comment"`
	DryRun             bool   `yaml:"dry_run"`
	DispatchTimeoutSec int    `yaml:"dispatch_timeout_sec"`
}

type DXClusterConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type POTAConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIURL  string `yaml:"api_url"`
}

type SOTAConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIURL    string `yaml:"api_url"`
	SSOURL    string `yaml:"sso_url"`
	ClientID  string `yaml:"client_id"`
	TokenPath string `yaml:"token_path"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Parser      ParserConfig     `yaml:"parser"`
	Spotter     SpotterConfig    `yaml:"spotter"`
	DXCluster   DXClusterConfig  `yaml:"dxcluster"`
	POTA        POTAConfig       `yaml:"pota"`
	SOTA        SOTAConfig       `yaml:"sota"`
}

func Default() Config {
	return Config{
		RuntimeName: "talkspot",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/talkspot-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Parser: ParserConfig{
			WakePhrase: "talk spotter",
			WakeAliases: []string{
				"talk sport",
				"talk spot",
				"top spot",
				"hot spot",
				"hawks potter",
				"talk potter",
				"talks potter",
				"talks spotter",
				"talk spotted",
			},
			IdleTimeoutSec:    30,
			MaxIdleWords:      20,
			CallKeywords:      []string{"call"},
			ParkKeywords:      []string{"parks", "pota"},
			SummitKeywords:    []string{"summits", "sota"},
			FrequencyKeywords: []string{"frequency"},
			EndKeywords:       []string{"end"},
		},
		Spotter: SpotterConfig{
			DefaultMode:        "SSB",
			Comment:            "Spotted via TalkSpot",
			DispatchTimeoutSec: 10,
		},
		DXCluster: DXClusterConfig{
			Enabled:    false,
			Host:       "dx.w1nr.net",
			Port:       7300,
			TimeoutSec: 10,
		},
		POTA: POTAConfig{
			Enabled: false,
			APIURL:  "https://api.pota.app/spot",
		},
		SOTA: SOTAConfig{
			Enabled:  false,
			APIURL:   "https://api-db2.sota.org.uk/api/spots",
			SSOURL:   "https://sso.sota.org.uk/auth/realms/SOTA/protocol/openid-connect",
			ClientID: "polo",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "TALKSPOT_RUNTIME_NAME")
	overrideString(&cfg.Environment, "TALKSPOT_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "TALKSPOT_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "TALKSPOT_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "TALKSPOT_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "TALKSPOT_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "TALKSPOT_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "TALKSPOT_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "TALKSPOT_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "TALKSPOT_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "TALKSPOT_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "TALKSPOT_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "TALKSPOT_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "TALKSPOT_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "TALKSPOT_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "TALKSPOT_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "TALKSPOT_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "TALKSPOT_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "TALKSPOT_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "TALKSPOT_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Parser.WakePhrase, "TALKSPOT_PARSER_WAKE_PHRASE")
	overrideStringSlice(&cfg.Parser.WakeAliases, "TALKSPOT_PARSER_WAKE_ALIASES")
	overrideInt(&cfg.Parser.IdleTimeoutSec, "TALKSPOT_PARSER_IDLE_TIMEOUT_SEC")
	overrideInt(&cfg.Parser.MaxIdleWords, "TALKSPOT_PARSER_MAX_IDLE_WORDS")
	overrideString(&cfg.Spotter.Callsign, "TALKSPOT_SPOTTER_CALLSIGN")
	overrideString(&cfg.Spotter.DefaultMode, "TALKSPOT_SPOTTER_DEFAULT_MODE")
	overrideString(&cfg.Spotter.Comment, "TALKSPOT_SPOTTER_COMMENT")
	overrideBool(&cfg.Spotter.DryRun, "TALKSPOT_SPOTTER_DRY_RUN")
	overrideInt(&cfg.Spotter.DispatchTimeoutSec, "TALKSPOT_SPOTTER_DISPATCH_TIMEOUT_SEC")
	overrideBool(&cfg.DXCluster.Enabled, "TALKSPOT_DXCLUSTER_ENABLED")
	overrideString(&cfg.DXCluster.Host, "TALKSPOT_DXCLUSTER_HOST")
	overrideInt(&cfg.DXCluster.Port, "TALKSPOT_DXCLUSTER_PORT")
	overrideInt(&cfg.DXCluster.TimeoutSec, "TALKSPOT_DXCLUSTER_TIMEOUT_SEC")
	overrideBool(&cfg.POTA.Enabled, "TALKSPOT_POTA_ENABLED")
	overrideString(&cfg.POTA.APIURL, "TALKSPOT_POTA_API_URL")
	overrideBool(&cfg.SOTA.Enabled, "TALKSPOT_SOTA_ENABLED")
	overrideString(&cfg.SOTA.APIURL, "TALKSPOT_SOTA_API_URL")
	overrideString(&cfg.SOTA.SSOURL, "TALKSPOT_SOTA_SSO_URL")
	overrideString(&cfg.SOTA.ClientID, "TALKSPOT_SOTA_CLIENT_ID")
	overrideString(&cfg.SOTA.TokenPath, "TALKSPOT_SOTA_TOKEN_PATH")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if strings.TrimSpace(cfg.Parser.WakePhrase) == "" {
		return errors.New("parser.wake_phrase must not be empty")
	}
	if cfg.Parser.IdleTimeoutSec <= 0 {
		return errors.New("parser.idle_timeout_sec must be positive")
	}
	if cfg.Parser.MaxIdleWords < 0 {
		return errors.New("parser.max_idle_words must be >= 0")
	}
	if cfg.Spotter.DispatchTimeoutSec <= 0 {
		return errors.New("spotter.dispatch_timeout_sec must be positive")
	}
	anyDestination := cfg.DXCluster.Enabled || cfg.POTA.Enabled || cfg.SOTA.Enabled
	if anyDestination && !cfg.Spotter.DryRun && strings.TrimSpace(cfg.Spotter.Callsign) == "" {
		return errors.New("spotter.callsign must be set when a destination is enabled")
	}
	if cfg.DXCluster.Enabled {
		if cfg.DXCluster.Host == "" {
			return errors.New("dxcluster.host must be set when enabled")
		}
		if cfg.DXCluster.Port <= 0 || cfg.DXCluster.Port > 65535 {
			return errors.New("dxcluster.port must be between 1 and 65535")
		}
	}
	if cfg.POTA.Enabled && cfg.POTA.APIURL == "" {
		return errors.New("pota.api_url must be set when enabled")
	}
	if cfg.SOTA.Enabled {
		if cfg.SOTA.APIURL == "" {
			return errors.New("sota.api_url must be set when enabled")
		}
		if cfg.SOTA.ClientID == "" {
			return errors.New("sota.client_id must be set when enabled")
		}
	}
	return nil
}
