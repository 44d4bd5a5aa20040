package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

// SlogLevel maps the configured level name onto slog's levels. Unknown names
// fall back to info.
func (t TelemetryConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(t.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type HTTPConfig struct {
	Bind        string `yaml:"bind"`
	Port        int    `yaml:"port"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
	HistoryRows int    `yaml:"history_rows"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type NotifierConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Broker         string `yaml:"broker"`
	Topic          string `yaml:"topic"`
	QoS            int    `yaml:"qos"`
	ConnectTimeout int    `yaml:"connect_timeout_ms"`
	PublishTimeout int    `yaml:"publish_timeout_ms"`
}

type PipelineConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Mode       string `yaml:"mode"` // mock, tflite
	ModelPath  string `yaml:"model_path"`
	LabelsPath string `yaml:"labels_path"`
	Threads    int    `yaml:"threads"`
}

type PipelinesConfig struct {
	Default string         `yaml:"default"` // mel, mfcc
	Mel     PipelineConfig `yaml:"mel"`
	MFCC    PipelineConfig `yaml:"mfcc"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRecords    int    `yaml:"max_records"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type ExportConfig struct {
	StartTime       string `yaml:"start_time"`
	EndTime         string `yaml:"end_time"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	Sheet           string `yaml:"sheet"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Notifier    NotifierConfig  `yaml:"notifier"`
	Pipelines   PipelinesConfig `yaml:"pipelines"`
	History     HistoryConfig   `yaml:"history"`
	Export      ExportConfig    `yaml:"export"`
}

func Default() Config {
	return Config{
		RuntimeName: "kavach-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:        "0.0.0.0",
			Port:        8080,
			MaxUploadMB: 16,
			HistoryRows: 20,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Notifier: NotifierConfig{
			Enabled:        false,
			Broker:         "tcp://broker.hivemq.com:1883",
			Topic:          "kavach/badge",
			QoS:            1,
			ConnectTimeout: 2000,
			PublishTimeout: 2000,
		},
		Pipelines: PipelinesConfig{
			Default: "mel",
			Mel: PipelineConfig{
				Enabled:   true,
				Mode:      "mock",
				ModelPath: "./models/tiny_safety_3class_int8.tflite",
				Threads:   1,
			},
			MFCC: PipelineConfig{
				Enabled:    false,
				Mode:       "mock",
				ModelPath:  "./models/safety_dscnn_f16.tflite",
				LabelsPath: "./models/classes.json",
				Threads:    1,
			},
		},
		History: HistoryConfig{
			Path:          "./data/kavach-history.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxRecords:    10000,
		},
		Export: ExportConfig{
			StartTime:       "09:00:00",
			EndTime:         "18:00:00",
			IntervalSeconds: 3,
			Sheet:           "log",
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
	overrideString(&cfg.RuntimeName, "KAVACH_RUNTIME_NAME")
	overrideString(&cfg.Environment, "KAVACH_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "KAVACH_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "KAVACH_HTTP_PORT")
	overrideInt(&cfg.HTTP.MaxUploadMB, "KAVACH_HTTP_MAX_UPLOAD_MB")
	overrideInt(&cfg.HTTP.HistoryRows, "KAVACH_HTTP_HISTORY_ROWS")
	overrideString(&cfg.Telemetry.LogLevel, "KAVACH_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "KAVACH_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "KAVACH_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "KAVACH_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "KAVACH_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "KAVACH_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "KAVACH_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "KAVACH_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "KAVACH_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "KAVACH_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "KAVACH_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "KAVACH_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "KAVACH_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.Notifier.Enabled, "KAVACH_NOTIFIER_ENABLED")
	overrideString(&cfg.Notifier.Broker, "KAVACH_NOTIFIER_BROKER")
	overrideString(&cfg.Notifier.Topic, "KAVACH_NOTIFIER_TOPIC")
	overrideInt(&cfg.Notifier.QoS, "KAVACH_NOTIFIER_QOS")
	overrideInt(&cfg.Notifier.ConnectTimeout, "KAVACH_NOTIFIER_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Notifier.PublishTimeout, "KAVACH_NOTIFIER_PUBLISH_TIMEOUT_MS")
	overrideString(&cfg.Pipelines.Default, "KAVACH_PIPELINES_DEFAULT")
	overrideBool(&cfg.Pipelines.Mel.Enabled, "KAVACH_PIPELINES_MEL_ENABLED")
	overrideString(&cfg.Pipelines.Mel.Mode, "KAVACH_PIPELINES_MEL_MODE")
	overrideString(&cfg.Pipelines.Mel.ModelPath, "KAVACH_PIPELINES_MEL_MODEL_PATH")
	overrideString(&cfg.Pipelines.Mel.LabelsPath, "KAVACH_PIPELINES_MEL_LABELS_PATH")
	overrideInt(&cfg.Pipelines.Mel.Threads, "KAVACH_PIPELINES_MEL_THREADS")
	overrideBool(&cfg.Pipelines.MFCC.Enabled, "KAVACH_PIPELINES_MFCC_ENABLED")
	overrideString(&cfg.Pipelines.MFCC.Mode, "KAVACH_PIPELINES_MFCC_MODE")
	overrideString(&cfg.Pipelines.MFCC.ModelPath, "KAVACH_PIPELINES_MFCC_MODEL_PATH")
	overrideString(&cfg.Pipelines.MFCC.LabelsPath, "KAVACH_PIPELINES_MFCC_LABELS_PATH")
	overrideInt(&cfg.Pipelines.MFCC.Threads, "KAVACH_PIPELINES_MFCC_THREADS")
	overrideString(&cfg.History.Path, "KAVACH_HISTORY_PATH")
	overrideString(&cfg.History.RetentionMode, "KAVACH_HISTORY_RETENTION_MODE")
	overrideInt(&cfg.History.RetentionDays, "KAVACH_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxRecords, "KAVACH_HISTORY_MAX_RECORDS")
	overrideBool(&cfg.History.VacuumOnStart, "KAVACH_HISTORY_VACUUM_ON_START")
	overrideString(&cfg.Export.StartTime, "KAVACH_EXPORT_START_TIME")
	overrideString(&cfg.Export.EndTime, "KAVACH_EXPORT_END_TIME")
	overrideInt(&cfg.Export.IntervalSeconds, "KAVACH_EXPORT_INTERVAL_SECONDS")
	overrideString(&cfg.Export.Sheet, "KAVACH_EXPORT_SHEET")
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
	if cfg.HTTP.MaxUploadMB <= 0 {
		return errors.New("http.max_upload_mb must be positive")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Notifier.Enabled {
		if cfg.Notifier.Broker == "" {
			return errors.New("notifier.broker must not be empty when notifier is enabled")
		}
		if cfg.Notifier.Topic == "" {
			return errors.New("notifier.topic must not be empty when notifier is enabled")
		}
		if cfg.Notifier.QoS < 0 || cfg.Notifier.QoS > 2 {
			return errors.New("notifier.qos must be 0, 1 or 2")
		}
		if cfg.Notifier.PublishTimeout <= 0 {
			return errors.New("notifier.publish_timeout_ms must be positive")
		}
	}
	switch cfg.Pipelines.Default {
	case "mel", "mfcc":
	default:
		return errors.New("pipelines.default must be one of mel|mfcc")
	}
	if err := validatePipeline("mel", cfg.Pipelines.Mel); err != nil {
		return err
	}
	if err := validatePipeline("mfcc", cfg.Pipelines.MFCC); err != nil {
		return err
	}
	defaultEnabled := (cfg.Pipelines.Default == "mel" && cfg.Pipelines.Mel.Enabled) ||
		(cfg.Pipelines.Default == "mfcc" && cfg.Pipelines.MFCC.Enabled)
	if !defaultEnabled {
		return errors.New("pipelines.default refers to a disabled pipeline")
	}
	if cfg.History.Path == "" && cfg.History.RetentionMode != "ephemeral" {
		return errors.New("history.path must not be empty")
	}
	switch cfg.History.RetentionMode {
	case "ephemeral", "persistent":
	default:
		return errors.New("history.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	if cfg.Export.IntervalSeconds <= 0 {
		return errors.New("export.interval_seconds must be positive")
	}
	if cfg.Export.Sheet == "" {
		return errors.New("export.sheet must not be empty")
	}
	return nil
}

func validatePipeline(name string, cfg PipelineConfig) error {
	if !cfg.Enabled {
		return nil
	}
	switch cfg.Mode {
	case "mock", "tflite":
	default:
		return fmt.Errorf("pipelines.%s.mode must be one of mock|tflite", name)
	}
	if cfg.Mode == "tflite" && cfg.ModelPath == "" {
		return fmt.Errorf("pipelines.%s.model_path must be set when mode=tflite", name)
	}
	if cfg.Threads < 0 {
		return fmt.Errorf("pipelines.%s.threads must be >= 0", name)
	}
	return nil
}
