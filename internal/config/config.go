// Package config resolves run configuration: defaults, then an optional YAML
// file, then environment overrides. CLI flags are applied on top by main.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderRocketReach = "rocketreach"
	ProviderGemini      = "gemini"
)

type Config struct {
	Lookup     LookupConfig     `yaml:"lookup"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	Validation ValidationConfig `yaml:"validation"`
	Extract    ExtractConfig    `yaml:"extract"`
	Output     OutputConfig     `yaml:"output"`
	Log        LogConfig        `yaml:"log"`
}

type LookupConfig struct {
	// Enabled turns byline enrichment on. When off, only article columns are exported.
	Enabled          bool          `yaml:"enabled"`
	Provider         string        `yaml:"provider"`
	APIKey           string        `yaml:"api_key"`
	BaseURL          string        `yaml:"base_url"`
	Timeout          time.Duration `yaml:"timeout"`
	RateLimitRPS     float64       `yaml:"rate_limit_rps"`
	MaxAttempts      int           `yaml:"max_attempts"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	RateLimitCeiling time.Duration `yaml:"rate_limit_ceiling"`
	RateLimitMaxWait time.Duration `yaml:"rate_limit_max_wait"`
}

type GeminiConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	Grounding bool   `yaml:"grounding"`
}

type ValidationConfig struct {
	SMTP        bool          `yaml:"smtp"`
	SMTPPort    int           `yaml:"smtp_port"`
	SMTPTimeout time.Duration `yaml:"smtp_timeout"`
	HeloName    string        `yaml:"helo_name"`
	MailFrom    string        `yaml:"mail_from"`
}

type ExtractConfig struct {
	Workers      int           `yaml:"workers"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	UserAgent    string        `yaml:"user_agent"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"`
	// FailFast aborts the run on the first URL that cannot be extracted.
	FailFast bool `yaml:"fail_fast"`
}

type OutputConfig struct {
	Dir     string `yaml:"dir"`
	XLSX    bool   `yaml:"xlsx"`
	Metrics bool   `yaml:"metrics"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	// File additionally receives JSON log lines; empty disables it.
	File string `yaml:"file"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Lookup: LookupConfig{
			Enabled:          true,
			Provider:         ProviderRocketReach,
			BaseURL:          "https://api.rocketreach.co/api/v2",
			Timeout:          30 * time.Second,
			MaxAttempts:      3,
			BackoffBase:      time.Second,
			RateLimitCeiling: time.Hour,
			RateLimitMaxWait: 5 * time.Minute,
		},
		Validation: ValidationConfig{
			SMTPPort:    25,
			SMTPTimeout: 10 * time.Second,
			HeloName:    "localhost",
			MailFrom:    "test@example.com",
		},
		Extract: ExtractConfig{
			Workers:     4,
			Timeout:     30 * time.Second,
			MaxAttempts: 2,
		},
		Output: OutputConfig{
			Dir:     "output",
			Metrics: true,
		},
		Log: LogConfig{
			Level: "info",
			File:  "run.log",
		},
	}
}

// Load applies defaults, the YAML file at path (if non-empty) and the
// environment, in that order.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := decodeYAML(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(dst *string, names ...string) {
		for _, n := range names {
			if v := strings.TrimSpace(os.Getenv(n)); v != "" {
				*dst = v
				return
			}
		}
	}
	num := func(dst *int, name string) {
		if v, ok, err := envInt(name); err != nil {
			errs = append(errs, err)
		} else if ok {
			*dst = v
		}
	}
	flt := func(dst *float64, name string) {
		if v, ok, err := envFloat(name); err != nil {
			errs = append(errs, err)
		} else if ok {
			*dst = v
		}
	}
	dur := func(dst *time.Duration, name string) {
		if v, ok, err := envDuration(name); err != nil {
			errs = append(errs, err)
		} else if ok {
			*dst = v
		}
	}
	flag := func(dst *bool, name string) {
		if v, ok, err := envBool(name); err != nil {
			errs = append(errs, err)
		} else if ok {
			*dst = v
		}
	}

	flag(&c.Lookup.Enabled, "LOOKUP_ENABLED")
	str(&c.Lookup.Provider, "LOOKUP_PROVIDER")
	str(&c.Lookup.APIKey, "LOOKUP_API_KEY", "ROCKETREACH_API_KEY")
	str(&c.Lookup.BaseURL, "LOOKUP_BASE_URL")
	dur(&c.Lookup.Timeout, "LOOKUP_TIMEOUT")
	flt(&c.Lookup.RateLimitRPS, "LOOKUP_RATE_LIMIT_RPS")
	num(&c.Lookup.MaxAttempts, "LOOKUP_MAX_ATTEMPTS")

	str(&c.Gemini.APIKey, "GEMINI_API_KEY")
	str(&c.Gemini.Model, "GEMINI_MODEL")
	str(&c.Gemini.BaseURL, "GEMINI_BASE_URL")
	flag(&c.Gemini.Grounding, "GEMINI_GROUNDING")

	flag(&c.Validation.SMTP, "SMTP_CHECK")
	num(&c.Validation.SMTPPort, "SMTP_PORT")
	dur(&c.Validation.SMTPTimeout, "SMTP_TIMEOUT")

	num(&c.Extract.Workers, "EXTRACT_WORKERS")
	dur(&c.Extract.Timeout, "EXTRACT_TIMEOUT")
	flt(&c.Extract.RateLimitRPS, "EXTRACT_RATE_LIMIT_RPS")
	flag(&c.Extract.FailFast, "EXTRACT_FAIL_FAST")

	str(&c.Output.Dir, "OUTPUT_DIR")
	flag(&c.Output.XLSX, "OUTPUT_XLSX")
	flag(&c.Output.Metrics, "OUTPUT_METRICS")

	str(&c.Log.Level, "LOG_LEVEL")
	flag(&c.Log.Development, "LOG_DEVELOPMENT")

	return errors.Join(errs...)
}

// Validate reports settings a run cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Lookup.Enabled {
		switch strings.ToLower(strings.TrimSpace(c.Lookup.Provider)) {
		case ProviderRocketReach:
			if strings.TrimSpace(c.Lookup.APIKey) == "" {
				errs = append(errs, errors.New("LOOKUP_API_KEY is required when lookups are enabled"))
			}
		case ProviderGemini:
			if strings.TrimSpace(c.Gemini.APIKey) == "" {
				errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini provider"))
			}
			if strings.TrimSpace(c.Gemini.Model) == "" {
				errs = append(errs, errors.New("GEMINI_MODEL is required for the gemini provider"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown lookup provider %q", c.Lookup.Provider))
		}
		if c.Lookup.MaxAttempts < 1 {
			errs = append(errs, fmt.Errorf("lookup max_attempts must be >= 1 (got %d)", c.Lookup.MaxAttempts))
		}
		if c.Lookup.RateLimitRPS < 0 {
			errs = append(errs, fmt.Errorf("lookup rate_limit_rps must be >= 0 (got %g)", c.Lookup.RateLimitRPS))
		}
	}
	if c.Extract.Workers < 1 {
		errs = append(errs, fmt.Errorf("extract workers must be >= 1 (got %d)", c.Extract.Workers))
	}
	if c.Extract.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("extract rate_limit_rps must be >= 0 (got %g)", c.Extract.RateLimitRPS))
	}
	if c.Validation.SMTPPort < 1 || c.Validation.SMTPPort > 65535 {
		errs = append(errs, fmt.Errorf("smtp_port out of range (got %d)", c.Validation.SMTPPort))
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		errs = append(errs, errors.New("output dir is required"))
	}
	return errors.Join(errs...)
}

func envInt(name string) (int, bool, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s=%q: %w", name, v, err)
	}
	return out, true, nil
}

func envFloat(name string) (float64, bool, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s=%q: %w", name, v, err)
	}
	return out, true, nil
}

func envDuration(name string) (time.Duration, bool, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s=%q: %w", name, v, err)
	}
	return out, true, nil
}

func envBool(name string) (bool, bool, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return false, false, nil
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		return false, false, fmt.Errorf("invalid %s=%q: %w", name, v, err)
	}
	return out, true, nil
}
