package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	LLM      struct {
		BaseURL     string  `json:"base_url"`
		APIKey      string  `json:"api_key"`
		Model       string  `json:"model"`
		Temperature float32 `json:"temperature"`
		// MaxContextTokens bounds the prompt size; oversized revision
		// history is truncated to fit.
		MaxContextTokens int      `json:"max_context_tokens"`
		Timeout          Duration `json:"timeout"`
	} `json:"llm"`
	Pipeline struct {
		// MaxRevisions caps the approve/revise loop. 0 means unlimited.
		MaxRevisions int      `json:"max_revisions"`
		StageTimeout Duration `json:"stage_timeout"`
		RetryBackoff Duration `json:"retry_backoff"`
	} `json:"pipeline"`
	Scheduler struct {
		PollInterval   Duration `json:"poll_interval"`
		PublishTimeout Duration `json:"publish_timeout"`
		MaxAttempts    int      `json:"max_attempts"`
		InitialBackoff Duration `json:"initial_backoff"`
		MaxBackoff     Duration `json:"max_backoff"`
		MaxConcurrent  int64    `json:"max_concurrent"`
	} `json:"scheduler"`
	LinkedIn struct {
		BaseURL     string `json:"base_url"`
		AccessToken string `json:"access_token"`
		PersonURN   string `json:"person_urn"`
	} `json:"linkedin"`
	Telegram struct {
		Token  string `json:"token"`
		ChatID int64  `json:"chat_id"`
	} `json:"telegram"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".postpilot"),
		LogLevel: "info",
	}
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.Temperature = 0.7
	cfg.LLM.MaxContextTokens = 16000
	cfg.LLM.Timeout = Duration(60 * time.Second)
	cfg.Pipeline.StageTimeout = Duration(90 * time.Second)
	cfg.Pipeline.RetryBackoff = Duration(2 * time.Second)
	cfg.Scheduler.PollInterval = Duration(2 * time.Minute)
	cfg.Scheduler.PublishTimeout = Duration(2 * time.Minute)
	cfg.Scheduler.MaxAttempts = 5
	cfg.Scheduler.InitialBackoff = Duration(time.Minute)
	cfg.Scheduler.MaxBackoff = Duration(time.Hour)
	cfg.Scheduler.MaxConcurrent = 2
	cfg.LinkedIn.BaseURL = "https://api.linkedin.com/v2"

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.LLM.BaseURL = baseURL
	}
	if token := os.Getenv("LINKEDIN_ACCESS_TOKEN"); token != "" {
		cfg.LinkedIn.AccessToken = token
	}
	if urn := os.Getenv("LINKEDIN_PERSON_URN"); urn != "" {
		cfg.LinkedIn.PersonURN = urn
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}

	return cfg, nil
}

// Save writes the config atomically (temp file + rename).
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ListValues returns the config as a flat dot-separated key map, with
// secrets masked when mask is true.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, err
	}
	flat := Flatten(nested)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads one value by dot-separated key from the config file,
// masked if the key is a secret.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	values, err := ListValues(cfg, true)
	if err != nil {
		return nil, err
	}
	val, ok := values[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return val, nil
}

// SetValue updates one value by dot-separated key and saves the config.
// The value is parsed as JSON when possible so numbers and booleans keep
// their type; anything else is stored as a string.
func SetValue(path, key, value string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}

	values, err := ListValues(cfg, false)
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		return err
	}

	var typed any
	if err := json.Unmarshal([]byte(value), &typed); err != nil {
		typed = value
	}
	if err := setNested(nested, key, typed); err != nil {
		return err
	}

	merged, err := json.Marshal(nested)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(merged, cfg); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return Save(path, cfg)
}
