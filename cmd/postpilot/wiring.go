package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/user/postpilot/internal/config"
	"github.com/user/postpilot/internal/notify"
	"github.com/user/postpilot/internal/persona"
	"github.com/user/postpilot/internal/publisher"
	"github.com/user/postpilot/internal/registry"
	"github.com/user/postpilot/internal/transform"
	"github.com/user/postpilot/internal/types"
	"github.com/user/postpilot/pkg/llm"
	"github.com/user/postpilot/pkg/llm/openai"
)

// openRegistry opens the post registry under the data dir, creating the
// directory on first use.
func openRegistry(cfg *config.Config) (*registry.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return registry.Open(filepath.Join(cfg.DataDir, "posts.db"))
}

func newPersonaStore(cfg *config.Config) *persona.Store {
	return persona.NewStore(cfg.DataDir)
}

func newTransformer(cfg *config.Config) (*transform.Transformer, error) {
	provider, err := openai.New(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("create llm provider: %w", err)
	}
	return transform.New(provider, cfg.LLM.Model, cfg.LLM.MaxContextTokens)
}

func newPublisher(cfg *config.Config) (*publisher.Client, error) {
	return publisher.New(publisher.Config{
		BaseURL:     cfg.LinkedIn.BaseURL,
		AccessToken: cfg.LinkedIn.AccessToken,
		PersonURN:   cfg.LinkedIn.PersonURN,
	})
}

// newNotifiers returns the configured notifiers, falling back to the log
// notifier when no Telegram credentials are present.
func newNotifiers(cfg *config.Config) ([]types.Notifier, error) {
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		return []types.Notifier{notify.Log{}}, nil
	}
	tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
	if err != nil {
		return nil, fmt.Errorf("create telegram notifier: %w", err)
	}
	return []types.Notifier{tg, notify.Log{}}, nil
}
