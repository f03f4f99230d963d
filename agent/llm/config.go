package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
	openrouterx "github.com/tanpawarit/factory-copilot/pkg/openrouter"
)

// Config is the OpenRouter setup used by model-driven tool selection.
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"512"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	SelectorModel       string  `envconfig:"SELECTOR_MODEL" split_words:"true"`
	SelectorTemperature float32 `envconfig:"SELECTOR_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" && strings.TrimSpace(c.SelectorModel) == "" {
		return fmt.Errorf("%w: selector model is required", contractx.ErrValidation)
	}
	return nil
}

// ForSelector resolves the model settings for tool selection, preferring the selector overrides.
func (c Config) ForSelector() openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	if v := strings.TrimSpace(c.SelectorModel); v != "" {
		modelName = v
	}
	temp := c.Temperature
	if c.SelectorTemperature >= 0 {
		temp = c.SelectorTemperature
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
