// Package forecast calls the demand forecasting service over HTTP.
package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
)

const demandPath = "/api/v1/forecast/demand"

type Config struct {
	URL          string        `envconfig:"FORECAST_URL"`
	Timeout      time.Duration `envconfig:"FORECAST_TIMEOUT" default:"10s"`
	LookbackDays int           `envconfig:"FORECAST_LOOKBACK_DAYS" default:"365"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

type Client struct {
	baseURL      string
	lookbackDays int
	httpClient   *http.Client
}

var _ contractx.ForecastSource = (*Client)(nil)

type demandRequest struct {
	EntityID     string `json:"entity_id"`
	EntityType   string `json:"entity_type"`
	Period       string `json:"period"`
	HorizonDays  int    `json:"horizon_days"`
	LookbackDays int    `json:"lookback_days"`
}

type demandResponse struct {
	EntityID        string    `json:"entity_id"`
	ForecastValues  []float64 `json:"forecast_values"`
	ConfidenceLevel float64   `json:"confidence_level"`
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("forecast service url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	lookback := cfg.LookbackDays
	if lookback <= 0 {
		lookback = 365
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		lookbackDays: lookback,
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) FetchForecast(ctx context.Context, entityID string, horizonDays int) (contractx.Forecast, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return contractx.Forecast{}, fmt.Errorf("%w: forecast entity id is required", contractx.ErrValidation)
	}
	if horizonDays <= 0 {
		return contractx.Forecast{}, fmt.Errorf("%w: horizon days must be > 0, got %d", contractx.ErrValidation, horizonDays)
	}

	body, err := json.Marshal(demandRequest{
		EntityID:     entityID,
		EntityType:   "sku",
		Period:       periodFor(horizonDays),
		HorizonDays:  horizonDays,
		LookbackDays: c.lookbackDays,
	})
	if err != nil {
		return contractx.Forecast{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+demandPath, bytes.NewReader(body))
	if err != nil {
		return contractx.Forecast{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return contractx.Forecast{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return contractx.Forecast{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return contractx.Forecast{}, fmt.Errorf("forecast: http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out demandResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return contractx.Forecast{}, fmt.Errorf("forecast: decode response: %w", err)
	}
	if out.EntityID == "" {
		out.EntityID = entityID
	}
	return contractx.Forecast{
		EntityID:        out.EntityID,
		HorizonDays:     horizonDays,
		Values:          out.ForecastValues,
		ConfidenceLevel: out.ConfidenceLevel,
	}, nil
}

// periodFor picks the forecast granularity the service should aggregate at.
func periodFor(horizonDays int) string {
	switch {
	case horizonDays <= 7:
		return "daily"
	case horizonDays <= 31:
		return "weekly"
	default:
		return "monthly"
	}
}
