package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
)

func TestFetchForecast(t *testing.T) {
	t.Parallel()

	var got demandRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/forecast/demand" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"entity_id":        "ABC123",
			"forecast_type":    "demand",
			"forecast_values":  []float64{12, 14, 11},
			"forecast_dates":   []string{"2026-01-01", "2026-01-02", "2026-01-03"},
			"confidence_level": 85.5,
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	f, err := client.FetchForecast(context.Background(), "ABC123", 28)
	if err != nil {
		t.Fatalf("FetchForecast() error = %v", err)
	}

	if got.EntityID != "ABC123" || got.Period != "weekly" || got.HorizonDays != 28 || got.LookbackDays != 365 {
		t.Fatalf("request = %+v", got)
	}
	if f.EntityID != "ABC123" || f.HorizonDays != 28 || len(f.Values) != 3 || f.ConfidenceLevel != 85.5 {
		t.Fatalf("forecast = %+v", f)
	}
}

func TestFetchForecastErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"unknown sku"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewClient(Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if _, err := client.FetchForecast(context.Background(), "NOPE1", 7); err == nil {
		t.Fatal("FetchForecast() on 404 returned nil error")
	}
	if _, err := client.FetchForecast(context.Background(), "", 7); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("FetchForecast() empty id error = %v, want ErrValidation", err)
	}
	if _, err := client.FetchForecast(context.Background(), "ABC123", 0); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("FetchForecast() zero horizon error = %v, want ErrValidation", err)
	}
}

func TestFetchForecastHonoursContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := NewClient(Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.FetchForecast(ctx, "ABC123", 7); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("FetchForecast() error = %v, want deadline exceeded", err)
	}
}

func TestPeriodFor(t *testing.T) {
	t.Parallel()

	cases := map[int]string{1: "daily", 7: "daily", 28: "weekly", 90: "monthly"}
	for days, want := range cases {
		if got := periodFor(days); got != want {
			t.Fatalf("periodFor(%d) = %q, want %q", days, got, want)
		}
	}
}
