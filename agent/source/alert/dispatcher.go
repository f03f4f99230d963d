// Package alert hands operational alerts to QStash for delivery by the notification service.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
)

// Publisher is the subset of the QStash client used here.
type Publisher interface {
	Publish(ctx context.Context, destination string, body []byte, headers map[string]string) (string, error)
}

type Config struct {
	Destination string `envconfig:"ALERT_DESTINATION"`
	Source      string `envconfig:"ALERT_SOURCE" default:"factory-copilot"`
}

type Dispatcher struct {
	publisher   Publisher
	destination string
	source      string
	now         func() time.Time
}

var _ contractx.AlertDispatcher = (*Dispatcher)(nil)

// envelope is the message body delivered to the notification service.
type envelope struct {
	AlertID   string    `json:"alert_id"`
	Source    string    `json:"source"`
	Action    string    `json:"action"`
	AlertType string    `json:"alert_type"`
	Severity  string    `json:"severity"`
	EntityID  string    `json:"entity_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewDispatcher(publisher Publisher, cfg Config) (*Dispatcher, error) {
	if publisher == nil {
		return nil, errors.New("alert publisher is required")
	}
	destination := strings.TrimSpace(cfg.Destination)
	if destination == "" {
		return nil, errors.New("alert destination is required")
	}
	source := strings.TrimSpace(cfg.Source)
	if source == "" {
		source = "factory-copilot"
	}
	return &Dispatcher{
		publisher:   publisher,
		destination: destination,
		source:      source,
		now:         time.Now,
	}, nil
}

func (d *Dispatcher) DispatchAlert(ctx context.Context, payload contractx.AlertPayload) (contractx.AlertReceipt, error) {
	if strings.TrimSpace(payload.Action) == "" || strings.TrimSpace(payload.AlertType) == "" {
		return contractx.AlertReceipt{}, fmt.Errorf("%w: alert action and type are required", contractx.ErrValidation)
	}

	msg := envelope{
		AlertID:   uuid.NewString(),
		Source:    d.source,
		Action:    payload.Action,
		AlertType: payload.AlertType,
		Severity:  payload.Severity,
		EntityID:  payload.EntityID,
		Message:   payload.Message,
		CreatedAt: d.now().UTC(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return contractx.AlertReceipt{}, err
	}

	messageID, err := d.publisher.Publish(ctx, d.destination, body, map[string]string{
		"Upstash-Deduplication-Id": msg.AlertID,
	})
	if err != nil {
		return contractx.AlertReceipt{}, fmt.Errorf("publish alert %s: %w", msg.AlertID, err)
	}

	log.Info().
		Str("alert_id", msg.AlertID).
		Str("alert_type", msg.AlertType).
		Str("action", msg.Action).
		Str("message_id", messageID).
		Msg("alert dispatched")
	return contractx.AlertReceipt{Accepted: true, MessageID: messageID}, nil
}
