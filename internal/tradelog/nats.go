package tradelog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/axiomtrade/spotarb/internal/model"
)

// NATSSink publishes every completed trade as a JSON message on a fixed
// subject, for any downstream consumer (dashboards, alerting) that wants
// a live feed instead of tailing the JSONL file.
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to natsURL and publishes to subject.
func NewNATSSink(natsURL, subject string) (*NATSSink, error) {
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("tradelog: connect to NATS: %w", err)
	}
	return &NATSSink{conn: conn, subject: subject}, nil
}

// Write publishes entry to the configured subject.
func (s *NATSSink) Write(ctx context.Context, entry *model.CompletedArbitrageLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("tradelog: marshal trade for NATS: %w", err)
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		return fmt.Errorf("tradelog: publish trade: %w", err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
