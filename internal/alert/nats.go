package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const DefaultSubject = "swapwatch.alerts"

// NATSNotifier publishes alarms as JSON on a subject.
type NATSNotifier struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewNATSNotifier connects to url. The connection reconnects forever.
func NewNATSNotifier(url, subject string, logger *zap.Logger) (*NATSNotifier, error) {
	if url == "" {
		return nil, errors.New("nats url is required")
	}
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	nc, err := nats.Connect(url,
		nats.Name("swapwatch"),
		nats.Timeout(5*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSNotifier{nc: nc, subject: subject, logger: logger}, nil
}

func (n *NATSNotifier) Notify(_ context.Context, a Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := n.nc.Publish(n.subject, payload); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Close drains pending publishes.
func (n *NATSNotifier) Close() error {
	if n.nc == nil || n.nc.IsClosed() {
		return nil
	}
	if err := n.nc.Drain(); err != nil {
		n.nc.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
