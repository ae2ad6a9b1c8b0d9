// Package source implements the push channel: an eth_subscribe log
// subscription over a websocket.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"swapwatch/internal/metrics"
	"swapwatch/internal/model"
)

const ackTimeout = 15 * time.Second

// LogHandler receives every pool log pushed by the node.
type LogHandler interface {
	HandleLog(ctx context.Context, channel string, log types.Log)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcMessage struct {
	ID     *int            `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
	Params *struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params,omitempty"`
}

// Push subscribes to the pool's logs over a websocket endpoint.
type Push struct {
	url     string
	pool    common.Address
	handler LogHandler
	logger  *zap.Logger
	metrics *metrics.Metrics
	dialer  *websocket.Dialer
}

func NewPush(url string, pool common.Address, handler LogHandler, logger *zap.Logger, m *metrics.Metrics) *Push {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Push{
		url:     url,
		pool:    pool,
		handler: handler,
		logger:  logger,
		metrics: m,
		dialer:  websocket.DefaultDialer,
	}
}

// Subscription is an acknowledged log subscription.
type Subscription struct {
	ID string

	push *Push
	conn *websocket.Conn
	once sync.Once
}

// Subscribe dials the endpoint and waits for the subscription ack. Dial or
// ack failures are returned; the caller decides to run push-less.
func (p *Push) Subscribe(ctx context.Context) (*Subscription, error) {
	conn, _, err := p.dialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", p.url, err)
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_subscribe",
		Params: []any{"logs", map[string]any{
			"address": []string{p.pool.Hex()},
		}},
	}
	if err := conn.WriteJSON(req); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send eth_subscribe: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(ackTimeout))
	id, err := readAck(conn, req.ID)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})

	p.logger.Info("push subscribed", zap.String("subscription", id), zap.String("pool", p.pool.Hex()))
	return &Subscription{ID: id, push: p, conn: conn}, nil
}

func readAck(conn *websocket.Conn, reqID int) (string, error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("read subscription ack: %w", err)
		}
		var msg rpcMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return "", fmt.Errorf("decode subscription ack: %w", err)
		}
		if msg.ID == nil || *msg.ID != reqID {
			continue
		}
		if msg.Error != nil {
			return "", fmt.Errorf("eth_subscribe rejected: %d %s", msg.Error.Code, msg.Error.Message)
		}
		var id string
		if err := json.Unmarshal(msg.Result, &id); err != nil || id == "" {
			return "", fmt.Errorf("eth_subscribe: unexpected result %s", string(msg.Result))
		}
		return id, nil
	}
}

// Run reads notifications and hands pool logs to the handler until the
// connection fails or ctx is cancelled. It does not reconnect.
func (s *Subscription) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()
	defer s.Close()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("push read: %w", err)
		}

		log, ok, err := s.parse(data)
		if err != nil {
			s.push.logger.Warn("push message dropped", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		s.push.metrics.LogReceived(model.ChannelPush)
		s.push.handler.HandleLog(ctx, model.ChannelPush, log)
	}
}

func (s *Subscription) parse(data []byte) (types.Log, bool, error) {
	var msg rpcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return types.Log{}, false, fmt.Errorf("decode message: %w", err)
	}
	if msg.Method != "eth_subscription" || msg.Params == nil || msg.Params.Subscription != s.ID {
		return types.Log{}, false, nil
	}

	var log types.Log
	if err := json.Unmarshal(msg.Params.Result, &log); err != nil {
		return types.Log{}, false, fmt.Errorf("decode log: %w", err)
	}
	// Byte comparison of addresses ignores hex casing.
	if log.Address != s.push.pool {
		return types.Log{}, false, nil
	}
	return log, true, nil
}

// Close closes the connection. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
}

// ErrNoEndpoint is returned by Start when no websocket URL is configured.
var ErrNoEndpoint = errors.New("no websocket endpoint configured")

// Start subscribes and runs the push channel in the background. A failed
// subscription is logged and the returned channel is closed immediately.
func (p *Push) Start(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	if p.url == "" {
		done <- ErrNoEndpoint
		close(done)
		return done
	}

	sub, err := p.Subscribe(ctx)
	if err != nil {
		p.logger.Warn("push unavailable, continuing with poll only", zap.Error(err))
		done <- err
		close(done)
		return done
	}

	go func() {
		defer close(done)
		err := sub.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Warn("push channel ended, continuing with poll only", zap.Error(err))
		}
		done <- err
	}()
	return done
}
