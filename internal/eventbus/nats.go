package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	logx "paypacer/pkg/logx"
)

// NATSConfig describes the optional NATS export.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	Name          string
	ReconnectWait time.Duration
	Buffer        int
}

// Publisher is the part of *nats.Conn the bridge needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Bridge forwards every bus event to NATS as JSON on "<prefix>.<type>".
type Bridge struct {
	pub    Publisher
	prefix string
	buffer int
	log    logx.Logger
	closer func()
}

// DialNATS connects to cfg.URL and returns a bridge that owns the connection.
func DialNATS(cfg NATSConfig, log logx.Logger) (*Bridge, error) {
	name := cfg.Name
	if name == "" {
		name = "paypacer"
	}
	wait := cfg.ReconnectWait
	if wait <= 0 {
		wait = 2 * time.Second
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(wait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", logx.Err(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", logx.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	b := NewBridge(nc, cfg.SubjectPrefix, cfg.Buffer, log)
	b.closer = func() {
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
	}
	return b, nil
}

// NewBridge wraps an existing publisher.
func NewBridge(pub Publisher, prefix string, buffer int, log logx.Logger) *Bridge {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "paypacer"
	}
	if buffer <= 0 {
		buffer = 256
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bridge{pub: pub, prefix: prefix, buffer: buffer, log: log}
}

// Subject returns the NATS subject for an event type.
func (b *Bridge) Subject(eventType string) string {
	return b.prefix + "." + eventType
}

// Run forwards events from bus until ctx is done.
func (b *Bridge) Run(ctx context.Context, bus Bus) error {
	ch, unsub := bus.Subscribe(b.buffer)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			b.forward(e)
		}
	}
}

func (b *Bridge) forward(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		b.log.Warn("event not serializable", logx.String("type", e.Type), logx.Err(err))
		return
	}
	if err := b.pub.Publish(b.Subject(e.Type), data); err != nil {
		b.log.Warn("nats publish failed", logx.String("type", e.Type), logx.Err(err))
	}
}

// Close drains the owned connection, if any.
func (b *Bridge) Close() {
	if b.closer != nil {
		b.closer()
	}
}
