// Package events публикует подтвержденные мутации в NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	libnats "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/oziev02/PostEngagement/internal/domain"
)

// DefaultSubjectPrefix - префикс subject и имя stream по умолчанию
const DefaultSubjectPrefix = "engagement"

// msgPublisher - часть jetstream.JetStream, нужная публикатору
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *libnats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher реализует domain.EventPublisher для JetStream
type Publisher struct {
	js     msgPublisher
	prefix string
}

// NewPublisher создает новый экземпляр Publisher
func NewPublisher(js msgPublisher, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{js: js, prefix: prefix}
}

// Subject возвращает subject для вида мутации
func (p *Publisher) Subject(kind domain.MutationKind) string {
	return p.prefix + "." + string(kind)
}

// Message строит сообщение; id события служит ключом дедупликации JetStream
func (p *Publisher) Message(event domain.EngagementEvent) (*libnats.Msg, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return &libnats.Msg{
		Subject: p.Subject(event.Kind),
		Data:    data,
		Header: libnats.Header{
			libnats.MsgIdHdr: []string{event.ID},
		},
	}, nil
}

// Publish публикует событие
func (p *Publisher) Publish(ctx context.Context, event domain.EngagementEvent) error {
	msg, err := p.Message(event)
	if err != nil {
		return err
	}
	if _, err := p.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", msg.Subject, err)
	}
	return nil
}

// Conn - соединение с NATS и JetStream
type Conn struct {
	JS jetstream.JetStream
}

// Connect подключается к NATS. При initStream создает или обновляет stream prefix.>
func Connect(ctx context.Context, url, prefix string, initStream bool, logger *slog.Logger) (*Conn, error) {
	if url == "" {
		url = libnats.DefaultURL
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	nc, err := libnats.Connect(url, libnats.Name("post-engagement"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream: %w", err)
	}

	if initStream {
		_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:       prefix,
			Subjects:   []string{prefix + ".>"},
			MaxAge:     24 * time.Hour,
			Duplicates: 2 * time.Minute,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream %s: %w", prefix, err)
		}
		logger.Info("stream created or updated", "name", prefix)
	}

	return &Conn{JS: js}, nil
}

// HealthCheck проверяет соединение
func (c *Conn) HealthCheck() error {
	_, err := c.JS.Conn().RTT()
	return err
}

// Close дожидается отправки буфера и закрывает соединение
func (c *Conn) Close() error {
	return c.JS.Conn().Drain()
}

// Noop отбрасывает события, когда NATS выключен
type Noop struct{}

// Publish ничего не делает
func (Noop) Publish(context.Context, domain.EngagementEvent) error { return nil }
