package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/shiftdesk/warm-transfer/internal/model"
	"github.com/shiftdesk/warm-transfer/pkg/logger"
)

// Publisher writes transfer events to JetStream. The zero value is
// not usable; build one with Connect. A nil *Publisher is a valid
// no-op publisher for deployments without NATS.
type Publisher struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *logger.Logger
}

// Connect dials NATS and ensures the transfers stream exists.
func Connect(ctx context.Context, url string, log *logger.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error("NATS async error", zap.Error(err))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("events: connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("events: creating JetStream context: %w", err)
	}

	p := &Publisher{conn: nc, js: js, logger: log}
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) ensureStream(ctx context.Context) error {
	if _, err := p.js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    1 << 30,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Warm transfer lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("events: creating stream: %w", err)
	}
	return nil
}

// Connected reports whether the NATS connection is up. A nil
// Publisher reports false.
func (p *Publisher) Connected() bool {
	return p != nil && p.conn != nil && p.conn.IsConnected()
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}

// TransferCompleted records a finished room-to-room transfer.
func (p *Publisher) TransferCompleted(ctx context.Context, room, from, to string) {
	p.publish(ctx, CompletedSubject(room), Event{
		Type:     TypeTransferCompleted,
		RoomName: room,
		From:     from,
		To:       to,
	})
}

// TransferFailed records a transfer that did not complete.
func (p *Publisher) TransferFailed(ctx context.Context, room, from, reason string) {
	p.publish(ctx, FailedSubject(room), Event{
		Type:     TypeTransferFailed,
		RoomName: room,
		From:     from,
		Error:    reason,
	})
}

// CallStatusChanged records an observed phone call status, whether
// from the poller or an inbound webhook.
func (p *Publisher) CallStatusChanged(ctx context.Context, record *model.CallRecord) {
	p.publish(ctx, CallSubject(record.RoomName), Event{
		Type:     TypeCallStatus,
		RoomName: record.RoomName,
		CallID:   record.CallID,
		To:       record.PhoneNumber,
		Status:   string(record.Status),
	})
}

func (p *Publisher) publish(ctx context.Context, subject string, event Event) {
	if p == nil {
		return
	}
	event.Timestamp = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("encoding transfer event", zap.Error(err))
		return
	}
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		p.logger.Warn("transfer event publish failed",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}
