// Package replication forwards stored Fact records to downstream consumers.
package replication

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/ekaya-inc/factgraph/pkg/models"
)

// Notifier accepts Fact records after every successful write. It is a one-way sink.
type Notifier interface {
	Accept(ctx context.Context, record *models.FactRecord) error
}

// NoopNotifier discards records.
type NoopNotifier struct{}

var _ Notifier = NoopNotifier{}

func (NoopNotifier) Accept(context.Context, *models.FactRecord) error { return nil }

// JetStreamNotifier publishes each record as JSON to <prefix>.fact.<id>.
type JetStreamNotifier struct {
	js     jetstream.JetStream
	prefix string
	logger *zap.Logger
}

var _ Notifier = (*JetStreamNotifier)(nil)

// NewJetStreamNotifier ensures the stream capturing <prefix>.> exists and returns a notifier publishing to it.
func NewJetStreamNotifier(ctx context.Context, nc *nats.Conn, stream, prefix string, logger *zap.Logger) (*JetStreamNotifier, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: []string{prefix + ".>"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stream %s: %w", stream, err)
	}

	return &JetStreamNotifier{js: js, prefix: prefix, logger: logger.Named("replication")}, nil
}

// Subject returns the subject a record is published to.
func (n *JetStreamNotifier) Subject(record *models.FactRecord) string {
	return n.prefix + ".fact." + record.ID.String()
}

// Accept publishes record and waits for the stream acknowledgement.
func (n *JetStreamNotifier) Accept(ctx context.Context, record *models.FactRecord) error {
	if record == nil {
		return nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode fact %s: %w", record.ID, err)
	}

	ack, err := n.js.Publish(ctx, n.Subject(record), data)
	if err != nil {
		return fmt.Errorf("failed to publish fact %s: %w", record.ID, err)
	}

	n.logger.Debug("Published fact",
		zap.String("fact_id", record.ID.String()),
		zap.Uint64("sequence", ack.Sequence))
	return nil
}
