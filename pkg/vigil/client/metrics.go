package client

import (
	"context"

	"github.com/petrellis/vigil/pkg/vigil/o11y"
	"github.com/petrellis/vigil/pkg/vigil/wire"
)

// Metrics holds the client's protocol counters. A nil *Metrics is
// valid and records nothing, so callers never need to guard.
type Metrics struct {
	connects          o11y.Counter
	messagesReceived  o11y.Counter
	messageSize       o11y.Histogram
	decodeFailures    o11y.Counter
	eventsDropped     o11y.Counter
	heartbeatsSent    o11y.Counter
	subscriptionsSent o11y.Counter
	trackedSubjects   o11y.Gauge
}

// NewMetrics creates client metrics from the provider. A nil provider
// yields a nil Metrics, meaning no collection.
func NewMetrics(provider o11y.MetricsProvider) *Metrics {
	if provider == nil {
		return nil
	}

	return &Metrics{
		connects:          provider.Counter("vigil_connects_total"),
		messagesReceived:  provider.Counter("vigil_messages_received_total"),
		messageSize:       provider.Histogram("vigil_message_size_bytes"),
		decodeFailures:    provider.Counter("vigil_decode_failures_total"),
		eventsDropped:     provider.Counter("vigil_events_dropped_total"),
		heartbeatsSent:    provider.Counter("vigil_heartbeats_sent_total"),
		subscriptionsSent: provider.Counter("vigil_subscriptions_sent_total"),
		trackedSubjects:   provider.Gauge("vigil_tracked_subjects"),
	}
}

// RecordConnect counts an established connection.
func (m *Metrics) RecordConnect(ctx context.Context) {
	if m == nil {
		return
	}
	m.connects.Add(ctx, 1)
}

// RecordMessageReceived counts an inbound frame by op code.
func (m *Metrics) RecordMessageReceived(ctx context.Context, op wire.OpCode, sizeBytes int) {
	if m == nil {
		return
	}
	m.messagesReceived.Add(ctx, 1, o11y.Label{Key: "op", Value: op.String()})
	m.messageSize.Record(ctx, float64(sizeBytes))
}

// RecordDecodeFailure counts a dropped undecodable frame.
func (m *Metrics) RecordDecodeFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.decodeFailures.Add(ctx, 1)
}

// RecordEventDropped counts a well-formed event the reconciler rejected.
func (m *Metrics) RecordEventDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.eventsDropped.Add(ctx, 1)
}

// RecordHeartbeatSent counts an outbound liveness ping.
func (m *Metrics) RecordHeartbeatSent(ctx context.Context) {
	if m == nil {
		return
	}
	m.heartbeatsSent.Add(ctx, 1)
}

// RecordSubscriptionSent counts an outbound subscription request.
func (m *Metrics) RecordSubscriptionSent(ctx context.Context) {
	if m == nil {
		return
	}
	m.subscriptionsSent.Add(ctx, 1)
}

// RecordTrackedSubjects updates the tracked-subject gauge.
func (m *Metrics) RecordTrackedSubjects(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.trackedSubjects.Set(ctx, float64(count))
}
