package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/cep-weather-assistant/internal/domain"
	"github.com/couchcryptid/cep-weather-assistant/internal/observability"
)

type flakyWriter struct {
	failures int
	calls    int
	written  []kafkago.Message
}

func (f *flakyWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("leader not available")
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *flakyWriter) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testEvent = domain.OutcomeEvent{
	ID:             "evt-1",
	ConversationID: "conv-1",
	Input:          "tempo em Ibitinga, SP",
	Action:         domain.ActionConsultWeatherDirect,
	City:           "Ibitinga",
	State:          "SP",
	ResolvedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
}

func TestSerializeToMessage(t *testing.T) {
	msg, err := serializeToMessage(testEvent)
	require.NoError(t, err)

	assert.Equal(t, []byte("conv-1"), msg.Key)
	assert.Contains(t, string(msg.Value), `"action":"CONSULT_WEATHER_DIRECT"`)
	assert.Contains(t, string(msg.Value), `"city":"Ibitinga"`)
	assert.NotContains(t, string(msg.Value), `"zip_code"`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "action", msg.Headers[0].Key)
	assert.Equal(t, []byte("CONSULT_WEATHER_DIRECT"), msg.Headers[0].Value)
	assert.Equal(t, "resolved_at", msg.Headers[1].Key)
	assert.Equal(t, []byte("2024-05-01T12:00:00Z"), msg.Headers[1].Value)
}

func TestPublish_Success(t *testing.T) {
	fw := &flakyWriter{}
	metrics := observability.NewMetricsForTesting()
	w := &OutcomeWriter{writer: fw, logger: discardLogger(), metrics: metrics}

	require.NoError(t, w.Publish(context.Background(), testEvent))
	assert.Len(t, fw.written, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OutcomesPublished.WithLabelValues("success")))
}

func TestPublish_RetriesTransientFailure(t *testing.T) {
	fw := &flakyWriter{failures: 2}
	w := &OutcomeWriter{writer: fw, logger: discardLogger(), metrics: observability.NewMetricsForTesting()}

	require.NoError(t, w.Publish(context.Background(), testEvent))
	assert.Equal(t, 3, fw.calls)
	assert.Len(t, fw.written, 1)
}

func TestPublish_GivesUp(t *testing.T) {
	fw := &flakyWriter{failures: 10}
	metrics := observability.NewMetricsForTesting()
	w := &OutcomeWriter{writer: fw, logger: discardLogger(), metrics: metrics}

	err := w.Publish(context.Background(), testEvent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evt-1")
	assert.Equal(t, maxPublishAttempts, fw.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OutcomesPublished.WithLabelValues("error")))
}

func TestPublish_StopsOnCancelledContext(t *testing.T) {
	fw := &flakyWriter{failures: 10}
	w := &OutcomeWriter{writer: fw, logger: discardLogger(), metrics: observability.NewMetricsForTesting()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Publish(ctx, testEvent)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, fw.calls)
}
