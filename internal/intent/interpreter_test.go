package intent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/cep-weather-assistant/internal/domain"
	"github.com/couchcryptid/cep-weather-assistant/internal/observability"
)

// --- stub classifier ---

type stubClassifier struct {
	result  domain.Classification
	err     error
	release chan struct{} // when set, Classify blocks until closed
	calls   int
}

func (s *stubClassifier) Classify(_ context.Context, _ string) (domain.Classification, error) {
	s.calls++
	if s.release != nil {
		<-s.release
	}
	return s.result, s.err
}

// blockingClassifier waits for its context and reports the cancellation.
type blockingClassifier struct {
	canceled chan error
}

func (b *blockingClassifier) Classify(ctx context.Context, _ string) (domain.Classification, error) {
	<-ctx.Done()
	b.canceled <- ctx.Err()
	return domain.Classification{}, ctx.Err()
}

func newTestInterpreter(c domain.Classifier) *Interpreter {
	return New(c, 15*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
}

func classifierCount(i *Interpreter, outcome string) float64 {
	return testutil.ToFloat64(i.metrics.ClassifierRequests.WithLabelValues(outcome))
}

// --- tests ---

func TestFallback(t *testing.T) {
	tests := []struct {
		input      string
		kind       domain.Kind
		zip        string
		contextual bool
	}{
		{"CEP 01310-100", domain.KindZip, "01310100", false},
		{"CEP 01310100 e previsão", domain.KindZipAndForecast, "01310100", false},
		{"tempo em Ibitinga", domain.KindForecast, "", false},
		{"e como está o tempo?", domain.KindForecast, "", true},
		{"oi, como você está?", domain.KindOutOfScope, "", false},
		{"e lá?", domain.KindOutOfScope, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Fallback(tt.input)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.zip, got.ZipCode)
			assert.Equal(t, tt.contextual, got.IsContextual)
			assert.Equal(t, SourceRules, got.Source)
		})
	}
}

func TestFromClassification(t *testing.T) {
	t.Run("zip filled from extractor", func(t *testing.T) {
		got := FromClassification("meu cep é 01310-100", domain.Classification{Kind: domain.KindZip})
		assert.Equal(t, domain.KindZip, got.Kind)
		assert.Equal(t, "01310100", got.ZipCode)
		assert.Equal(t, SourceAI, got.Source)
	})

	t.Run("zip without extractable code stays empty", func(t *testing.T) {
		got := FromClassification("qual o meu cep?", domain.Classification{Kind: domain.KindZip})
		assert.Equal(t, domain.KindZip, got.Kind)
		assert.Empty(t, got.ZipCode)
	})

	t.Run("zip and forecast without code becomes forecast", func(t *testing.T) {
		got := FromClassification("endereço e tempo em Bauru", domain.Classification{Kind: domain.KindZipAndForecast, City: "Bauru"})
		assert.Equal(t, domain.KindForecast, got.Kind)
		assert.Equal(t, "Bauru", got.City)
	})

	t.Run("state normalized and invalid values dropped", func(t *testing.T) {
		got := FromClassification("tempo em Campinas sp", domain.Classification{Kind: domain.KindForecast, City: "Campinas", State: " sp "})
		assert.Equal(t, "SP", got.State)

		got = FromClassification("tempo", domain.Classification{Kind: domain.KindForecast, City: "tempo", State: "XX"})
		assert.Empty(t, got.City)
		assert.Empty(t, got.State)
	})

	t.Run("typed state kept when classifier omits it", func(t *testing.T) {
		got := FromClassification("tempo em Ibitinga, SP", domain.Classification{Kind: domain.KindForecast, City: "Ibitinga"})
		assert.Equal(t, "Ibitinga", got.City)
		assert.Equal(t, "SP", got.State)
	})

	t.Run("typed state ignored for a different city", func(t *testing.T) {
		got := FromClassification("tempo em Bauru, SP", domain.Classification{Kind: domain.KindForecast, City: "Ibitinga"})
		assert.Equal(t, "Ibitinga", got.City)
		assert.Empty(t, got.State)
	})

	t.Run("classifier state wins over typed state", func(t *testing.T) {
		got := FromClassification("tempo em Ibitinga, SP", domain.Classification{Kind: domain.KindForecast, City: "Ibitinga", State: "RJ"})
		assert.Equal(t, "RJ", got.State)
	})
}

func TestInterpret_AIWins(t *testing.T) {
	c := &stubClassifier{result: domain.Classification{Kind: domain.KindForecast, City: "Ibitinga", State: "SP"}}
	it := newTestInterpreter(c)

	got := it.Interpret(context.Background(), "como vai estar Ibitinga?")
	assert.Equal(t, domain.KindForecast, got.Kind)
	assert.Equal(t, "Ibitinga", got.City)
	assert.Equal(t, SourceAI, got.Source)
	assert.Equal(t, 1.0, classifierCount(it, SourceAI))
}

func TestInterpret_NoClassifier(t *testing.T) {
	it := newTestInterpreter(nil)

	got := it.Interpret(context.Background(), "CEP 01310-100")
	assert.Equal(t, domain.KindZip, got.Kind)
	assert.Equal(t, SourceRules, got.Source)
	assert.Equal(t, 1.0, classifierCount(it, "disabled"))
}

func TestInterpret_ClassifierError(t *testing.T) {
	c := &stubClassifier{err: errors.New("quota exceeded")}
	it := newTestInterpreter(c)

	got := it.Interpret(context.Background(), "tempo em Ibitinga")
	assert.Equal(t, domain.KindForecast, got.Kind)
	assert.Equal(t, SourceRules, got.Source)
	assert.Equal(t, 1, c.calls)
	assert.Equal(t, 1.0, classifierCount(it, "error"))
}

func TestInterpret_InvalidKind(t *testing.T) {
	c := &stubClassifier{result: domain.Classification{Kind: "WEATHER"}}
	it := newTestInterpreter(c)

	got := it.Interpret(context.Background(), "tempo em Ibitinga")
	assert.Equal(t, SourceRules, got.Source)
	assert.Equal(t, 1.0, classifierCount(it, "invalid"))
}

func TestInterpret_TimeoutFallsBack(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	release := make(chan struct{})
	defer close(release)
	c := &stubClassifier{release: release, result: domain.Classification{Kind: domain.KindOutOfScope}}

	fc := clockwork.NewFakeClock()
	it := newTestInterpreter(c)
	it.clock = fc

	done := make(chan domain.Interpretation, 1)
	go func() { done <- it.Interpret(ctx, "tempo em Ibitinga") }()

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(15 * time.Second)

	select {
	case got := <-done:
		assert.Equal(t, domain.KindForecast, got.Kind)
		assert.Equal(t, SourceRules, got.Source)
	case <-ctx.Done():
		t.Fatal("interpreter did not fall back after timeout")
	}
	assert.Equal(t, 1.0, classifierCount(it, "timeout"))
}

func TestInterpret_TimeoutCancelsClassifier(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := &blockingClassifier{canceled: make(chan error, 1)}
	fc := clockwork.NewFakeClock()
	it := newTestInterpreter(c)
	it.clock = fc

	done := make(chan domain.Interpretation, 1)
	go func() { done <- it.Interpret(ctx, "tempo em Ibitinga") }()

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(15 * time.Second)

	select {
	case got := <-done:
		assert.Equal(t, SourceRules, got.Source)
	case <-ctx.Done():
		t.Fatal("interpreter did not fall back after timeout")
	}

	select {
	case err := <-c.canceled:
		assert.ErrorIs(t, err, context.Canceled)
	case <-ctx.Done():
		t.Fatal("losing classifier call was not cancelled")
	}
	require.NoError(t, ctx.Err(), "request context must stay live")
}

func TestInterpret_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	it := newTestInterpreter(&stubClassifier{release: release})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := it.Interpret(ctx, "CEP 01310100")
	assert.Equal(t, domain.KindZip, got.Kind)
	assert.Equal(t, SourceRules, got.Source)
}
