// Package intent turns a raw user message into a domain.Interpretation,
// preferring an AI classifier and falling back to keyword rules.
package intent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/cep-weather-assistant/internal/domain"
	"github.com/couchcryptid/cep-weather-assistant/internal/observability"
)

// Interpretation sources.
const (
	SourceAI    = "ai"
	SourceRules = "rules"
)

// Interpreter races the classifier against a timeout. A classifier that
// loses the race has its context cancelled and its late result discarded.
type Interpreter struct {
	classifier domain.Classifier // nil disables AI classification
	timeout    time.Duration
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates an Interpreter. classifier may be nil.
func New(classifier domain.Classifier, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Interpreter {
	return &Interpreter{
		classifier: classifier,
		timeout:    timeout,
		clock:      clockwork.NewRealClock(),
		logger:     logger,
		metrics:    metrics,
	}
}

// Interpret never fails: any classifier problem falls back to the rules.
func (i *Interpreter) Interpret(ctx context.Context, text string) domain.Interpretation {
	if cls, ok := i.classify(ctx, text); ok {
		return FromClassification(text, cls)
	}
	return Fallback(text)
}

type classifyResult struct {
	cls domain.Classification
	err error
}

func (i *Interpreter) classify(ctx context.Context, text string) (domain.Classification, bool) {
	if i.classifier == nil {
		i.metrics.ClassifierRequests.WithLabelValues("disabled").Inc()
		return domain.Classification{}, false
	}

	// Cancelled on return so a losing call stops instead of running on.
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so an abandoned classifier can always deliver and exit.
	ch := make(chan classifyResult, 1)
	start := i.clock.Now()
	go func() {
		cls, err := i.classifier.Classify(cctx, text)
		ch <- classifyResult{cls: cls, err: err}
	}()

	timer := i.clock.NewTimer(i.timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		i.metrics.ClassifierDuration.Observe(i.clock.Since(start).Seconds())
		if r.err != nil {
			i.metrics.ClassifierRequests.WithLabelValues("error").Inc()
			i.logger.Warn("classifier failed, using keyword rules", "error", r.err)
			return domain.Classification{}, false
		}
		if !r.cls.Kind.Valid() {
			i.metrics.ClassifierRequests.WithLabelValues("invalid").Inc()
			i.logger.Warn("classifier returned unknown kind, using keyword rules", "kind", r.cls.Kind)
			return domain.Classification{}, false
		}
		i.metrics.ClassifierRequests.WithLabelValues(SourceAI).Inc()
		return r.cls, true
	case <-timer.Chan():
		i.metrics.ClassifierRequests.WithLabelValues("timeout").Inc()
		i.logger.Warn("classifier timed out, using keyword rules", "timeout", i.timeout)
		return domain.Classification{}, false
	case <-ctx.Done():
		i.metrics.ClassifierRequests.WithLabelValues("error").Inc()
		i.logger.Warn("classification abandoned, using keyword rules", "error", ctx.Err())
		return domain.Classification{}, false
	}
}

// FromClassification normalizes a classifier answer. The CEP always comes
// from the deterministic extractor; a ZIP_AND_FORECAST without one is read
// as FORECAST. A ZIP without one is kept so the resolver can report it.
func FromClassification(text string, cls domain.Classification) domain.Interpretation {
	in := domain.Interpretation{
		Kind:         cls.Kind,
		IsContextual: cls.IsContextual,
		Source:       SourceAI,
	}
	if city := strings.TrimSpace(cls.City); domain.IsValidCityName(city) {
		in.City = city
	}
	if state := strings.ToUpper(strings.TrimSpace(cls.State)); domain.IsStateCode(state) {
		in.State = state
	}
	// Keep a UF the user typed next to the same city.
	if in.City != "" && in.State == "" {
		if loc, ok := domain.ExtractCityAndState(text); ok && domain.SameName(loc.City, in.City) {
			in.State = loc.State
		}
	}

	zip, hasZip := domain.ExtractZipCode(text)
	switch in.Kind {
	case domain.KindZipAndForecast:
		if !hasZip {
			in.Kind = domain.KindForecast
			break
		}
		in.ZipCode = zip
	case domain.KindZip:
		if hasZip {
			in.ZipCode = zip
		}
	}
	return in
}

// Fallback derives an Interpretation from the keyword rules alone.
func Fallback(text string) domain.Interpretation {
	in := domain.Interpretation{
		IsContextual: domain.IsContextualWeatherQuery(text),
		Source:       SourceRules,
	}
	zip, hasZip := domain.ExtractZipCode(text)
	weather := domain.HasWeatherKeyword(text)

	switch {
	case hasZip && weather:
		in.Kind = domain.KindZipAndForecast
		in.ZipCode = zip
	case hasZip:
		in.Kind = domain.KindZip
		in.ZipCode = zip
	case weather:
		in.Kind = domain.KindForecast
	default:
		in.Kind = domain.KindOutOfScope
	}
	return in
}
