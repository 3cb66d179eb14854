// Package resolver is the decision procedure that turns one user message,
// plus the read-only history of its conversation, into an Outcome.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/couchcryptid/cep-weather-assistant/internal/domain"
	"github.com/couchcryptid/cep-weather-assistant/internal/observability"
)

// maxChoices caps the candidates offered for disambiguation.
const maxChoices = 5

// Interpreter classifies a raw message.
type Interpreter interface {
	Interpret(ctx context.Context, text string) domain.Interpretation
}

// Engine resolves messages against the public-data providers. Provider
// calls within a turn are sequential, each depending on the previous one.
type Engine struct {
	interpreter Interpreter
	provider    domain.Provider
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// New creates an Engine.
func New(interpreter Interpreter, provider domain.Provider, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		interpreter: interpreter,
		provider:    provider,
		logger:      logger,
		metrics:     metrics,
	}
}

// Resolve never returns an error: provider failures and panics become
// OUT_OF_SCOPE outcomes carrying a user-facing message.
func (e *Engine) Resolve(ctx context.Context, input string, history domain.History) (out domain.Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("resolver panic recovered", "panic", r, "stack", string(debug.Stack()))
			out = internalErrorOutcome()
		}
		e.metrics.TurnsHandled.WithLabelValues(string(out.Action)).Inc()
		e.metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	}()

	in := e.interpreter.Interpret(ctx, input)
	e.logger.Debug("message interpreted",
		"kind", in.Kind,
		"source", in.Source,
		"zip_code", in.ZipCode,
		"city", in.City,
		"state", in.State,
		"is_contextual", in.IsContextual,
	)
	in = refine(input, in, history)
	return e.dispatch(ctx, input, in, history)
}

// refine reroutes two OUT_OF_SCOPE follow-ups before dispatch: a bare
// contextual phrase ("e lá?") when the conversation has a location, and a
// message that is only a city answering a clarification. Anything else
// stays OUT_OF_SCOPE and makes no provider call.
func refine(input string, in domain.Interpretation, history domain.History) domain.Interpretation {
	if in.Kind != domain.KindOutOfScope {
		return in
	}
	if in.IsContextual && domain.IsContextualFollowUp(input) {
		if _, ok := history.LastLocation(); ok {
			in.Kind = domain.KindContextual
			return in
		}
	}
	if awaitingLocation(history) {
		if loc, ok := cityAnswer(input); ok {
			in.Kind = domain.KindForecast
			in.City, in.State = loc.City, loc.State
		}
	}
	return in
}

// cityAnswer accepts "City, UF" or a message whose whole text is a city name.
func cityAnswer(input string) (domain.Location, bool) {
	if loc, ok := domain.ExtractCityAndState(input); ok {
		return loc, true
	}
	if city := strings.Trim(strings.TrimSpace(input), ".!?"); domain.IsValidCityName(city) {
		return domain.Location{City: city}, true
	}
	return domain.Location{}, false
}

func (e *Engine) dispatch(ctx context.Context, input string, in domain.Interpretation, history domain.History) domain.Outcome {
	switch in.Kind {
	case domain.KindZipAndForecast:
		return e.resolveZipAndForecast(ctx, in)
	case domain.KindZip:
		return e.resolveZip(ctx, in)
	case domain.KindForecast:
		return e.resolveForecast(ctx, input, in, history)
	case domain.KindContextual:
		return e.resolveContextual(ctx, input, in, history)
	default:
		return outOfScopeOutcome(input)
	}
}

func (e *Engine) resolveZip(ctx context.Context, in domain.Interpretation) domain.Outcome {
	addr, err := e.lookupAddress(ctx, in.ZipCode)
	if err != nil {
		return failureOutcome(err, "o CEP "+domain.FormatZipCode(in.ZipCode))
	}
	return domain.Outcome{
		Action:         domain.ActionConsultZipCode,
		InitialMessage: initialZipMessage(in.ZipCode),
		FinalMessage:   formatAddress(addr),
		Result:         domain.AddressOnly{Address: addr},
	}
}

// resolveZipAndForecast keeps the address once it has one: any later
// failure degrades the outcome to CONSULT_ZIP_CODE.
func (e *Engine) resolveZipAndForecast(ctx context.Context, in domain.Interpretation) domain.Outcome {
	addr, err := e.lookupAddress(ctx, in.ZipCode)
	if err != nil {
		return failureOutcome(err, "o CEP "+domain.FormatZipCode(in.ZipCode))
	}

	forecast, err := e.forecastForAddress(ctx, addr)
	if err != nil {
		e.logger.Warn("forecast for address unavailable, returning address only",
			"zip_code", addr.ZipCode, "city", addr.City, "state", addr.State, "error", err)
		return domain.Outcome{
			Action:         domain.ActionConsultZipCode,
			InitialMessage: initialZipMessage(in.ZipCode),
			FinalMessage:   formatAddress(addr) + "\n\n" + forecastUnavailableMessage(placeName(addr.City, addr.State)),
			Result:         domain.AddressOnly{Address: addr, ForecastErr: err.Error()},
		}
	}

	return domain.Outcome{
		Action:         domain.ActionConsultZipCodeAndWeather,
		InitialMessage: initialZipMessage(in.ZipCode),
		FinalMessage:   formatAddress(addr) + "\n\n" + formatForecast(forecast),
		Result:         domain.AddressAndForecast{Address: addr, Forecast: forecast},
	}
}

func (e *Engine) lookupAddress(ctx context.Context, zip string) (domain.AddressRecord, error) {
	if err := domain.ValidateZipCode(zip); err != nil {
		return domain.AddressRecord{}, err
	}
	return e.provider.GetAddress(ctx, zip)
}

// forecastForAddress requires the address city to resolve to exactly one
// CPTEC candidate in the address state.
func (e *Engine) forecastForAddress(ctx context.Context, addr domain.AddressRecord) (domain.ForecastRecord, error) {
	cities, err := e.provider.SearchCities(ctx, addr.City)
	if err != nil {
		return domain.ForecastRecord{}, fmt.Errorf("search cities: %w", err)
	}
	candidates := narrowToName(filterByState(cities, addr.State), addr.City)
	switch len(candidates) {
	case 0:
		return domain.ForecastRecord{}, &domain.NotFoundError{Resource: "city", Key: placeName(addr.City, addr.State)}
	case 1:
	default:
		return domain.ForecastRecord{}, fmt.Errorf("%d cities match %s", len(candidates), placeName(addr.City, addr.State))
	}

	forecast, err := e.provider.GetForecast(ctx, candidates[0].ID)
	if err != nil {
		return domain.ForecastRecord{}, fmt.Errorf("get forecast: %w", err)
	}
	if forecast.State == "" {
		forecast.State = candidates[0].State
	}
	return forecast, nil
}

func (e *Engine) resolveForecast(ctx context.Context, input string, in domain.Interpretation, history domain.History) domain.Outcome {
	loc, ok := cityFor(input, in)
	if !ok && in.IsContextual {
		loc, ok = history.LastLocation()
	}
	if !ok {
		return domain.Outcome{
			Action:       domain.ActionRequestLocation,
			FinalMessage: requestLocationMessage,
			Result:       domain.Clarification{Query: input, Suggestions: locationSuggestions},
		}
	}
	return e.forecastForLocation(ctx, loc)
}

// resolveContextual uses a city named in the message, then the last
// location of the conversation.
func (e *Engine) resolveContextual(ctx context.Context, input string, in domain.Interpretation, history domain.History) domain.Outcome {
	if loc, ok := cityFor(input, in); ok {
		return e.forecastForLocation(ctx, loc)
	}
	if loc, ok := history.LastLocation(); ok {
		return e.forecastForLocation(ctx, loc)
	}
	return domain.Outcome{
		Action:       domain.ActionContextQuery,
		FinalMessage: contextQueryMessage,
		Result:       domain.Clarification{Query: input, Suggestions: examplePhrasings},
	}
}

func outOfScopeOutcome(input string) domain.Outcome {
	return domain.Outcome{
		Action:       domain.ActionOutOfScope,
		FinalMessage: outOfScopeMessage(input),
		Result:       domain.OutOfScope{Reason: reasonUnrecognized},
	}
}

func (e *Engine) forecastForLocation(ctx context.Context, loc domain.Location) domain.Outcome {
	initial := initialForecastMessage(loc)

	cities, err := e.provider.SearchCities(ctx, loc.City)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		out := failureOutcome(err, "a cidade "+placeName(loc.City, loc.State))
		out.InitialMessage = initial
		return out
	}

	candidates := cities
	if loc.State != "" {
		candidates = filterByState(candidates, loc.State)
	}
	candidates = narrowToName(candidates, loc.City)

	switch {
	case len(candidates) == 0:
		return cityNotFoundOutcome(loc, initial)
	case len(candidates) > 1:
		if len(candidates) > maxChoices {
			candidates = candidates[:maxChoices]
		}
		return domain.Outcome{
			Action:         domain.ActionMultipleCities,
			InitialMessage: initial,
			FinalMessage:   formatChoices(loc.City, candidates),
			Result:         domain.CityChoices{Query: loc.City, Candidates: candidates},
		}
	}

	city := candidates[0]
	forecast, err := e.provider.GetForecast(ctx, city.ID)
	if err != nil {
		e.logger.Warn("forecast unavailable", "city", city.Name, "state", city.State, "city_id", city.ID, "error", err)
		return domain.Outcome{
			Action:         domain.ActionCityNotFound,
			InitialMessage: initial,
			FinalMessage:   forecastUnavailableMessage(placeName(city.Name, city.State)),
			Result:         domain.Clarification{Query: loc.City, Suggestions: locationSuggestions},
		}
	}
	if forecast.State == "" {
		forecast.State = city.State
	}
	return domain.Outcome{
		Action:         domain.ActionConsultWeatherDirect,
		InitialMessage: initial,
		FinalMessage:   formatForecast(forecast),
		Result:         domain.ForecastOnly{Forecast: forecast},
	}
}

// cityFor picks the city for a forecast: the interpretation's own city,
// then a trailing "City, UF", then the best free-text guess.
func cityFor(input string, in domain.Interpretation) (domain.Location, bool) {
	if in.City != "" {
		return domain.Location{City: in.City, State: in.State}, true
	}
	if loc, ok := domain.ExtractCityAndState(input); ok {
		return loc, true
	}
	if city, ok := domain.ExtractBestCityName(input); ok {
		return domain.Location{City: city, State: in.State}, true
	}
	return domain.Location{}, false
}

func awaitingLocation(history domain.History) bool {
	action, ok := history.LastAssistantAction()
	if !ok {
		return false
	}
	switch action {
	case domain.ActionMultipleCities, domain.ActionRequestLocation, domain.ActionContextQuery, domain.ActionCityNotFound:
		return true
	}
	return false
}

func filterByState(cities []domain.CityCandidate, state string) []domain.CityCandidate {
	if state == "" {
		return cities
	}
	var out []domain.CityCandidate
	for _, c := range cities {
		if domain.SameName(c.State, state) {
			out = append(out, c)
		}
	}
	return out
}

// narrowToName keeps exact-name matches when there are several candidates
// and at least one matches exactly; provider order is preserved.
func narrowToName(cities []domain.CityCandidate, name string) []domain.CityCandidate {
	if len(cities) < 2 {
		return cities
	}
	var exact []domain.CityCandidate
	for _, c := range cities {
		if domain.SameName(c.Name, name) {
			exact = append(exact, c)
		}
	}
	if len(exact) == 0 {
		return cities
	}
	return exact
}

func failureOutcome(err error, subject string) domain.Outcome {
	reason, msg := describeError(err, subject)
	return domain.Outcome{
		Action:       domain.ActionOutOfScope,
		FinalMessage: msg,
		Result:       domain.OutOfScope{Reason: reason},
	}
}

func cityNotFoundOutcome(loc domain.Location, initial string) domain.Outcome {
	return domain.Outcome{
		Action:         domain.ActionCityNotFound,
		InitialMessage: initial,
		FinalMessage:   cityNotFoundMessage(loc),
		Result:         domain.Clarification{Query: loc.City, Suggestions: locationSuggestions},
	}
}

func internalErrorOutcome() domain.Outcome {
	return domain.Outcome{
		Action:       domain.ActionOutOfScope,
		FinalMessage: internalErrorMessage,
		Result:       domain.OutOfScope{Reason: reasonInternalError},
	}
}
