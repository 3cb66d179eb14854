package domain

import "encoding/json"

// Action tags what the assistant did for a turn.
type Action string

const (
	ActionConsultZipCode           Action = "CONSULT_ZIP_CODE"
	ActionConsultZipCodeAndWeather Action = "CONSULT_ZIP_CODE_AND_WEATHER"
	ActionConsultWeatherDirect     Action = "CONSULT_WEATHER_DIRECT"
	ActionMultipleCities           Action = "MULTIPLE_CITIES"
	ActionCityNotFound             Action = "CITY_NOT_FOUND"
	ActionRequestLocation          Action = "REQUEST_LOCATION"
	ActionContextQuery             Action = "CONTEXT_QUERY"
	ActionOutOfScope               Action = "OUT_OF_SCOPE"
)

// Result is the structured payload of an Outcome. It is one of
// AddressOnly, AddressAndForecast, ForecastOnly, CityChoices,
// Clarification or OutOfScope.
type Result interface {
	resultKind() string
}

// AddressOnly carries an address without a forecast.
type AddressOnly struct {
	Address AddressRecord
	// ForecastErr is set when a forecast was requested but could not be obtained.
	ForecastErr string
}

// AddressAndForecast carries an address and the forecast for its city.
type AddressAndForecast struct {
	Address  AddressRecord
	Forecast ForecastRecord
}

// ForecastOnly carries a forecast resolved from a city name.
type ForecastOnly struct {
	Forecast ForecastRecord
}

// CityChoices lists same-named candidates the user must choose between.
type CityChoices struct {
	Query      string
	Candidates []CityCandidate
}

// Clarification asks the user for more information.
type Clarification struct {
	Query       string
	Suggestions []string
}

// OutOfScope explains why nothing was resolved.
type OutOfScope struct {
	Reason string // unrecognized, invalid_zip, not_found, timeout, incomplete, provider_error, internal_error
}

func (AddressOnly) resultKind() string        { return "address" }
func (AddressAndForecast) resultKind() string { return "address_and_forecast" }
func (ForecastOnly) resultKind() string       { return "forecast" }
func (CityChoices) resultKind() string        { return "city_choices" }
func (Clarification) resultKind() string      { return "clarification" }
func (OutOfScope) resultKind() string         { return "out_of_scope" }

// Outcome is the sole return value of one resolution.
type Outcome struct {
	Action         Action
	InitialMessage string
	FinalMessage   string
	Result         Result
}

// Address returns the address carried by the outcome, if any.
func (o Outcome) Address() *AddressRecord {
	switch r := o.Result.(type) {
	case AddressOnly:
		return &r.Address
	case AddressAndForecast:
		return &r.Address
	}
	return nil
}

// Forecast returns the forecast carried by the outcome, if any.
func (o Outcome) Forecast() *ForecastRecord {
	switch r := o.Result.(type) {
	case AddressAndForecast:
		return &r.Forecast
	case ForecastOnly:
		return &r.Forecast
	}
	return nil
}

// Candidates returns the disambiguation candidates, if any.
func (o Outcome) Candidates() []CityCandidate {
	if r, ok := o.Result.(CityChoices); ok {
		return r.Candidates
	}
	return nil
}

// Location returns the place the outcome resolved to, if any.
func (o Outcome) Location() (Location, bool) {
	if f := o.Forecast(); f != nil && f.City != "" {
		return Location{City: f.City, State: f.State}, true
	}
	if a := o.Address(); a != nil && a.City != "" {
		return Location{City: a.City, State: a.State}, true
	}
	return Location{}, false
}

// OutcomeView is the flattened JSON form of an Outcome.
type OutcomeView struct {
	Action         Action          `json:"action"`
	InitialMessage string          `json:"initial_message"`
	FinalMessage   string          `json:"final_message"`
	ResultKind     string          `json:"result_kind,omitempty"`
	Address        *AddressRecord  `json:"address,omitempty"`
	Forecast       *ForecastRecord `json:"forecast,omitempty"`
	Cities         []CityCandidate `json:"cities,omitempty"`
	Suggestions    []string        `json:"suggestions,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

// MarshalJSON encodes the View.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.View())
}

// View flattens the result variant next to the action and messages.
func (o Outcome) View() OutcomeView {
	out := OutcomeView{
		Action:         o.Action,
		InitialMessage: o.InitialMessage,
		FinalMessage:   o.FinalMessage,
		Address:        o.Address(),
		Forecast:       o.Forecast(),
		Cities:         o.Candidates(),
	}
	if o.Result != nil {
		out.ResultKind = o.Result.resultKind()
	}
	switch r := o.Result.(type) {
	case Clarification:
		out.Suggestions = r.Suggestions
	case OutOfScope:
		out.Reason = r.Reason
	}
	return out
}
