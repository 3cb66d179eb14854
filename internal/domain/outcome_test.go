package domain

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testForecast = ForecastRecord{
	City:      "Ibitinga",
	State:     "SP",
	UpdatedAt: "2024-05-01",
	Days: []ForecastDay{
		{Date: "2024-05-01", ConditionCode: "pn", ConditionDescription: "Parcialmente Nublado", MinimumTemp: 17, MaximumTemp: 29, UVIndex: 8},
		{Date: "2024-05-02", ConditionCode: "c", ConditionDescription: "Chuva", MinimumTemp: 16, MaximumTemp: 24, UVIndex: 5},
	},
}

var testAddress = AddressRecord{ZipCode: "01310100", State: "SP", City: "São Paulo", Neighborhood: "Bela Vista", Street: "Avenida Paulista"}

func TestOutcome_Accessors(t *testing.T) {
	t.Run("address and forecast", func(t *testing.T) {
		o := Outcome{Action: ActionConsultZipCodeAndWeather, Result: AddressAndForecast{Address: testAddress, Forecast: testForecast}}
		require.NotNil(t, o.Address())
		require.NotNil(t, o.Forecast())
		loc, ok := o.Location()
		assert.True(t, ok)
		assert.Equal(t, Location{City: "Ibitinga", State: "SP"}, loc)
	})

	t.Run("address only", func(t *testing.T) {
		o := Outcome{Action: ActionConsultZipCode, Result: AddressOnly{Address: testAddress}}
		assert.Nil(t, o.Forecast())
		loc, ok := o.Location()
		assert.True(t, ok)
		assert.Equal(t, Location{City: "São Paulo", State: "SP"}, loc)
	})

	t.Run("choices carry no location", func(t *testing.T) {
		o := Outcome{Action: ActionMultipleCities, Result: CityChoices{Query: "Bom Jesus", Candidates: []CityCandidate{{ID: 1, Name: "Bom Jesus", State: "PI"}}}}
		assert.Len(t, o.Candidates(), 1)
		_, ok := o.Location()
		assert.False(t, ok)
	})
}

func TestOutcome_MarshalJSON(t *testing.T) {
	o := Outcome{
		Action:         ActionConsultWeatherDirect,
		InitialMessage: "Buscando",
		FinalMessage:   "Previsão",
		Result:         ForecastOnly{Forecast: testForecast},
	}
	data, err := json.Marshal(o)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "CONSULT_WEATHER_DIRECT", got["action"])
	assert.Equal(t, "forecast", got["result_kind"])
	assert.NotContains(t, got, "address")
	forecast, ok := got["forecast"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, forecast["days"], 2)

	data, err = json.Marshal(Outcome{Action: ActionOutOfScope, Result: OutOfScope{Reason: "timeout"}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"reason":"timeout"`)
}

func TestHistory_LastLocation(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, ok := History(nil).LastLocation()
		assert.False(t, ok)
	})

	t.Run("most recent wins", func(t *testing.T) {
		h := History{
			{Role: RoleUser, Content: "CEP 01310100"},
			{Role: RoleAssistant, Payload: &TurnPayload{Action: ActionConsultZipCode, Address: &testAddress}},
			{Role: RoleUser, Content: "tempo em Ibitinga"},
			{Role: RoleAssistant, Payload: &TurnPayload{Action: ActionConsultWeatherDirect, Forecast: &testForecast}},
			{Role: RoleUser, Content: "oi"},
			{Role: RoleAssistant, Payload: &TurnPayload{Action: ActionOutOfScope}},
		}
		loc, ok := h.LastLocation()
		require.True(t, ok)
		assert.Equal(t, Location{City: "Ibitinga", State: "SP"}, loc)
	})

	t.Run("explicit location preferred over forecast", func(t *testing.T) {
		h := History{{Role: RoleAssistant, Payload: &TurnPayload{
			Forecast: &testForecast,
			Location: &Location{City: "Bauru", State: "SP"},
		}}}
		loc, ok := h.LastLocation()
		require.True(t, ok)
		assert.Equal(t, "Bauru", loc.City)
	})
}

func TestPayloadFromOutcome(t *testing.T) {
	p := PayloadFromOutcome(Outcome{Action: ActionConsultZipCode, Result: AddressOnly{Address: testAddress}})
	assert.Equal(t, ActionConsultZipCode, p.Action)
	require.NotNil(t, p.Location)
	assert.Equal(t, "São Paulo", p.Location.City)

	p = PayloadFromOutcome(Outcome{Action: ActionRequestLocation, Result: Clarification{}})
	assert.Nil(t, p.Location)
	assert.Nil(t, p.Address)
}

func TestErrors(t *testing.T) {
	nf := &NotFoundError{Resource: "address", Key: "99999999"}
	assert.ErrorIs(t, nf, ErrNotFound)
	assert.Contains(t, nf.Error(), "99999999")

	te := &TimeoutError{Operation: "forecast", Timeout: 30 * time.Second, Err: context.DeadlineExceeded}
	assert.ErrorIs(t, te, context.DeadlineExceeded)
	assert.Contains(t, te.Error(), "30s")

	pe := &ProviderError{Provider: "brasilapi", StatusCode: 502, Err: errors.New("bad gateway")}
	assert.Contains(t, pe.Error(), "502")

	di := &DataIncompleteError{Resource: "address", Missing: []string{"city", "state"}}
	assert.Contains(t, di.Error(), "city, state")
}

func TestKindValid(t *testing.T) {
	for _, k := range Kinds {
		assert.True(t, k.Valid())
	}
	assert.False(t, Kind("WEATHER").Valid())
}

func TestSetClock(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(fixed))
	t.Cleanup(func() { SetClock(nil) })

	assert.Equal(t, fixed, Now())
}

func TestHistory_LastAssistantAction(t *testing.T) {
	_, ok := History{{Role: RoleUser, Content: "oi"}}.LastAssistantAction()
	assert.False(t, ok)

	h := History{
		{Role: RoleAssistant, Payload: &TurnPayload{Action: ActionConsultZipCode}},
		{Role: RoleUser, Content: "tempo em Ibitinga"},
		{Role: RoleAssistant, Payload: &TurnPayload{Action: ActionMultipleCities}},
		{Role: RoleUser, Content: "Ibitinga, SP"},
	}
	action, ok := h.LastAssistantAction()
	require.True(t, ok)
	assert.Equal(t, ActionMultipleCities, action)
}

func TestSameName(t *testing.T) {
	assert.True(t, SameName("São Paulo", "sao paulo"))
	assert.True(t, SameName(" Ibitinga", "IBITINGA "))
	assert.False(t, SameName("São Paulo", "São Paulo das Missões"))
}
