package domain

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TurnPayload is the structured data attached to an assistant turn, so later
// turns can recall a location without re-parsing rendered text.
type TurnPayload struct {
	Action   Action          `json:"action"`
	Address  *AddressRecord  `json:"address,omitempty"`
	Forecast *ForecastRecord `json:"forecast,omitempty"`
	Location *Location       `json:"location,omitempty"`
}

// Turn is one message of a conversation.
type Turn struct {
	Role    Role         `json:"role"`
	Content string       `json:"content"`
	Payload *TurnPayload `json:"payload,omitempty"`
	At      time.Time    `json:"at"`
}

// History is a conversation's turns in chronological order. The resolver
// only reads it.
type History []Turn

// LastLocation scans backward for the most recent turn carrying a city.
func (h History) LastLocation() (Location, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		p := h[i].Payload
		if p == nil {
			continue
		}
		if p.Location != nil && p.Location.City != "" {
			return *p.Location, true
		}
		if p.Forecast != nil && p.Forecast.City != "" {
			return Location{City: p.Forecast.City, State: p.Forecast.State}, true
		}
		if p.Address != nil && p.Address.City != "" {
			return Location{City: p.Address.City, State: p.Address.State}, true
		}
	}
	return Location{}, false
}

// PayloadFromOutcome builds the structured payload stored with an assistant turn.
func PayloadFromOutcome(o Outcome) *TurnPayload {
	p := &TurnPayload{
		Action:   o.Action,
		Address:  o.Address(),
		Forecast: o.Forecast(),
	}
	if loc, ok := o.Location(); ok {
		p.Location = &loc
	}
	return p
}

// LastAssistantAction returns the action of the most recent assistant turn.
func (h History) LastAssistantAction() (Action, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Role == RoleAssistant && h[i].Payload != nil {
			return h[i].Payload.Action, true
		}
	}
	return "", false
}
