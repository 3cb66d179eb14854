package domain

import "time"

// Kind is the category an input is classified into.
type Kind string

const (
	KindZip            Kind = "ZIP"
	KindForecast       Kind = "FORECAST"
	KindZipAndForecast Kind = "ZIP_AND_FORECAST"
	KindContextual     Kind = "CONTEXTUAL"
	KindOutOfScope     Kind = "OUT_OF_SCOPE"
)

// Kinds lists every valid Kind, in the order they are presented to the classifier.
var Kinds = []Kind{KindZip, KindForecast, KindZipAndForecast, KindContextual, KindOutOfScope}

// Valid reports whether k is one of the five known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Interpretation is the normalized reading of one user turn.
// ZipCode is only set for ZIP and ZIP_AND_FORECAST and is always canonical.
type Interpretation struct {
	Kind         Kind   `json:"kind"`
	ZipCode      string `json:"zip_code,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	IsContextual bool   `json:"is_contextual"`
	Source       string `json:"source"` // "ai" or "rules"
}

// CityCandidate is one CPTEC city returned by a name search.
// ID is the only identity; names repeat across states.
type CityCandidate struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// AddressRecord is the address registered for a CEP.
type AddressRecord struct {
	ZipCode      string `json:"zip_code"` // 8 digits, no hyphen
	State        string `json:"state"`
	City         string `json:"city"`
	Neighborhood string `json:"neighborhood,omitempty"`
	Street       string `json:"street,omitempty"`
}

// ForecastDay is a single day of a CPTEC forecast.
type ForecastDay struct {
	Date                 string  `json:"date"`
	ConditionCode        string  `json:"condition_code"`
	ConditionDescription string  `json:"condition_description"`
	MinimumTemp          float64 `json:"minimum_temp"`
	MaximumTemp          float64 `json:"maximum_temp"`
	UVIndex              float64 `json:"uv_index"`
}

// ForecastRecord is a multi-day forecast for one city. Days keep provider order.
type ForecastRecord struct {
	City      string        `json:"city"`
	State     string        `json:"state"`
	UpdatedAt string        `json:"updated_at"`
	Days      []ForecastDay `json:"days"`
}

// Location is a city plus its optional UF.
type Location struct {
	City  string `json:"city"`
	State string `json:"state,omitempty"`
}

// OutcomeEvent is the record published for every resolved turn.
type OutcomeEvent struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Input          string    `json:"input"`
	Action         Action    `json:"action"`
	ZipCode        string    `json:"zip_code,omitempty"`
	City           string    `json:"city,omitempty"`
	State          string    `json:"state,omitempty"`
	CandidateCount int       `json:"candidate_count"`
	ResolvedAt     time.Time `json:"resolved_at"`
}
