package domain

import "context"

// AddressProvider resolves a canonical 8-digit CEP to an address.
type AddressProvider interface {
	GetAddress(ctx context.Context, zipCode string) (AddressRecord, error)
}

// CitySearcher returns every city whose name matches, unfiltered.
type CitySearcher interface {
	SearchCities(ctx context.Context, name string) ([]CityCandidate, error)
}

// ForecastProvider returns the forecast for a CPTEC city code.
type ForecastProvider interface {
	GetForecast(ctx context.Context, cityID int) (ForecastRecord, error)
}

// Provider bundles the three public-data lookups.
type Provider interface {
	AddressProvider
	CitySearcher
	ForecastProvider
}

// Classification is the structured answer of an AI intent classifier.
type Classification struct {
	Kind         Kind   `json:"kind"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	IsContextual bool   `json:"isContextual"`
}

// Classifier labels free text with one of the five kinds.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}
