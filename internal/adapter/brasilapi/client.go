package brasilapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/cep-weather-assistant/internal/domain"
	"github.com/couchcryptid/cep-weather-assistant/internal/observability"
)

const providerName = "brasilapi"

// Metric labels for the three endpoints.
const (
	endpointAddress    = "address"
	endpointCitySearch = "city_search"
	endpointForecast   = "forecast"
)

// Paths are the endpoint paths relative to the base URL.
type Paths struct {
	ZipLookup  string
	CitySearch string
	Weather    string
}

// Client implements domain.Provider against BrasilAPI.
type Client struct {
	baseURL    string
	paths      Paths
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter // nil when unlimited
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a BrasilAPI client. Every call is bounded by timeout;
// rateLimit caps requests per second across all endpoints, 0 disables it.
func NewClient(baseURL string, paths Paths, timeout time.Duration, rateLimit int, logger *slog.Logger, metrics *observability.Metrics) *Client {
	var limiter *rate.Limiter
	if rateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(rateLimit), rateLimit)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		paths:      paths,
		timeout:    timeout,
		httpClient: &http.Client{},
		limiter:    limiter,
		metrics:    metrics,
		logger:     logger,
	}
}

// GetAddress looks up the address registered for an 8-digit CEP.
func (c *Client) GetAddress(ctx context.Context, zipCode string) (domain.AddressRecord, error) {
	start := time.Now()
	rec, err := c.getAddress(ctx, zipCode)
	c.observe(endpointAddress, start, err)
	return rec, err
}

func (c *Client) getAddress(ctx context.Context, zipCode string) (domain.AddressRecord, error) {
	var body addressResponse
	if err := c.get(ctx, endpointAddress, c.paths.ZipLookup, zipCode, &body); err != nil {
		return domain.AddressRecord{}, err
	}

	var missing []string
	if body.CEP == "" {
		missing = append(missing, "cep")
	}
	if body.State == "" {
		missing = append(missing, "state")
	}
	if body.City == "" {
		missing = append(missing, "city")
	}
	if len(missing) > 0 {
		return domain.AddressRecord{}, &domain.DataIncompleteError{Resource: endpointAddress, Missing: missing}
	}

	return domain.AddressRecord{
		ZipCode:      domain.NormalizeZipCode(body.CEP),
		State:        body.State,
		City:         body.City,
		Neighborhood: body.Neighborhood,
		Street:       body.Street,
	}, nil
}

// SearchCities returns every CPTEC city whose name matches, in provider order.
func (c *Client) SearchCities(ctx context.Context, name string) ([]domain.CityCandidate, error) {
	start := time.Now()
	cities, err := c.searchCities(ctx, name)
	c.observe(endpointCitySearch, start, err)
	return cities, err
}

func (c *Client) searchCities(ctx context.Context, name string) ([]domain.CityCandidate, error) {
	var body []cityResponse
	if err := c.get(ctx, endpointCitySearch, c.paths.CitySearch, name, &body); err != nil {
		return nil, err
	}

	cities := make([]domain.CityCandidate, 0, len(body))
	for _, city := range body {
		if city.ID == 0 || city.Name == "" {
			c.logger.Warn("skipping incomplete city entry", "query", name, "id", city.ID, "name", city.Name)
			continue
		}
		cities = append(cities, domain.CityCandidate{ID: city.ID, Name: city.Name, State: city.State})
	}
	if len(body) > 0 && len(cities) == 0 {
		return nil, &domain.DataIncompleteError{Resource: endpointCitySearch, Missing: []string{"id", "nome"}}
	}
	return cities, nil
}

// GetForecast returns the multi-day forecast for a CPTEC city code.
func (c *Client) GetForecast(ctx context.Context, cityID int) (domain.ForecastRecord, error) {
	start := time.Now()
	rec, err := c.getForecast(ctx, cityID)
	c.observe(endpointForecast, start, err)
	return rec, err
}

func (c *Client) getForecast(ctx context.Context, cityID int) (domain.ForecastRecord, error) {
	var body forecastResponse
	if err := c.get(ctx, endpointForecast, c.paths.Weather, fmt.Sprint(cityID), &body); err != nil {
		return domain.ForecastRecord{}, err
	}

	var missing []string
	if body.City == "" {
		missing = append(missing, "cidade")
	}
	if len(body.Days) == 0 {
		missing = append(missing, "clima")
	}
	if len(missing) > 0 {
		return domain.ForecastRecord{}, &domain.DataIncompleteError{Resource: endpointForecast, Missing: missing}
	}

	days := make([]domain.ForecastDay, 0, len(body.Days))
	for _, d := range body.Days {
		code := d.Condition
		if code == "" {
			code = d.ConditionAlt
		}
		desc := d.ConditionDesc
		if desc == "" {
			desc = describeCondition(code)
		}
		days = append(days, domain.ForecastDay{
			Date:                 d.Date,
			ConditionCode:        code,
			ConditionDescription: desc,
			MinimumTemp:          d.Min,
			MaximumTemp:          d.Max,
			UVIndex:              d.UVIndex,
		})
	}

	return domain.ForecastRecord{
		City:      body.City,
		State:     body.State,
		UpdatedAt: body.UpdatedAt,
		Days:      days,
	}, nil
}

// get performs one rate-limited GET of base/path/key and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, endpoint, path, key string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &domain.TimeoutError{Operation: endpoint, Timeout: c.timeout, Err: err}
		}
	}

	u := fmt.Sprintf("%s/%s/%s", c.baseURL, strings.Trim(path, "/"), url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return &domain.TimeoutError{Operation: endpoint, Timeout: c.timeout, Err: err}
		}
		return &domain.ProviderError{Provider: providerName, Err: fmt.Errorf("%s request: %w", endpoint, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &domain.NotFoundError{Resource: endpoint, Key: key}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &domain.ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s: %s", endpoint, strings.TrimSpace(string(body))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTimeout(ctx, err) {
			return &domain.TimeoutError{Operation: endpoint, Timeout: c.timeout, Err: err}
		}
		return &domain.ProviderError{Provider: providerName, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode %s response: %w", endpoint, err)}
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Client) observe(endpoint string, start time.Time, err error) {
	c.metrics.ProviderDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	c.metrics.ProviderRequests.WithLabelValues(endpoint, outcomeLabel(err)).Inc()
	if err != nil {
		c.logger.Debug("brasilapi request failed", "endpoint", endpoint, "error", err)
	}
}

func outcomeLabel(err error) string {
	var (
		timeoutErr    *domain.TimeoutError
		incompleteErr *domain.DataIncompleteError
	)
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &incompleteErr):
		return "incomplete"
	default:
		return "error"
	}
}

// conditionDescriptions covers the CPTEC codes seen most often, for
// responses that omit condicao_desc.
var conditionDescriptions = map[string]string{
	"c":   "Chuva",
	"ci":  "Chuvas Isoladas",
	"cl":  "Céu Claro",
	"cm":  "Chuva pela Manhã",
	"cn":  "Chuva à Noite",
	"ct":  "Chuva à Tarde",
	"e":   "Encoberto",
	"in":  "Instável",
	"n":   "Nublado",
	"np":  "Nublado e Pancadas de Chuva",
	"nv":  "Nevoeiro",
	"pc":  "Pancadas de Chuva",
	"pn":  "Parcialmente Nublado",
	"ps":  "Predomínio de Sol",
	"t":   "Tempestade",
	"g":   "Geada",
	"pt":  "Pancadas de Chuva à Tarde",
	"psc": "Possibilidade de Chuva",
}

func describeCondition(code string) string {
	if d, ok := conditionDescriptions[strings.ToLower(code)]; ok {
		return d
	}
	return code
}

// BrasilAPI response types.

type addressResponse struct {
	CEP          string `json:"cep"`
	State        string `json:"state"`
	City         string `json:"city"`
	Neighborhood string `json:"neighborhood"`
	Street       string `json:"street"`
}

type cityResponse struct {
	ID    int    `json:"id"`
	Name  string `json:"nome"`
	State string `json:"estado"`
}

type forecastResponse struct {
	City      string        `json:"cidade"`
	State     string        `json:"estado"`
	UpdatedAt string        `json:"atualizado_em"`
	Days      []dayResponse `json:"clima"`
}

type dayResponse struct {
	Date          string  `json:"data"`
	Condition     string  `json:"condicao"`
	ConditionAlt  string  `json:"condition"`
	ConditionDesc string  `json:"condicao_desc"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	UVIndex       float64 `json:"indice_uv"`
}
