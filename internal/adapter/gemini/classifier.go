package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/couchcryptid/cep-weather-assistant/internal/domain"
)

const systemPrompt = `Você classifica mensagens de um assistente que consulta CEPs brasileiros e a previsão do tempo.
Responda somente com JSON no formato {"kind": ..., "city": ..., "state": ..., "isContextual": ...}.

Valores de kind:
- ZIP: a mensagem pede o endereço de um CEP.
- FORECAST: a mensagem pede a previsão do tempo de uma cidade.
- ZIP_AND_FORECAST: a mensagem traz um CEP e pede também a previsão do tempo.
- CONTEXTUAL: a mensagem é um complemento curto que depende da conversa anterior, como "e lá?" ou "e amanhã?".
- OUT_OF_SCOPE: qualquer outro assunto.

city: nome da cidade mencionada, exatamente como escrito, ou vazio.
state: sigla da UF com duas letras maiúsculas quando mencionada, ou vazio.
isContextual: true quando a mensagem se refere a um lugar citado antes ("lá", "nessa cidade") em vez de nomeá-lo.`

// Classifier implements domain.Classifier with the Gemini generateContent API
// in structured-output mode.
type Classifier struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
	logger     *slog.Logger
}

// NewClassifier creates a Gemini classifier. Timeouts are imposed by the
// caller's context.
func NewClassifier(apiKey, model, baseURL string, logger *slog.Logger) *Classifier {
	return &Classifier{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// Classify asks the model to label text. The returned Kind is not validated here.
func (c *Classifier) Classify(ctx context.Context, text string) (domain.Classification, error) {
	reqBody, err := json.Marshal(c.buildRequest(text))
	if err != nil {
		return domain.Classification{}, fmt.Errorf("gemini: marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return domain.Classification{}, fmt.Errorf("gemini: creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Classification{}, &domain.ProviderError{Provider: "gemini", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("gemini: reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Classification{}, &domain.ProviderError{
			Provider:   "gemini",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", truncate(string(body), 256)),
		}
	}

	var apiResp response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return domain.Classification{}, fmt.Errorf("gemini: parsing response JSON: %w", err)
	}
	if apiResp.Error != nil {
		return domain.Classification{}, fmt.Errorf("gemini: API error [%d] %s: %s", apiResp.Error.Code, apiResp.Error.Status, apiResp.Error.Message)
	}
	if len(apiResp.Candidates) == 0 {
		return domain.Classification{}, fmt.Errorf("gemini: returned no candidates")
	}

	var parts []string
	for _, p := range apiResp.Candidates[0].Content.Parts {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	raw := stripCodeFence(strings.Join(parts, ""))
	if raw == "" {
		return domain.Classification{}, fmt.Errorf("gemini: returned empty text content")
	}

	var out domain.Classification
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return domain.Classification{}, fmt.Errorf("gemini: parsing classification %q: %w", truncate(raw, 128), err)
	}

	c.logger.Debug("gemini classification",
		"model", c.model,
		"kind", out.Kind,
		"city", out.City,
		"state", out.State,
		"is_contextual", out.IsContextual,
		"finish_reason", apiResp.Candidates[0].FinishReason,
	)
	return out, nil
}

func (c *Classifier) buildRequest(text string) request {
	kinds := make([]string, len(domain.Kinds))
	for i, k := range domain.Kinds {
		kinds[i] = string(k)
	}
	var temperature float32
	return request{
		SystemInstruction: &content{Parts: []part{{Text: systemPrompt}}},
		Contents:          []content{{Role: "user", Parts: []part{{Text: text}}}},
		GenerationConfig: &generationConfig{
			Temperature:      &temperature,
			ResponseMIMEType: "application/json",
			ResponseSchema: &schema{
				Type: "OBJECT",
				Properties: map[string]*schema{
					"kind":         {Type: "STRING", Enum: kinds},
					"city":         {Type: "STRING"},
					"state":        {Type: "STRING"},
					"isContextual": {Type: "BOOLEAN"},
				},
				Required: []string{"kind", "isContextual"},
			},
		},
	}
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Gemini API wire types.

type request struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type generationConfig struct {
	Temperature      *float32 `json:"temperature,omitempty"`
	ResponseMIMEType string   `json:"responseMimeType,omitempty"`
	ResponseSchema   *schema  `json:"responseSchema,omitempty"`
}

type schema struct {
	Type       string             `json:"type"`
	Enum       []string           `json:"enum,omitempty"`
	Properties map[string]*schema `json:"properties,omitempty"`
	Required   []string           `json:"required,omitempty"`
}

type response struct {
	Candidates []candidate `json:"candidates"`
	Error      *apiError   `json:"error,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}
