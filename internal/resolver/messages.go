package resolver

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/cep-weather-assistant/internal/domain"
)

// Out-of-scope reasons.
const (
	reasonUnrecognized  = "unrecognized"
	reasonInvalidZip    = "invalid_zip"
	reasonNotFound      = "not_found"
	reasonTimeout       = "timeout"
	reasonIncomplete    = "incomplete"
	reasonProviderError = "provider_error"
	reasonInternalError = "internal_error"
)

var examplePhrasings = []string{
	"CEP 01310-100",
	"Previsão do tempo em Campinas, SP",
	"CEP 01310-100 e a previsão do tempo",
}

var locationSuggestions = []string{
	"Previsão do tempo em Campinas, SP",
	"Como está o clima em Recife?",
}

func initialZipMessage(zip string) string {
	return fmt.Sprintf("Consultando o CEP %s...", domain.FormatZipCode(zip))
}

func initialForecastMessage(loc domain.Location) string {
	return fmt.Sprintf("Buscando a previsão do tempo para %s...", placeName(loc.City, loc.State))
}

func placeName(city, state string) string {
	if state == "" {
		return city
	}
	return city + "/" + state
}

func formatAddress(a domain.AddressRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CEP %s:\n", domain.FormatZipCode(a.ZipCode))
	switch {
	case a.Street != "" && a.Neighborhood != "":
		fmt.Fprintf(&b, "%s, %s\n", a.Street, a.Neighborhood)
	case a.Street != "":
		b.WriteString(a.Street + "\n")
	case a.Neighborhood != "":
		b.WriteString(a.Neighborhood + "\n")
	}
	b.WriteString(placeName(a.City, a.State))
	return b.String()
}

func formatForecast(f domain.ForecastRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Previsão do tempo para %s", placeName(f.City, f.State))
	if f.UpdatedAt != "" {
		fmt.Fprintf(&b, " (atualizada em %s)", formatDate(f.UpdatedAt))
	}
	b.WriteString(":")
	for _, d := range f.Days {
		fmt.Fprintf(&b, "\n• %s: %s, mín. %s°C, máx. %s°C", formatDate(d.Date), d.ConditionDescription, formatNumber(d.MinimumTemp), formatNumber(d.MaximumTemp))
		if d.UVIndex > 0 {
			fmt.Fprintf(&b, ", UV %s", formatNumber(d.UVIndex))
		}
	}
	return b.String()
}

func formatDate(s string) string {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return s
	}
	return t.Format("02/01")
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return strings.Replace(fmt.Sprintf("%.1f", v), ".", ",", 1)
}

func formatChoices(query string, candidates []domain.CityCandidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Encontrei mais de uma cidade chamada %s. Qual delas você quer?", query)
	for i, c := range candidates {
		fmt.Fprintf(&b, "\n%d. %s", i+1, placeName(c.Name, c.State))
	}
	fmt.Fprintf(&b, "\nResponda com a cidade e a UF, por exemplo \"%s, %s\".", candidates[0].Name, candidates[0].State)
	return b.String()
}

func cityNotFoundMessage(loc domain.Location) string {
	return fmt.Sprintf("Não encontrei a cidade %s. Confira a grafia ou informe também a UF, por exemplo \"Campinas, SP\".", placeName(loc.City, loc.State))
}

func forecastUnavailableMessage(name string) string {
	return fmt.Sprintf("Encontrei %s, mas a previsão do tempo não está disponível agora. Tente novamente em alguns minutos.", name)
}

const (
	requestLocationMessage = "De qual cidade você quer a previsão do tempo? Informe a cidade e, se possível, a UF."
	contextQueryMessage    = "Não sei a qual lugar você se refere. Repita a consulta do CEP ou diga o nome da cidade."
	internalErrorMessage   = "Tive um problema inesperado ao processar sua mensagem. Tente novamente, por exemplo: \"CEP 01310-100\"."
)

func outOfScopeMessage(input string) string {
	var b strings.Builder
	if domain.DetectZipCodeKeyword(input) {
		b.WriteString("Para consultar um CEP, envie os 8 dígitos, por exemplo 01310-100.\n")
	} else {
		b.WriteString("Desculpe, não entendi. Posso consultar endereços pelo CEP e a previsão do tempo de cidades brasileiras.\n")
	}
	b.WriteString("Experimente:")
	for _, p := range examplePhrasings {
		fmt.Fprintf(&b, "\n• %s", p)
	}
	return b.String()
}

// describeError maps a typed error to an out-of-scope reason and a user
// message ending in a retry suggestion. subject names what was looked up.
func describeError(err error, subject string) (string, string) {
	var (
		validationErr *domain.ValidationError
		timeoutErr    *domain.TimeoutError
		incompleteErr *domain.DataIncompleteError
		providerErr   *domain.ProviderError
	)
	switch {
	case errors.As(err, &validationErr) && validationErr.Value == "":
		return reasonInvalidZip, "Não encontrei um CEP na sua mensagem. Tente novamente com os 8 dígitos, por exemplo 01310-100."
	case errors.As(err, &validationErr):
		return reasonInvalidZip, fmt.Sprintf("O CEP informado (%s) não é válido. Tente novamente com os 8 dígitos, por exemplo 01310-100.", validationErr.Value)
	case errors.Is(err, domain.ErrNotFound):
		return reasonNotFound, fmt.Sprintf("Não encontrei %s. Confira os dados e tente novamente.", subject)
	case errors.As(err, &timeoutErr):
		return reasonTimeout, fmt.Sprintf("O serviço demorou demais ao consultar %s. Tente novamente em instantes.", subject)
	case errors.As(err, &incompleteErr):
		return reasonIncomplete, fmt.Sprintf("O serviço retornou dados incompletos ao consultar %s. Tente novamente mais tarde.", subject)
	case errors.As(err, &providerErr):
		return reasonProviderError, fmt.Sprintf("O serviço de consulta está indisponível no momento e não consegui consultar %s. Tente novamente em alguns minutos.", subject)
	default:
		return reasonInternalError, internalErrorMessage
	}
}
