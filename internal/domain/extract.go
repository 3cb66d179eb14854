package domain

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Keyword lists are stored folded: lower case, no diacritics.

var weatherKeywords = []string{
	"tempo", "clima", "previsao", "temperatura", "meteorolog",
	"chuva", "chover", "chovendo", "garoa", "umidade",
	"calor", "ensolarado", "nublado", "graus",
	"weather", "forecast",
}

var zipCodeKeywords = []string{
	"cep", "codigo postal", "codigo de enderecamento",
	"endereco", "logradouro", "bairro", "rua", "avenida",
	"zip code", "zipcode", "zip", "postal code", "postcode", "address",
}

// zipCodeTokens rejects brute-force city candidates built from address words.
var zipCodeTokens = map[string]bool{
	"cep": true, "codigo": true, "postal": true, "endereco": true, "logradouro": true,
	"bairro": true, "rua": true, "avenida": true, "zip": true, "zipcode": true,
	"postcode": true, "address": true,
}

// contextualPhrases end a follow-up that relies on the previous location.
var contextualPhrases = []string{
	"tempo", "clima", "previsao", "previsao do tempo",
	"la", "ai", "por la", "por ai", "de la", "e la", "e ai",
	"la tambem", "ai tambem",
	"nessa cidade", "nesta cidade", "na cidade", "dessa cidade", "desta cidade",
	"mesma cidade", "mesmo lugar", "mesmo local",
}

// nonCityWords may never appear as a token of a city name.
var nonCityWords = map[string]bool{
	// prepositions, articles, conjunctions
	"em": true, "no": true, "na": true, "nos": true, "nas": true,
	"para": true, "pra": true, "pro": true, "por": true, "pelo": true, "pela": true,
	"a": true, "o": true, "os": true, "as": true, "e": true, "ou": true,
	"um": true, "uma": true, "com": true, "sobre": true,
	// question words and verbs
	"qual": true, "quais": true, "como": true, "que": true, "quanto": true,
	"quando": true, "onde": true, "esta": true, "vai": true, "sera": true,
	"faz": true, "fazendo": true, "quero": true, "queria": true, "saber": true,
	"ver": true, "mostre": true, "mostra": true, "diga": true, "fale": true,
	"me": true, "consultar": true, "consulta": true, "informe": true,
	// weather vocabulary
	"cidade": true, "tempo": true, "clima": true, "previsao": true,
	"temperatura": true, "chuva": true, "chover": true, "calor": true,
	"frio": true, "graus": true, "weather": true, "forecast": true,
	// time words
	"hoje": true, "amanha": true, "agora": true, "semana": true,
	"dia": true, "dias": true, "fim": true,
	// address vocabulary
	"cep": true, "endereco": true, "rua": true, "bairro": true,
	// deixis and small talk
	"la": true, "ai": true, "aqui": true, "nessa": true, "nesta": true,
	"essa": true, "isso": true, "oi": true, "ola": true, "obrigado": true,
	"obrigada": true, "favor": true, "voce": true, "tudo": true, "bem": true,
	"sim": true, "nao": true, "meu": true, "minha": true, "ajuda": true,
}

// connectorWords may appear inside a city name ("Rio de Janeiro") but not at its edges.
var connectorWords = map[string]bool{
	"de": true, "do": true, "da": true, "dos": true, "das": true, "d": true,
}

var stateCodes = map[string]bool{
	"AC": true, "AL": true, "AP": true, "AM": true, "BA": true, "CE": true, "DF": true,
	"ES": true, "GO": true, "MA": true, "MT": true, "MS": true, "MG": true, "PA": true,
	"PB": true, "PR": true, "PE": true, "PI": true, "RJ": true, "RN": true, "RS": true,
	"RO": true, "RR": true, "SC": true, "SP": true, "SE": true, "TO": true,
}

var (
	nonDigitRe = regexp.MustCompile(`\D`)

	// zipPatterns are tried in order when the text holds more than 8 digits.
	zipPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{5}-\d{3}\b`),
		regexp.MustCompile(`\b\d{8}\b`),
		regexp.MustCompile(`\b\d{5} \d{3}\b`),
	}

	cityNameRe = regexp.MustCompile(`^[\p{L}\p{M}\s'’-]+$`)

	// cityTemplates are ordered most specific first.
	cityTemplates = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:clima|tempo|temperatura|chuva)\s+(?:em|para|pra|n[oa]|de|d[oa])\s+([^,.!?;:]+)`),
		regexp.MustCompile(`(?i)previs[ãa]o(?:\s+do\s+tempo)?\s+(?:em|para|pra|n[oa]|de|d[oa])\s+([^,.!?;:]+)`),
		regexp.MustCompile(`(?i)previs[ãa]o\s+([^,.!?;:]+)`),
		regexp.MustCompile(`(?i)(?:^|\s)(?:em|para|pra|de|d[oa]|n[oa])\s+([^,.!?;:]+)`),
	}

	// trailingStateRe splits "<prefix><sep><UF>" at the end of the text.
	trailingStateRe = regexp.MustCompile(`^(.*?)(\s*[,/-]\s*|\s+)([A-Za-z]{2})[\s.!?]*$`)

	verbCityRe = regexp.MustCompile(`(?i)(?:previs[ãa]o|tempo|clima|temperatura|chuva).*?\s(?:em|para|pra|n[oa])\s+(.+)$`)
)

// maxCitySpan bounds brute-force candidates; the longest Brazilian city
// names run to seven words.
const maxCitySpan = 8

// fold lower-cases s and strips diacritics so "Previsão" matches "previsao".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// NormalizeZipCode strips everything but digits.
func NormalizeZipCode(s string) string {
	return nonDigitRe.ReplaceAllString(s, "")
}

// ValidateZipCode returns a *ValidationError unless zip is exactly 8 digits.
func ValidateZipCode(zip string) error {
	if len(zip) != 8 || NormalizeZipCode(zip) != zip {
		return &ValidationError{Field: "zip code", Value: zip, Reason: "must be exactly 8 digits"}
	}
	return nil
}

// FormatZipCode renders a canonical CEP as "DDDDD-DDD".
func FormatZipCode(zip string) string {
	if len(zip) != 8 {
		return zip
	}
	return zip[:5] + "-" + zip[5:]
}

// ExtractZipCode finds a CEP in free text. When the text holds more than 8
// digits overall, only a ZIP-shaped substring is accepted, so a phone number
// is never mistaken for a CEP.
func ExtractZipCode(text string) (string, bool) {
	digits := NormalizeZipCode(text)
	switch {
	case len(digits) == 8:
		return digits, true
	case len(digits) < 8:
		return "", false
	}
	for _, re := range zipPatterns {
		if m := re.FindString(text); m != "" {
			if zip := NormalizeZipCode(m); len(zip) == 8 {
				return zip, true
			}
		}
	}
	return "", false
}

func containsAny(folded string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

// HasWeatherKeyword reports whether text mentions weather.
func HasWeatherKeyword(text string) bool {
	return containsAny(fold(text), weatherKeywords)
}

// DetectZipCodeKeyword reports whether text mentions a CEP or an address.
func DetectZipCodeKeyword(text string) bool {
	return containsAny(fold(text), zipCodeKeywords)
}

// IsContextualWeatherQuery reports whether text is a short follow-up such as
// "e lá?" or "como está o tempo nessa cidade" that relies on a prior location.
func IsContextualWeatherQuery(text string) bool {
	t := strings.TrimRight(fold(strings.TrimSpace(text)), " ?!.,;:")
	if t == "" {
		return false
	}
	for _, p := range contextualPhrases {
		if t == p || strings.HasSuffix(t, " "+p) {
			return true
		}
	}
	return false
}

// IsContextualFollowUp reports whether the whole of text is a contextual
// phrase ("e lá?", "nessa cidade"), not a sentence that merely ends in one.
func IsContextualFollowUp(text string) bool {
	t := strings.TrimRight(fold(strings.TrimSpace(text)), " ?!.,;:")
	for _, p := range contextualPhrases {
		if t == p {
			return true
		}
	}
	return false
}

// IsStateCode reports whether s is one of the 27 UF codes (upper case).
func IsStateCode(s string) bool {
	return stateCodes[s]
}

// IsValidCityName reports whether s could be a city name: at least two
// characters, only letters, spaces, hyphens and apostrophes, no stoplist
// token, and no connector at either edge.
func IsValidCityName(s string) bool {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) < 2 || !cityNameRe.MatchString(s) {
		return false
	}
	tokens := strings.Fields(fold(s))
	if len(tokens) == 0 {
		return false
	}
	for _, tok := range tokens {
		if nonCityWords[tok] {
			return false
		}
	}
	return !connectorWords[tokens[0]] && !connectorWords[tokens[len(tokens)-1]]
}

// cleanCityCandidate trims punctuation and drops stoplist or connector words
// from both ends of a captured name ("hoje em Ibitinga" -> "Ibitinga").
func cleanCityCandidate(s string) string {
	s = strings.Trim(strings.TrimSpace(s), ` "'.,;:!?()`)
	words := strings.Fields(s)
	isFiller := func(w string) bool {
		f := fold(w)
		return nonCityWords[f] || connectorWords[f]
	}
	for len(words) > 0 && isFiller(words[0]) {
		words = words[1:]
	}
	for len(words) > 0 && isFiller(words[len(words)-1]) {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func hasZipCodeToken(s string) bool {
	for _, tok := range strings.Fields(fold(s)) {
		if zipCodeTokens[tok] {
			return true
		}
	}
	return false
}

// ExtractBestCityName pulls the most likely city name out of free text.
// Phrase templates are tried first; otherwise the longest contiguous run of
// words that passes IsValidCityName wins.
func ExtractBestCityName(text string) (string, bool) {
	for _, re := range cityTemplates {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			city := cleanCityCandidate(m[1])
			if utf8.RuneCountInString(city) >= 2 && IsValidCityName(city) {
				return trimTrailingState(city), true
			}
		}
	}
	city, ok := bruteForceCityName(text)
	return trimTrailingState(city), ok
}

// trimTrailingState drops a final UF token ("São Paulo sp" -> "São Paulo")
// when what remains is still a valid city name.
func trimTrailingState(city string) string {
	words := strings.Fields(city)
	if len(words) < 2 || !IsStateCode(strings.ToUpper(words[len(words)-1])) {
		return city
	}
	if rest := strings.Join(words[:len(words)-1], " "); IsValidCityName(rest) {
		return rest
	}
	return city
}

func bruteForceCityName(text string) (string, bool) {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(`,.!?;:()"`, r)
	})
	best := ""
	for i := range words {
		for j := i + 1; j <= len(words) && j-i <= maxCitySpan; j++ {
			cand := strings.Join(words[i:j], " ")
			if utf8.RuneCountInString(cand) <= utf8.RuneCountInString(best) {
				continue
			}
			if IsValidCityName(cand) && !hasZipCodeToken(cand) {
				best = cand
			}
		}
	}
	return best, best != ""
}

// ExtractCityAndState finds a "CITY, UF" or "CITY UF" pair at the end of
// text. The UF is matched case-insensitively and returned upper case; the
// text before it must still hold a valid city name.
func ExtractCityAndState(text string) (Location, bool) {
	m := trailingStateRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return Location{}, false
	}
	prefix, state := m[1], strings.ToUpper(m[3])
	if !IsStateCode(state) {
		return Location{}, false
	}

	if vm := verbCityRe.FindStringSubmatch(prefix); vm != nil {
		if city := cleanCityCandidate(vm[1]); IsValidCityName(city) {
			return Location{City: city, State: state}, true
		}
	}

	words := strings.Fields(prefix)
	for i := range words {
		city := cleanCityCandidate(strings.Join(words[i:], " "))
		if IsValidCityName(city) {
			return Location{City: city, State: state}, true
		}
	}
	return Location{}, false
}

// SameName compares two place names ignoring case and diacritics.
func SameName(a, b string) bool {
	return fold(strings.TrimSpace(a)) == fold(strings.TrimSpace(b))
}
