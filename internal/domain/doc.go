// Package domain models the Brazilian public data the assistant resolves:
// postal codes (CEP), CPTEC city codes and CPTEC weather forecasts.
//
// # Data Sources
//
// All three lookups go through BrasilAPI (https://brasilapi.com.br), which
// proxies the Correios/ViaCEP address databases and the INPE/CPTEC forecast
// service:
//
//	GET /cep/v1/{cep}                     address for an 8-digit CEP
//	GET /cptec/v1/cidade/{name}           CPTEC city codes matching a name
//	GET /cptec/v1/clima/previsao/{code}   forecast for a CPTEC city code
//
// # CEP Conventions
//
// A CEP is 8 digits, usually written "DDDDD-DDD" (e.g. "01310-100", Avenida
// Paulista). The canonical value carried through the system is the digits
// only form ("01310100"); the hyphen is added back by [FormatZipCode] for
// display. Users also type "01310 100" or the bare digits, and the code may
// sit inside longer text ("meu CEP é 01310-100, e o tempo?").
//
// # City Names
//
// City names are not unique across states: "Ibitinga", "Bom Jesus" or
// "Santa Rita" exist in several UFs. A CPTEC search by name therefore
// returns candidates, and the two-letter UF (SP, RJ, MG...) is the only
// reliable disambiguator. When a user omits the UF and the search returns
// more than one candidate the assistant asks the user to choose.
//
// Names may carry diacritics ("São Paulo", "Marília"), hyphens
// ("Embu-Guaçu") and apostrophes ("Santa Bárbara d'Oeste"); prepositions
// such as "de", "do" and "da" appear inside names ("Rio de Janeiro"), so
// they are only rejected at the edges of an extracted name.
//
// # Forecast Conventions
//
// CPTEC forecasts are daily: each day carries a condition code ("pn" for
// partly cloudy, "c" for rain...), a Portuguese description, min/max in
// degrees Celsius and a UV index. Days are kept in the order the provider
// returns them; nothing here sorts them.
package domain
