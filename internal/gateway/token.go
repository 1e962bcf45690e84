package gateway

import (
	"regexp"
	"strings"
)

// TokenKey is the credential store key and the query parameter name
const TokenKey = "token"

// MissingToken is appended when the credential store has no token
const MissingToken = "null"

var tokenParamPattern = regexp.MustCompile(`([?&]token=)[^&#]*`)

// AppendToken adds token=<value> to rawURL, using '?' when rawURL has no
// query string yet and '&' otherwise. The value is appended verbatim.
func AppendToken(rawURL, value string) string {
	sep := "&"
	if !strings.Contains(rawURL, "?") {
		sep = "?"
	}
	return rawURL + sep + TokenKey + "=" + value
}

// RedactToken hides token values in a URL for logs and history
func RedactToken(rawURL string) string {
	return tokenParamPattern.ReplaceAllString(rawURL, "${1}***")
}
