package respond

import (
	"regexp"
)

var (
	// bearer tokens and basic credentials in echoed headers
	bearerPattern = regexp.MustCompile(`(?i)(bearer|basic)\s+[A-Za-z0-9\-._~+/]+=*`)
	// api keys and tokens passed as query or form parameters
	secretParamPattern = regexp.MustCompile(`(?i)(api_key|apikey|token|secret|signature)=([^&\s]+)`)
	// passwords inside DSNs and URLs
	dsnPasswordPattern = regexp.MustCompile(`://([^:/@\s]+):([^@\s]+)@`)
	// webhook signing headers
	signaturePattern = regexp.MustCompile(`sha256=[0-9a-fA-F]{16,}`)
)

// SanitizeError returns err's message with credentials masked.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	msg = bearerPattern.ReplaceAllString(msg, "$1 ****")
	msg = secretParamPattern.ReplaceAllString(msg, "$1=****")
	msg = dsnPasswordPattern.ReplaceAllString(msg, "://$1:****@")
	msg = signaturePattern.ReplaceAllString(msg, "sha256=****")
	return msg
}
