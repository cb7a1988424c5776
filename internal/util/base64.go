package util

import (
	"encoding/base64"
	"strings"
)

// DecodeBase64URL decodes a base64url value, with or without padding.
// Standard alphabet characters are accepted as well since hand-edited .env
// files often mix the two.
func DecodeBase64URL(value string) ([]byte, error) {
	trimmed := strings.TrimSpace(value)
	trimmed = strings.TrimRight(trimmed, "=")
	trimmed = strings.NewReplacer("+", "-", "/", "_").Replace(trimmed)
	return base64.RawURLEncoding.DecodeString(trimmed)
}
