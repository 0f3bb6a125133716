package logger

import "strings"

var secretKeyMarkers = []string{"token", "secret", "authorization", "password"}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, m := range secretKeyMarkers {
		if strings.Contains(key, m) {
			return true
		}
	}
	return false
}

// RedactSecret masks a credential for safe logging, keeping the first four
// characters so tokens can still be told apart.
// "ya29.a0AfH6SM" → "ya29***"
// Values of four characters or fewer are fully masked.
func RedactSecret(val string) string {
	if len(val) <= 4 {
		return "***"
	}
	return val[:4] + "***"
}
