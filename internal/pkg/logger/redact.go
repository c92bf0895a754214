package logger

// RedactSecret masks a credential value for safe logging.
// "sf-prod-password-42" → "sf***"
// Two characters are enough to confirm which secret was loaded without
// ever reconstructing it.
func RedactSecret(val string) string {
	if len(val) <= 2 {
		return "***"
	}
	return val[:2] + "***"
}
