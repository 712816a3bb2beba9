package logger

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Fields map[string]any

var base = newLogger(os.Stderr)

var sensitiveKeys = map[string]struct{}{
	"password":       {},
	"passwordhash":   {},
	"password_hash":  {},
	"token":          {},
	"accesstoken":    {},
	"access_token":   {},
	"authorization":  {},
	"secret":         {},
	"jwtsecret":      {},
	"jwt_secret":     {},
	"hashedpassword": {},
}

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Configure sets the output and minimum level. Unknown levels keep "info".
func Configure(out io.Writer, level string) {
	base.SetOutput(out)
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)
}

func Debug(message string, fields Fields) {
	entry(fields).Debug(message)
}

func Info(message string, fields Fields) {
	entry(fields).Info(message)
}

func Warn(message string, fields Fields) {
	entry(fields).Warn(message)
}

func Error(message string, err error, fields Fields) {
	e := entry(fields)
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(message)
}

func entry(fields Fields) *logrus.Entry {
	sanitized, ok := SanitizePayload(map[string]any(fields)).(map[string]any)
	if !ok {
		sanitized = map[string]any{}
	}
	return base.WithFields(logrus.Fields(sanitized))
}

// SanitizePayload returns a JSON-shaped copy of payload with secret values masked.
func SanitizePayload(payload any) any {
	if payload == nil {
		return map[string]any{}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "<unavailable>"
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return "<unavailable>"
	}

	return sanitizeValue(data)
}

func sanitizeValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, inner := range typed {
			if isSensitiveKey(key) {
				out[key] = "******"
				continue
			}
			out[key] = sanitizeValue(inner)
		}
		return out
	case []any:
		out := make([]any, 0, len(typed))
		for _, item := range typed {
			out = append(out, sanitizeValue(item))
		}
		return out
	default:
		return value
	}
}

func isSensitiveKey(key string) bool {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), "-", ""))
	_, ok := sensitiveKeys[normalized]
	return ok
}
