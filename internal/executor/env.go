package executor

import (
	"os"
	"strings"
)

// sensitiveEnvPrefixes are environment variable prefixes stripped from
// task environments when executor.sanitize_env is set.
var sensitiveEnvPrefixes = []string{
	"TASKSCHED_",
	"AWS_SECRET",
	"AWS_SESSION_TOKEN",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"GITLAB_TOKEN",
	"OTEL_EXPORTER_OTLP_HEADERS",
}

// sensitiveEnvExact are variable names stripped only on an exact match,
// so DB_PORT or DATABASE_HOST survive.
var sensitiveEnvExact = map[string]struct{}{
	"AWS_SECRET_ACCESS_KEY": {},
	"DATABASE_URL":          {},
	"DB_PASSWORD":           {},
	"REDIS_PASSWORD":        {},
}

// SanitizedEnv returns os.Environ() without sensitive variables.
func SanitizedEnv() []string {
	return sanitize(os.Environ())
}

func sanitize(env []string) []string {
	result := make([]string, 0, len(env))
	for _, entry := range env {
		key, _, ok := strings.Cut(entry, "=")
		if !ok || isSensitiveEnvVar(key) {
			continue
		}
		result = append(result, entry)
	}
	return result
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	if _, ok := sensitiveEnvExact[upper]; ok {
		return true
	}
	for _, prefix := range sensitiveEnvPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}
