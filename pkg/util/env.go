package util

import (
	"os"
	"strconv"
	"strings"
)

// EnvString returns the trimmed value of key, or def when unset.
func EnvString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func EnvInt(key string, def int) int {
	return ParseIntDefault(strings.TrimSpace(os.Getenv(key)), def)
}

func EnvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func EnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// EnvList reads a comma separated list; def is kept when the variable is unset or blank.
func EnvList(key string, def []string) []string {
	if items := SplitList(os.Getenv(key)); len(items) > 0 {
		return items
	}
	return def
}

// EnvInt64List parses a comma separated list of integers, skipping malformed entries.
func EnvInt64List(key string) []int64 {
	var out []int64
	for _, item := range SplitList(os.Getenv(key)) {
		if n, err := strconv.ParseInt(item, 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}
