package cache

import (
	"fmt"
	"strings"
)

// GenerateKey creates a cache key with prefix and ID.
func GenerateKey(prefix string, id string) string {
	return fmt.Sprintf("%s:%s", prefix, id)
}

// SymbolKey builds a key from a "BASE/QUOTE" symbol, replacing the slash.
func SymbolKey(prefix, symbol string) string {
	return GenerateKey(prefix, strings.ReplaceAll(strings.ToUpper(symbol), "/", "-"))
}
