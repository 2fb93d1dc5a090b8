package utils

import "strings"

// ParseSymbols splits a comma-separated list into trimmed, upper-cased,
// de-duplicated symbols in input order. Returns nil when nothing remains.
func ParseSymbols(s string) []string {
	return NormalizeSymbols(strings.Split(s, ","))
}

// NormalizeSymbols trims, upper-cases and de-duplicates symbols, dropping
// empty entries
func NormalizeSymbols(in []string) []string {
	var result []string
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		symbol := strings.ToUpper(strings.TrimSpace(v))
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		result = append(result, symbol)
	}
	return result
}
