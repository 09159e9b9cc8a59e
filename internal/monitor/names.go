package monitor

import (
	"strings"
	"unicode"
)

// nameOverrides fixes capitalisation the camelCase split cannot infer.
var nameOverrides = map[string]string{
	"Re7 Morpho": "RE7 Morpho",
	"Aavev3":     "Aave V3",
	"AAVEV3":     "Aave V3",
	"Gmx":        "GMX",
}

// DisplayName prefers the on-chain identifier and falls back to the formatted config key.
func DisplayName(identifier, key string) string {
	if id := strings.TrimSpace(identifier); id != "" {
		return id
	}
	return FormatProviderKey(key)
}

// FormatProviderKey turns "Re7MorphoProvider" into "RE7 Morpho".
func FormatProviderKey(key string) string {
	base := strings.TrimSuffix(strings.TrimSpace(key), "Provider")
	words := splitCamel(base)
	for i, w := range words {
		words[i] = titleWord(w)
	}
	name := strings.Join(words, " ")
	if override, ok := nameOverrides[name]; ok {
		return override
	}
	return name
}

func splitCamel(s string) []string {
	runes := []rune(s)
	words := make([]string, 0, 4)
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		boundary := false
		switch {
		case cur == '_' || cur == '-' || cur == ' ':
			if i > start {
				words = append(words, string(runes[start:i]))
			}
			start = i + 1
			continue
		case unicode.IsUpper(cur) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			boundary = true
		case unicode.IsUpper(cur) && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			// end of an acronym: "USDCVault" -> "USDC", "Vault"
			boundary = true
		}
		if boundary && i > start {
			words = append(words, string(runes[start:i]))
			start = i
		}
	}
	if start < len(runes) {
		words = append(words, string(runes[start:]))
	}
	return words
}

func titleWord(w string) string {
	runes := []rune(w)
	if len(runes) == 0 {
		return w
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
