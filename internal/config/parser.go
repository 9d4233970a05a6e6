package config

import "strings"

// Parse reads configuration content as JSONC or YAML.
//
// JSONC is selected when the first non-whitespace character is `{`.
func Parse(content string, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return finish(base, nil)
	}

	if strings.HasPrefix(trimmed, "{") {
		return parseJSONC(content, base)
	}
	return parseYAML(content, base)
}
