package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

func parseYAML(content string, base Config) (Config, []Warning, error) {
	decoder := yaml.NewDecoder(bytes.NewBufferString(content))
	decoder.KnownFields(true)

	var payload filePayload
	if err := decoder.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return finish(base, nil)
		}
		return Config{}, nil, fmt.Errorf("yaml: %w", err)
	}

	var extra yaml.Node
	if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
		if err != nil {
			return Config{}, nil, fmt.Errorf("yaml: %w", err)
		}
		return Config{}, nil, fmt.Errorf("multiple YAML documents are not allowed")
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return finish(cfg, warnings)
}
