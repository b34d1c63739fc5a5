package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
)

// ReadFile reads and decodes path without committing it anywhere.
func ReadFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseBytes(path, b)
}

// ParseBytes decodes b as JSON or YAML (chosen by name's extension) and
// validates the result. Unknown keys and trailing data are errors.
func ParseBytes(name string, b []byte) (*Config, error) {
	jb, format, err := coerceToJSONBytes(name, b)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	cfg := new(Config)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%s: decode %s: %w", name, format, err)
	}
	switch err := dec.Decode(&struct{}{}); {
	case err == nil:
		return nil, fmt.Errorf("%s: trailing data after config", name)
	case !errors.Is(err, io.EOF):
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", name, err)
	}
	return cfg, nil
}

// fingerprint identifies a decoded config, so saves that only touch
// comments or formatting are not republished. 0 means unknown.
func fingerprint(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
