package config

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
)

// Read loads the drive config at path. ${VAR} references are replaced from the environment
// first, so pin names and bus paths can differ per host without editing the file.
func Read(path string) (*Config, error) {
	raw, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config %q", path)
	}
	return FromReader(path, bytes.NewReader(raw))
}

// FromReader decodes a config on top of the defaults from New and validates it. source only
// names the config in errors. Unknown fields are rejected so typos do not silently fall back
// to a default.
func FromReader(source string, r io.Reader) (*Config, error) {
	cfg := New()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", source)
	}
	if err := cfg.Validate(""); err != nil {
		return nil, errors.Wrapf(err, "invalid config %q", source)
	}
	return cfg, nil
}
