package config

import (
	"bytes"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/recycler/pkg/errors"
)

// Load decodes the YAML file at filePath into cfg. Keys absent from the file
// keep the values cfg already holds, so callers usually pass Default().
// Unknown keys are rejected so that a misspelt capacity cannot silently fall
// back to its default. ${VAR} and ${VAR:-fallback} are expanded from the
// environment before decoding.
func Load(filePath string, cfg interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to read config file").
			WithDetail("path", filePath)
	}

	dec := yaml.NewDecoder(bytes.NewReader(expandEnv(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML").
			WithDetail("path", filePath)
	}
	return nil
}

// LoadFile reads filePath over the defaults and validates the result.
func LoadFile(filePath string) (*Config, error) {
	cfg := Default()
	if err := Load(filePath, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, replacing any existing file.
func Save(filePath string, cfg interface{}) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal YAML")
	}
	if err := enc.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal YAML")
	}

	if err := os.WriteFile(filePath, buf.Bytes(), 0o644); err != nil { //nolint:gosec
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write config file").
			WithDetail("path", filePath)
	}
	return nil
}

// expandEnv replaces ${VAR} with the value of VAR and ${VAR:-fallback} with
// fallback when VAR is unset or empty. A bare $ is left alone.
func expandEnv(data []byte) []byte {
	s := string(data)
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			break
		}
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			break
		}
		b.WriteString(s[:start])

		name := s[start+2 : start+end]
		fallback := ""
		if i := strings.Index(name, ":-"); i >= 0 {
			name, fallback = name[:i], name[i+2:]
		}
		if v := os.Getenv(name); v != "" {
			b.WriteString(v)
		} else {
			b.WriteString(fallback)
		}
		s = s[start+end+1:]
	}
	b.WriteString(s)
	return []byte(b.String())
}
