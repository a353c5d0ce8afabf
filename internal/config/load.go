package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrConfigInvalid wraps any failure encountered while loading or validating
// the configuration file; it is always fatal at startup (and during a reload
// attempt, where it aborts the reload rather than the whole process).
type ErrConfigInvalid struct {
	Path   string
	Reason string
}

func (e *ErrConfigInvalid) Error() string {
	return fmt.Sprintf("config_invalid: %s: %s", e.Path, e.Reason)
}

// Load reads, parses, and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ErrConfigInvalid{Path: path, Reason: err.Error()}
	}

	var cfg Config
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, &ErrConfigInvalid{Path: path, Reason: err.Error()}
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, &ErrConfigInvalid{Path: path, Reason: err.Error()}
	}
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	if !cfg.Mode.valid() {
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}

	seenFrom := make(map[string]struct{})
	errorHandlers := 0
	commonStatics := 0

	for _, svc := range cfg.Services {
		switch svc.Type {
		case ServiceTypeCommon:
			c := svc.Common
			if err := validate.Struct(c); err != nil {
				return fmt.Errorf("common_service %q: %w", c.From, err)
			}
			if !strings.HasPrefix(c.To, "http://") && !strings.HasPrefix(c.To, "https://") {
				return fmt.Errorf("common_service %q: to=%q must start with http:// or https://", c.From, c.To)
			}
			if _, dup := seenFrom[c.From]; dup {
				return fmt.Errorf("duplicate from host %q", c.From)
			}
			seenFrom[c.From] = struct{}{}
		case ServiceTypeErrorHandler:
			if err := validate.Struct(svc.Error); err != nil {
				return fmt.Errorf("error_handler: %w", err)
			}
			errorHandlers++
		case ServiceTypeCommonStatic:
			if err := validate.Struct(svc.Static); err != nil {
				return fmt.Errorf("common_static: %w", err)
			}
			commonStatics++
		default:
			return fmt.Errorf("unknown service type %q", svc.Type)
		}
	}

	// Config.ErrorHandler/CommonStatic only ever return the first match, so a
	// second entry would silently be ignored at the router level; reject it
	// here instead.
	if errorHandlers > 1 {
		return fmt.Errorf("at most one error_handler service is supported, got %d", errorHandlers)
	}
	if commonStatics > 1 {
		return fmt.Errorf("at most one common_static service is supported, got %d", commonStatics)
	}
	return nil
}
