// Package config defines the gateway's persisted JSON configuration, its
// validation rules, and a filesystem watcher that republishes reload events.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Mode is the top-level deployment mode. Only ModeSingle is operative; the
// remaining variants are reserved for a future multi-process topology and
// are treated identically to ModeSingle (see DESIGN.md).
type Mode string

const (
	ModeSingle         Mode = "single"
	ModeSupervisor     Mode = "supervisor"
	ModeParent         Mode = "parent"
	ModeChild          Mode = "child"
	ModeOlderBrother   Mode = "older_brother"
	ModeYoungerBrother Mode = "younger_brother"
)

func (m Mode) valid() bool {
	switch m {
	case ModeSingle, ModeSupervisor, ModeParent, ModeChild, ModeOlderBrother, ModeYoungerBrother:
		return true
	default:
		return false
	}
}

// ServiceType is the JSON discriminator carried by every services[] entry.
type ServiceType string

const (
	ServiceTypeCommon       ServiceType = "common_service"
	ServiceTypeErrorHandler ServiceType = "error_handler"
	ServiceTypeCommonStatic ServiceType = "common_static"
)

// CommonService proxies one virtual host to one upstream.
type CommonService struct {
	From                 string   `json:"from" validate:"required,hostname_port|hostname"`
	To                   string   `json:"to" validate:"required,url"`
	ServiceName          string   `json:"service_name"`
	RequireSubdomainAuth []string `json:"require_subdomain_auth,omitempty"`
	StartupCmd           string   `json:"startup_cmd,omitempty"`
	WorkingDir           string   `json:"working_dir,omitempty"`
	WaitAfter            int      `json:"wait_after,omitempty"`
	CORSDomains          []string `json:"cors_domains,omitempty"`
	SkipErrHandling      bool     `json:"skip_err_handling,omitempty"`
	ProvideIPAsHeader    string   `json:"provide_ip_as_header,omitempty"`
}

// ShouldStartup reports whether this service owns a supervised child process.
func (c *CommonService) ShouldStartup() bool {
	return c.StartupCmd != "" && c.WorkingDir != ""
}

// ErrorHandler names the SPA/dist directory used for branded error pages.
type ErrorHandler struct {
	DistDir     string   `json:"dist_dir" validate:"required"`
	StaticFiles []string `json:"static_files"`
}

// CommonStatic maps URL paths under one mount point to files on disk.
type CommonStatic struct {
	Path         string            `json:"path" validate:"required"`
	StaticRoutes map[string]string `json:"static_routes"`
}

// Service is a tagged union over the three service variants, discriminated
// by the JSON "type" field.
type Service struct {
	Type   ServiceType
	Common *CommonService
	Error  *ErrorHandler
	Static *CommonStatic
}

type serviceEnvelope struct {
	Type ServiceType `json:"type"`
}

// UnmarshalJSON decodes the tagged union by first reading the discriminator,
// then decoding the concrete payload into the matching branch.
func (s *Service) UnmarshalJSON(data []byte) error {
	var env serviceEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("service envelope: %w", err)
	}
	s.Type = env.Type
	switch env.Type {
	case ServiceTypeCommon:
		var c CommonService
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("common_service: %w", err)
		}
		s.Common = &c
	case ServiceTypeErrorHandler:
		var e ErrorHandler
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("error_handler: %w", err)
		}
		s.Error = &e
	case ServiceTypeCommonStatic:
		var st CommonStatic
		if err := json.Unmarshal(data, &st); err != nil {
			return fmt.Errorf("common_static: %w", err)
		}
		s.Static = &st
	default:
		return fmt.Errorf("unknown service type %q", env.Type)
	}
	return nil
}

// MarshalJSON re-emits the concrete branch with its discriminator restored.
func (s Service) MarshalJSON() ([]byte, error) {
	var payload any
	switch s.Type {
	case ServiceTypeCommon:
		payload = struct {
			Type ServiceType `json:"type"`
			*CommonService
		}{s.Type, s.Common}
	case ServiceTypeErrorHandler:
		payload = struct {
			Type ServiceType `json:"type"`
			*ErrorHandler
		}{s.Type, s.Error}
	case ServiceTypeCommonStatic:
		payload = struct {
			Type ServiceType `json:"type"`
			*CommonStatic
		}{s.Type, s.Static}
	default:
		return nil, fmt.Errorf("unknown service type %q", s.Type)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// CORSOptions are the shared defaults stamped by the CORS gate.
type CORSOptions struct {
	AllowedMethods       []string `json:"allowed_methods"`
	AllowedHeaders       []string `json:"allowed_headers"`
	AllowedClientHeaders []string `json:"allowed_client_headers"`
}

// Config is the full contents of lbrp-config.json.
type Config struct {
	Mode     Mode        `json:"mode" validate:"required"`
	Services []Service   `json:"services"`
	CORSOpts CORSOptions `json:"cors_opts"`
}

// CommonServices returns every common_service entry, in config order.
func (c *Config) CommonServices() []*CommonService {
	out := make([]*CommonService, 0, len(c.Services))
	for i := range c.Services {
		if c.Services[i].Type == ServiceTypeCommon {
			out = append(out, c.Services[i].Common)
		}
	}
	return out
}

// ErrorHandler returns the first configured error_handler, if any.
func (c *Config) ErrorHandler() *ErrorHandler {
	for i := range c.Services {
		if c.Services[i].Type == ServiceTypeErrorHandler {
			return c.Services[i].Error
		}
	}
	return nil
}

// CommonStatic returns the first configured common_static, if any.
func (c *Config) CommonStatic() *CommonStatic {
	for i := range c.Services {
		if c.Services[i].Type == ServiceTypeCommonStatic {
			return c.Services[i].Static
		}
	}
	return nil
}

// ExcludedFromErrHandling returns the origins ("https://" + `from`) of
// services that opted out of the global error catcher, in the form the
// catcher compares against the request's Origin header.
func (c *Config) ExcludedFromErrHandling() map[string]struct{} {
	out := make(map[string]struct{})
	for _, svc := range c.CommonServices() {
		if svc.SkipErrHandling {
			out["https://"+svc.From] = struct{}{}
		}
	}
	return out
}
