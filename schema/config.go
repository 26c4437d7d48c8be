package schema

import (
	"fmt"
	"net/url"
	"strings"
)

// ServiceConfig defines defaults for the navigation core.
type ServiceConfig struct {
	// DefaultWindow receives visits and tab-creating commands that carry no
	// tab context.
	DefaultWindow WindowID
	// StartURL seeds tabs created without a URL.
	StartURL      string
	OpenURLPolicy OpenURLPolicy
	// OpenURLWindow is the window used by OpenURLNamed and as the fallback
	// for OpenURLLastActive.
	OpenURLWindow WindowID
}

const (
	// DefaultWindowID is the window used when none is configured.
	DefaultWindowID WindowID = "main"
	// DefaultStartURL is the built-in start page.
	DefaultStartURL = "gopher://start"
)

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if strings.TrimSpace(string(cfg.DefaultWindow)) == "" {
		cfg.DefaultWindow = DefaultWindowID
	}
	if err := ValidateWindowID(cfg.DefaultWindow); err != nil {
		return ServiceConfig{}, err
	}
	if strings.TrimSpace(cfg.StartURL) == "" {
		cfg.StartURL = DefaultStartURL
	}
	if _, err := ParseURL(cfg.StartURL); err != nil {
		return ServiceConfig{}, fmt.Errorf("start url %q: %w", cfg.StartURL, err)
	}
	switch cfg.OpenURLPolicy {
	case "":
		cfg.OpenURLPolicy = OpenURLNamed
	case OpenURLNamed, OpenURLLastActive:
	default:
		return ServiceConfig{}, fmt.Errorf("unsupported open url policy %q", cfg.OpenURLPolicy)
	}
	if strings.TrimSpace(string(cfg.OpenURLWindow)) == "" {
		cfg.OpenURLWindow = cfg.DefaultWindow
	}
	if err := ValidateWindowID(cfg.OpenURLWindow); err != nil {
		return ServiceConfig{}, err
	}
	return cfg, nil
}

// ParseURL parses a visit target and requires a scheme.
func ParseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, ErrInvalidURL
	}
	// Gopher search URLs carry the query after a literal tab.
	u, err := url.Parse(strings.ReplaceAll(trimmed, "\t", "%09"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme == "" {
		return nil, ErrInvalidURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u, nil
}
