package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/burrow/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int              `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string           `mapstructure:"state_dir" yaml:"state_dir"`
	Navigation    NavigationConfig `mapstructure:"navigation" yaml:"navigation"`
	OpenURL       OpenURLConfig    `mapstructure:"open_url" yaml:"open_url"`
	Fetch         FetchConfig      `mapstructure:"fetch" yaml:"fetch"`
	Protocols     ProtocolsConfig  `mapstructure:"protocols" yaml:"protocols"`
	HTTP          HTTPConfig       `mapstructure:"http" yaml:"http"`
	SSH           SSHConfig        `mapstructure:"ssh" yaml:"ssh"`
	Logging       LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// NavigationConfig controls where tabs open by default.
type NavigationConfig struct {
	DefaultWindow string `mapstructure:"default_window" yaml:"default_window"`
	StartURL      string `mapstructure:"start_url" yaml:"start_url"`
}

// OpenURLConfig controls the external open entry point.
type OpenURLConfig struct {
	Policy string `mapstructure:"policy" yaml:"policy"`
	Window string `mapstructure:"window" yaml:"window"`
}

// FetchConfig tunes the fetch coordinator.
type FetchConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxBytes       int64   `mapstructure:"max_bytes" yaml:"max_bytes"`
	RatePerHost    float64 `mapstructure:"rate_per_host" yaml:"rate_per_host"`
	Burst          int     `mapstructure:"burst" yaml:"burst"`
}

// ProtocolsConfig enables protocol capabilities.
type ProtocolsConfig struct {
	Gopher GopherConfig `mapstructure:"gopher" yaml:"gopher"`
	Web    WebConfig    `mapstructure:"web" yaml:"web"`
}

// GopherConfig configures the gopher capability.
type GopherConfig struct {
	Enabled            bool `mapstructure:"enabled" yaml:"enabled"`
	DialTimeoutSeconds int  `mapstructure:"dial_timeout_seconds" yaml:"dial_timeout_seconds"`
}

// WebConfig configures the optional http/https capability.
type WebConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
}

// HTTPConfig configures the presentation transport.
type HTTPConfig struct {
	Addr       string `mapstructure:"addr" yaml:"addr"`
	HubHistory int    `mapstructure:"hub_history" yaml:"hub_history"`
	QueueDepth int    `mapstructure:"queue_depth" yaml:"queue_depth"`
}

// SSHConfig configures the SSH console.
type SSHConfig struct {
	Enabled            bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr               string `mapstructure:"addr" yaml:"addr"`
	HostKeyPath        string `mapstructure:"host_key_path" yaml:"host_key_path"`
	AuthorizedKeysPath string `mapstructure:"authorized_keys_path" yaml:"authorized_keys_path"`
	Window             string `mapstructure:"window" yaml:"window"`
}

// LoggingConfig controls audit logging behavior.
type LoggingConfig struct {
	DisableAuditTrails bool `mapstructure:"disable_audit_trails" yaml:"disable_audit_trails"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".burrow", "state"),
		Navigation: NavigationConfig{
			DefaultWindow: string(schema.DefaultWindowID),
			StartURL:      schema.DefaultStartURL,
		},
		OpenURL: OpenURLConfig{
			Policy: string(schema.OpenURLNamed),
			Window: string(schema.DefaultWindowID),
		},
		Fetch: FetchConfig{
			TimeoutSeconds: 30,
			MaxBytes:       8 << 20,
			RatePerHost:    0,
			Burst:          4,
		},
		Protocols: ProtocolsConfig{
			Gopher: GopherConfig{
				Enabled:            true,
				DialTimeoutSeconds: 15,
			},
			Web: WebConfig{
				Enabled:   false,
				UserAgent: "burrow/1.0",
			},
		},
		HTTP: HTTPConfig{
			Addr:       "127.0.0.1:27070",
			HubHistory: 512,
			QueueDepth: 256,
		},
		SSH: SSHConfig{
			Enabled:            false,
			Addr:               "127.0.0.1:27022",
			HostKeyPath:        filepath.Join(home, ".burrow", "ssh_host_key"),
			AuthorizedKeysPath: filepath.Join(home, ".burrow", "authorized_keys"),
			Window:             string(schema.DefaultWindowID),
		},
		Logging: LoggingConfig{
			DisableAuditTrails: false,
		},
	}, nil
}

// ServiceConfig maps the navigation keys onto the core service config.
func (c Config) ServiceConfig() schema.ServiceConfig {
	return schema.ServiceConfig{
		DefaultWindow: schema.WindowID(c.Navigation.DefaultWindow),
		StartURL:      c.Navigation.StartURL,
		OpenURLPolicy: schema.OpenURLPolicy(c.OpenURL.Policy),
		OpenURLWindow: schema.WindowID(c.OpenURL.Window),
	}
}

// FetchTimeout returns the per-fetch deadline.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// GopherDialTimeout returns the gopher connect timeout.
func (c Config) GopherDialTimeout() time.Duration {
	return time.Duration(c.Protocols.Gopher.DialTimeoutSeconds) * time.Second
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".burrow", "config.yaml"), nil
}
