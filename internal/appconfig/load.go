package appconfig

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/burrow/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BURROW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("navigation.default_window", cfg.Navigation.DefaultWindow)
	v.SetDefault("navigation.start_url", cfg.Navigation.StartURL)
	v.SetDefault("open_url.policy", cfg.OpenURL.Policy)
	v.SetDefault("open_url.window", cfg.OpenURL.Window)
	v.SetDefault("fetch.timeout_seconds", cfg.Fetch.TimeoutSeconds)
	v.SetDefault("fetch.max_bytes", cfg.Fetch.MaxBytes)
	v.SetDefault("fetch.rate_per_host", cfg.Fetch.RatePerHost)
	v.SetDefault("fetch.burst", cfg.Fetch.Burst)
	v.SetDefault("protocols.gopher.enabled", cfg.Protocols.Gopher.Enabled)
	v.SetDefault("protocols.gopher.dial_timeout_seconds", cfg.Protocols.Gopher.DialTimeoutSeconds)
	v.SetDefault("protocols.web.enabled", cfg.Protocols.Web.Enabled)
	v.SetDefault("protocols.web.user_agent", cfg.Protocols.Web.UserAgent)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.hub_history", cfg.HTTP.HubHistory)
	v.SetDefault("http.queue_depth", cfg.HTTP.QueueDepth)
	v.SetDefault("ssh.enabled", cfg.SSH.Enabled)
	v.SetDefault("ssh.addr", cfg.SSH.Addr)
	v.SetDefault("ssh.host_key_path", cfg.SSH.HostKeyPath)
	v.SetDefault("ssh.authorized_keys_path", cfg.SSH.AuthorizedKeysPath)
	v.SetDefault("ssh.window", cfg.SSH.Window)
	v.SetDefault("logging.disable_audit_trails", cfg.Logging.DisableAuditTrails)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if _, err := schema.NormalizeServiceConfig(cfg.ServiceConfig()); err != nil {
		return fmt.Errorf("navigation: %w", err)
	}
	if !cfg.Protocols.Gopher.Enabled && !cfg.Protocols.Web.Enabled {
		return fmt.Errorf("protocols: at least one protocol must be enabled")
	}
	if cfg.Fetch.TimeoutSeconds < 0 {
		return fmt.Errorf("fetch.timeout_seconds must not be negative")
	}
	if cfg.Fetch.MaxBytes < 0 {
		return fmt.Errorf("fetch.max_bytes must not be negative")
	}
	if cfg.Fetch.RatePerHost < 0 {
		return fmt.Errorf("fetch.rate_per_host must not be negative")
	}
	addr := strings.TrimSpace(cfg.HTTP.Addr)
	if addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("http.addr must be host:port: %w", err)
		}
	}
	if cfg.SSH.Enabled {
		if _, _, err := net.SplitHostPort(strings.TrimSpace(cfg.SSH.Addr)); err != nil {
			return fmt.Errorf("ssh.addr must be host:port: %w", err)
		}
		if strings.TrimSpace(cfg.SSH.HostKeyPath) == "" {
			return fmt.Errorf("ssh.host_key_path is required when ssh is enabled")
		}
		if strings.TrimSpace(cfg.SSH.AuthorizedKeysPath) == "" {
			return fmt.Errorf("ssh.authorized_keys_path is required when ssh is enabled")
		}
		if err := schema.ValidateWindowID(schema.WindowID(cfg.SSH.Window)); err != nil {
			return fmt.Errorf("ssh.window: %w", err)
		}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.SSH.HostKeyPath = expandEnv(cfg.SSH.HostKeyPath)
	cfg.SSH.AuthorizedKeysPath = expandEnv(cfg.SSH.AuthorizedKeysPath)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
