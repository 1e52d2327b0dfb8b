// Package config handles TOML configuration loading, environment overrides and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/scafoldr-gateway/config.toml",
	"configs/config.toml",
}

// reservedRoutes are path prefixes owned by the gateway's own routes.
var reservedRoutes = []string{"/api", "/app", "/auth", "/healthz", "/gateway/status"}

const (
	defaultGitHubTokenURL = "https://github.com/login/oauth/access_token"

	// defaultGitHubSuccessRedirect is where the OAuth callback sends the browser
	// after storing the token. The host is a development default; deployments set
	// github.success_redirect.
	defaultGitHubSuccessRedirect = "http://localhost:3000/github/auth-success"
)

// CLI holds command-line arguments parsed by Kong. Every field can also be set
// from the environment, which is how the frontend deployment configures it.
type CLI struct {
	Config             string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host               string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port               int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	StaticDir          string `kong:"help='Directory with the built frontend to serve (overrides config).',env='STATIC_DIR'"`
	RestBaseURL        string `kong:"help='Auth/email-code REST API base URL.',env='REST_API_BASE_URL'"`
	CoreBaseURL        string `kong:"help='Core generation API base URL.',env='CORE_API_BASE_URL'"`
	GitHubClientID     string `kong:"name='github-client-id',help='GitHub OAuth client ID.',env='GITHUB_CLIENT_ID'"`
	GitHubClientSecret string `kong:"name='github-client-secret',help='GitHub OAuth client secret.',env='GITHUB_CLIENT_SECRET'"`
	GitHubRedirectURI  string `kong:"name='github-redirect-uri',help='GitHub OAuth redirect URI.',env='GITHUB_REDIRECT_URI'"`
	RedirectURI        string `kong:"help='Legacy name for the GitHub OAuth redirect URI.',env='REDIRECT_URI'"`
	LogLevel           string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	GitHub   GitHubConfig   `toml:"github"`
	Session  SessionConfig  `toml:"session"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (3000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	StaticDir    string          `toml:"static_dir"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// UpstreamConfig holds the backend base URLs and connection settings.
type UpstreamConfig struct {
	RestBaseURL string `toml:"rest_base_url"`
	CoreBaseURL string `toml:"core_base_url"`
	// ResponseHeaderTimeoutSeconds bounds the wait for upstream response headers.
	// Zero disables it. There is no whole-request timeout: streams stay open
	// for as long as the upstream keeps sending.
	ResponseHeaderTimeoutSeconds int `toml:"response_header_timeout_seconds"`
	IdleConnections              int `toml:"idle_connections"`
}

// GitHubConfig holds GitHub OAuth application settings.
type GitHubConfig struct {
	ClientID        string `toml:"client_id"`
	ClientSecret    string `toml:"client_secret"`
	RedirectURI     string `toml:"redirect_uri"`
	TokenURL        string `toml:"token_url"`
	SuccessRedirect string `toml:"success_redirect"`
}

// SessionConfig controls the session cookies.
type SessionConfig struct {
	// InsecureCookies drops the Secure attribute, for plain-HTTP local development.
	InsecureCookies bool `toml:"insecure_cookies"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file (if any) and applies CLI/environment overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/scafoldr-gateway/config.toml then configs/config.toml. Finding no file is
// not an error: the gateway can be configured from the environment alone.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.StaticDir != "" {
		c.Server.StaticDir = cli.StaticDir
	}
	if cli.RestBaseURL != "" {
		c.Upstream.RestBaseURL = cli.RestBaseURL
	}
	if cli.CoreBaseURL != "" {
		c.Upstream.CoreBaseURL = cli.CoreBaseURL
	}
	if cli.GitHubClientID != "" {
		c.GitHub.ClientID = cli.GitHubClientID
	}
	if cli.GitHubClientSecret != "" {
		c.GitHub.ClientSecret = cli.GitHubClientSecret
	}
	switch {
	case cli.GitHubRedirectURI != "":
		c.GitHub.RedirectURI = cli.GitHubRedirectURI
	case cli.RedirectURI != "":
		c.GitHub.RedirectURI = cli.RedirectURI
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if err := validateBaseURL("upstream.rest_base_url (REST_API_BASE_URL)", c.Upstream.RestBaseURL); err != nil {
		return err
	}
	if err := validateBaseURL("upstream.core_base_url (CORE_API_BASE_URL)", c.Upstream.CoreBaseURL); err != nil {
		return err
	}
	if c.GitHub.TokenURL != "" {
		if err := validateBaseURL("github.token_url", c.GitHub.TokenURL); err != nil {
			return err
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.ResponseHeaderTimeoutSeconds < 0 {
		return fmt.Errorf("upstream.response_header_timeout_seconds must be non-negative; got %d", c.Upstream.ResponseHeaderTimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	if c.Server.StaticDir != "" {
		info, err := os.Stat(c.Server.StaticDir)
		if err != nil {
			return fmt.Errorf("server.static_dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("server.static_dir %q is not a directory", c.Server.StaticDir)
		}
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedRoutes {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// validateBaseURL requires an absolute http(s) URL.
func validateBaseURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https; got %q", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host; got %q", name, raw)
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.GitHub.TokenURL == "" {
		c.GitHub.TokenURL = defaultGitHubTokenURL
	}
	if c.GitHub.SuccessRedirect == "" {
		c.GitHub.SuccessRedirect = defaultGitHubSuccessRedirect
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SecureCookies reports whether session cookies carry the Secure attribute.
func (c *SessionConfig) SecureCookies() bool {
	return !c.InsecureCookies
}

// WarnPermissions logs a warning if the config file is readable by group or others.
// The file may hold the GitHub client secret.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 && c.GitHub.ClientSecret != "" {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
