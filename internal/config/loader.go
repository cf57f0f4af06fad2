package config

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables, applies the
// `default` tag for unset ones and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	for _, b := range bindings(reflect.ValueOf(cfg).Elem()) {
		if err := b.apply(); err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// binding ties one struct field to the variables it is read from.
type binding struct {
	env   string
	alt   string
	def   string
	field reflect.Value
}

// bindings lists every field carrying an env tag, walking section structs.
func bindings(v reflect.Value) []binding {
	var out []binding
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct {
			out = append(out, bindings(fv)...)
			continue
		}
		if env := sf.Tag.Get("env"); env != "" {
			out = append(out, binding{env: env, alt: sf.Tag.Get("envAlt"), def: sf.Tag.Get("default"), field: fv})
		}
	}
	return out
}

func (b binding) apply() error {
	value := os.Getenv(b.env)
	if value == "" && b.alt != "" {
		value = os.Getenv(b.alt)
	}
	if value == "" {
		value = b.def
	}
	if value == "" {
		return nil
	}

	parse, ok := parsers[b.field.Type()]
	if !ok {
		return fmt.Errorf("%s: unsupported field type %s", b.env, b.field.Type())
	}
	parsed, err := parse(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s=%q: %w", b.env, value, err)
	}
	b.field.Set(parsed)
	return nil
}

// parsers covers the field types Config uses.
var parsers = map[reflect.Type]func(string) (reflect.Value, error){
	reflect.TypeOf(""): func(s string) (reflect.Value, error) {
		return reflect.ValueOf(s), nil
	},
	reflect.TypeOf(0): func(s string) (reflect.Value, error) {
		n, err := strconv.Atoi(s)
		return reflect.ValueOf(n), err
	},
	reflect.TypeOf(int64(0)): func(s string) (reflect.Value, error) {
		n, err := strconv.ParseInt(s, 10, 64)
		return reflect.ValueOf(n), err
	},
	reflect.TypeOf(false): func(s string) (reflect.Value, error) {
		b, err := strconv.ParseBool(s)
		return reflect.ValueOf(b), err
	},
	reflect.TypeOf(time.Duration(0)): func(s string) (reflect.Value, error) {
		d, err := time.ParseDuration(s)
		return reflect.ValueOf(d), err
	},
	reflect.TypeOf([]string(nil)): func(s string) (reflect.Value, error) {
		var list []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				list = append(list, p)
			}
		}
		return reflect.ValueOf(list), nil
	},
}

// DefaultFileExts are the extensions the rate decoder reads.
var DefaultFileExts = []string{".xlsx", ".csv"}

// Validate checks every section and reports all failures at once.
func (c *Config) Validate() error {
	var errs []string
	errs = append(errs, c.Server.problems()...)
	errs = append(errs, c.Database.problems()...)
	errs = append(errs, c.Upload.problems()...)
	errs = append(errs, c.Rate.problems()...)
	errs = append(errs, c.Security.problems()...)
	errs = append(errs, c.Logging.problems()...)
	errs = append(errs, c.Rates.problems(c.Upload)...)

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *ServerConfig) problems() []string {
	var errs []string
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Port))
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 || c.RequestTimeout < 0 {
		errs = append(errs, "SERVER_*_TIMEOUT values must be non-negative")
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	return errs
}

func (c *DatabaseConfig) problems() []string {
	var errs []string
	if c.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	if c.MaxConns < c.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.MaxConns, c.MinConns))
	}
	return errs
}

func (c *UploadConfig) problems() []string {
	var errs []string
	if c.MaxFileSize <= 0 {
		errs = append(errs, "UPLOAD_MAX_FILE_SIZE must be positive")
	}
	if c.MaxConcurrent <= 0 {
		errs = append(errs, "UPLOAD_MAX_CONCURRENT must be positive")
	}
	if c.MaxWaitTime <= 0 {
		errs = append(errs, "UPLOAD_MAX_WAIT_TIME must be positive")
	}
	if c.Timeout <= 0 {
		errs = append(errs, "UPLOAD_TIMEOUT must be positive")
	}
	if c.ResetTimeout <= 0 {
		errs = append(errs, "UPLOAD_RESET_TIMEOUT must be positive")
	}
	return errs
}

func (c *RateLimitConfig) problems() []string {
	if !c.Enabled {
		return nil
	}
	var errs []string
	if c.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.UploadLimit < 0 {
		errs = append(errs, "RATE_LIMIT_UPLOAD must be non-negative (0 disables the upload limit)")
	}
	return errs
}

func (c *SecurityConfig) problems() []string {
	var errs []string
	for _, entry := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(entry); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(entry); err != nil {
			errs = append(errs, fmt.Sprintf("TRUSTED_PROXIES entry %q is not an IP or CIDR", entry))
		}
	}
	if c.RequireAPIKey && len(c.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}
	return errs
}

func (c *LoggingConfig) problems() []string {
	var errs []string
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Level))
	}
	switch strings.ToLower(c.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Format))
	}
	return errs
}

// problems checks the rate settings. The snapshot cap may not exceed the
// upload size cap.
func (c *RatesConfig) problems(upload UploadConfig) []string {
	var errs []string
	if c.DefaultFile != "" && !hasExt(c.DefaultFile, DefaultFileExts) {
		errs = append(errs, fmt.Sprintf("RATES_DEFAULT_FILE (%q) must end in one of: %s",
			c.DefaultFile, strings.Join(DefaultFileExts, ", ")))
	}
	if c.CacheKey == "" {
		errs = append(errs, "RATES_CACHE_KEY must not be empty")
	}
	switch {
	case c.CacheMaxBytes <= 0:
		errs = append(errs, "RATES_CACHE_MAX_BYTES must be positive")
	case upload.MaxFileSize > 0 && int64(c.CacheMaxBytes) > upload.MaxFileSize:
		errs = append(errs, fmt.Sprintf("RATES_CACHE_MAX_BYTES (%d) must not exceed UPLOAD_MAX_FILE_SIZE (%d)",
			c.CacheMaxBytes, upload.MaxFileSize))
	}
	if c.CacheMaxAge <= 0 {
		errs = append(errs, "RATES_CACHE_MAX_AGE must be positive")
	}
	if c.PruneInterval <= 0 {
		errs = append(errs, "RATES_CACHE_PRUNE_INTERVAL must be positive")
	}
	if c.PreviewRows < 0 {
		errs = append(errs, "RATES_PREVIEW_ROWS must be non-negative")
	}
	return errs
}

func hasExt(path string, exts []string) bool {
	ext := filepath.Ext(path)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// String returns the config for logging with the database URL and API
// keys masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Addr: %q}, ", c.Server.Addr())
	fmt.Fprintf(&b, "Database: {URL: %s, MaxConns: %d, MinConns: %d}, ",
		maskURL(c.Database.URL), c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Upload: {MaxFileSize: %d, MaxConcurrent: %d}, ",
		c.Upload.MaxFileSize, c.Upload.MaxConcurrent)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d, UploadLimit: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute, c.Rate.UploadLimit)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: %d, TrustedProxies: %d}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys), len(c.Security.TrustedProxies))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}, ", c.Logging.Level, c.Logging.Format)
	fmt.Fprintf(&b, "Rates: {DefaultFile: %q, CacheKey: %q, CacheMaxBytes: %d, CacheMaxAge: %s}",
		c.Rates.DefaultFile, c.Rates.CacheKey, c.Rates.CacheMaxBytes, c.Rates.CacheMaxAge)
	b.WriteString("}")
	return b.String()
}

// maskURL hides the connection string but says whether one is set.
func maskURL(url string) string {
	if url == "" {
		return "[none: memory cache]"
	}
	return "[MASKED]"
}

// UsePostgres reports whether a database URL is configured.
func (c *DatabaseConfig) UsePostgres() bool {
	return c.URL != ""
}
