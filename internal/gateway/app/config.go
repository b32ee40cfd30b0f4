package app

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/aussiebroadwan/policygate/pkg/httpx"
	"github.com/aussiebroadwan/policygate/pkg/jwtx"
)

type Config struct {
	Issuer     string        // Issuer claim stamped into access tokens (default: policygate)
	Algorithm  string        // JWT signing algorithm, HS256 or EdDSA (default: HS256)
	Secret     string        // HS256 secret; a random one is generated when empty
	AccessTTL  time.Duration // Access token lifetime (default: 15m)
	RefreshTTL time.Duration // Refresh token lifetime (default: 168h)
	ClockSkew  time.Duration // Leeway on exp/nbf checks; revocations are kept this much longer (default: 0)

	UpstreamBaseURL string        // Policy provider base URL (default: http://localhost:8089)
	UpstreamName    string        // Dependency name for the breaker and metrics (default: policy-provider)
	UpstreamTimeout time.Duration // Per-request timeout (default: 5s)

	BreakerFailureThreshold uint32        // Failures within the window that open the breaker (default: 5)
	BreakerWindow           time.Duration // Failure counting window (default: 60s)
	BreakerCooldown         time.Duration // Time spent open before probing (default: 30s)
	BreakerHalfOpenTrials   uint32        // Trial calls allowed while half-open (default: 1)

	CacheTTL      time.Duration // Lifetime of cached provider reads, 0 disables expiry (default: 5m)
	CacheCapacity uint64        // Max entries per cache (default: 10000)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired entry sweep interval (default: 10m)
	TrustedProxies       string        // Comma-separated IPs/CIDRs whose X-Forwarded-For is believed (default: none)
}

func LoadConfig() Config {
	return Config{
		Issuer:     getEnvOrDefault("GATEWAY_ISSUER", "policygate"),
		Algorithm:  getEnvOrDefault("AUTH_ALGORITHM", jwtx.AlgorithmHS256),
		Secret:     os.Getenv("AUTH_SECRET"),
		AccessTTL:  getEnvDurationOrDefault("AUTH_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL: getEnvDurationOrDefault("AUTH_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),
		ClockSkew:  getEnvDurationOrDefault("AUTH_CLOCK_SKEW", 0),

		UpstreamBaseURL: getEnvOrDefault("UPSTREAM_BASE_URL", "http://localhost:8089"),
		UpstreamName:    getEnvOrDefault("UPSTREAM_NAME", "policy-provider"),
		UpstreamTimeout: getEnvDurationOrDefault("UPSTREAM_TIMEOUT", 5*time.Second),

		BreakerFailureThreshold: uint32(getEnvIntOrDefault("BREAKER_FAILURE_THRESHOLD", 5)),
		BreakerWindow:           getEnvDurationOrDefault("BREAKER_WINDOW", 60*time.Second),
		BreakerCooldown:         getEnvDurationOrDefault("BREAKER_COOLDOWN", 30*time.Second),
		BreakerHalfOpenTrials:   uint32(getEnvIntOrDefault("BREAKER_HALF_OPEN_PROBES", 1)),

		CacheTTL:      getEnvDurationOrDefault("CACHE_TTL", 5*time.Minute),
		CacheCapacity: uint64(getEnvIntOrDefault("CACHE_CAPACITY", 10000)),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 10*time.Minute),
		TrustedProxies:       os.Getenv("TRUSTED_PROXIES"),
	}
}

// Validate reports every setting that would stop the gateway from starting.
func (c Config) Validate() error {
	var errs []error

	if c.Issuer == "" {
		errs = append(errs, errors.New("GATEWAY_ISSUER must not be empty"))
	}
	if c.Algorithm != jwtx.AlgorithmHS256 && c.Algorithm != jwtx.AlgorithmEdDSA {
		errs = append(errs, fmt.Errorf("AUTH_ALGORITHM %q is not one of HS256, EdDSA", c.Algorithm))
	}
	if c.AccessTTL <= 0 {
		errs = append(errs, errors.New("AUTH_ACCESS_TTL must be positive"))
	}
	if c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("AUTH_REFRESH_TTL must be positive"))
	}
	if c.ClockSkew < 0 {
		errs = append(errs, errors.New("AUTH_CLOCK_SKEW must not be negative"))
	}
	if u, err := url.Parse(c.UpstreamBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("UPSTREAM_BASE_URL %q is not an absolute URL", c.UpstreamBaseURL))
	}
	if c.UpstreamName == "" {
		errs = append(errs, errors.New("UPSTREAM_NAME must not be empty"))
	}
	if c.BreakerFailureThreshold == 0 {
		errs = append(errs, errors.New("BREAKER_FAILURE_THRESHOLD must be at least 1"))
	}
	if c.BreakerHalfOpenTrials == 0 {
		errs = append(errs, errors.New("BREAKER_HALF_OPEN_PROBES must be at least 1"))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("CACHE_TTL must not be negative"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
	}

	return errors.Join(errs...)
}

// TrustedProxyPrefixes parses TrustedProxies.
func (c Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	return httpx.ParseTrustedProxies(c.TrustedProxies)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil && intValue >= 0 {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
