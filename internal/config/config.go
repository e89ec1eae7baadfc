package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults shared by the CLI help text and Load.
const (
	DefaultTargetURL = "https://nof1.ai/models/deepseek-chat-v3.1"
	DefaultModel     = "DEEPSEEK CHAT V3.1"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
)

// DefaultHeaders are sent with every page request so no proxy or CDN
// answers with a stale copy.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Cache-Control": "no-cache, no-store, must-revalidate",
		"Pragma":        "no-cache",
		"Expires":       "0",
	}
}

// Alerts selects the alert backends requested on the command line.
type Alerts struct {
	Visual bool
	Notify bool
	Sound  bool
	Popup  bool
	Push   bool
}

// Any reports whether a desktop or push backend was requested. Visual is
// a console rendering and does not count.
func (a Alerts) Any() bool {
	return a.Notify || a.Sound || a.Popup || a.Push
}

// Config holds all configuration for the positions watcher.
type Config struct {
	// CDP connection and browser launch
	CDPAddress  string
	CDPPort     int
	Launch      bool
	Headless    bool
	ProfileDir  string
	BrowserLogs string

	// Page
	TargetURL      string
	Model          string
	AlertTitle     string
	Marker         string
	UserAgent      string
	Locale         string
	ViewportWidth  int
	ViewportHeight int
	ExtraHeaders   map[string]string

	// Timing
	PollInterval time.Duration
	LoadTimeout  time.Duration
	SettleDelay  time.Duration
	RetryBackoff time.Duration
	EvalTimeout  time.Duration

	// Outputs
	PositionsLog      string
	PositionsLogMaxMB int
	SnapshotDir       string
	ReportHTML        string
	ReportCSV         string
	DebugScreenshot   string

	// Application log
	LogLevel string
	LogFile  string

	// Status API
	APIAddr         string
	APICandidates   []string
	APIAutoFallback bool

	// Push targets
	NtfyURL        string
	DiscordWebhook string

	Alerts Alerts

	// ConfigFile is the optional YAML overrides file.
	ConfigFile string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:  getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:     getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		Launch:      getEnvBoolOrDefault("WATCH_LAUNCH_BROWSER", true),
		Headless:    getEnvBoolOrDefault("WATCH_HEADLESS", false),
		ProfileDir:  getEnvOrDefault("WATCH_PROFILE_DIR", "./browser_profile"),
		BrowserLogs: getEnvOrDefault("WATCH_BROWSER_LOG_DIR", "./logs/browser"),

		TargetURL:      getEnvOrDefault("WATCH_URL", DefaultTargetURL),
		Model:          getEnvOrDefault("WATCH_MODEL", DefaultModel),
		AlertTitle:     getEnvOrDefault("WATCH_ALERT_TITLE", "DeepSeek Positions Updated"),
		Marker:         getEnvOrDefault("WATCH_MARKER", "ACTIVE POSITIONS"),
		UserAgent:      getEnvOrDefault("WATCH_USER_AGENT", DefaultUserAgent),
		Locale:         getEnvOrDefault("WATCH_LOCALE", "en-US"),
		ViewportWidth:  getEnvIntOrDefault("WATCH_VIEWPORT_WIDTH", 1600),
		ViewportHeight: getEnvIntOrDefault("WATCH_VIEWPORT_HEIGHT", 1200),
		ExtraHeaders:   DefaultHeaders(),

		PollInterval: getEnvDurationOrDefault("WATCH_INTERVAL", 10*time.Second),
		LoadTimeout:  getEnvDurationOrDefault("WATCH_LOAD_TIMEOUT", 60*time.Second),
		SettleDelay:  getEnvDurationOrDefault("WATCH_SETTLE_DELAY", 4*time.Second),
		RetryBackoff: getEnvDurationOrDefault("WATCH_RETRY_BACKOFF", 30*time.Second),
		EvalTimeout:  getEnvDurationOrDefault("WATCH_EVAL_TIMEOUT", 15*time.Second),

		PositionsLog:      getEnvOrDefault("WATCH_POSITIONS_LOG", "positions-log.txt"),
		PositionsLogMaxMB: getEnvIntOrDefault("WATCH_POSITIONS_LOG_MAX_MB", 100),
		SnapshotDir:       getEnvOrDefault("WATCH_SNAPSHOT_DIR", "positions_snapshots"),
		ReportHTML:        getEnvOrDefault("WATCH_REPORT_HTML", "positions_latest.html"),
		ReportCSV:         getEnvOrDefault("WATCH_REPORT_CSV", "positions_latest.csv"),
		DebugScreenshot:   getEnvOrDefault("WATCH_DEBUG_SCREENSHOT", "debug_positions_full.png"),

		LogLevel: strings.ToLower(getEnvOrDefault("WATCH_LOG_LEVEL", "info")),
		LogFile:  getEnvOrDefault("WATCH_LOG_FILE", "logs/positions_watch.log"),

		APIAddr:         getEnvOrDefault("WATCH_API_ADDR", ""),
		APICandidates:   splitList(getEnvOrDefault("WATCH_API_CANDIDATES", "127.0.0.1:8189,127.0.0.1:8190,127.0.0.1:8191")),
		APIAutoFallback: getEnvBoolOrDefault("WATCH_API_AUTO_FALLBACK", true),

		NtfyURL:        getEnvOrDefault("WATCH_NTFY_URL", ""),
		DiscordWebhook: getEnvOrDefault("WATCH_DISCORD_WEBHOOK", ""),

		ConfigFile: getEnvOrDefault("WATCH_CONFIG_FILE", ""),
	}

	if cfg.EvalTimeout < time.Second {
		cfg.EvalTimeout = time.Second
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside the loop.
func (c *Config) Validate() error {
	if c.TargetURL == "" {
		return fmt.Errorf("config: url must not be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: interval must be positive, got %s", c.PollInterval)
	}
	if c.RetryBackoff <= 0 {
		return fmt.Errorf("config: retry backoff must be positive, got %s", c.RetryBackoff)
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return fmt.Errorf("config: viewport must be positive, got %dx%d", c.ViewportWidth, c.ViewportHeight)
	}
	if c.Alerts.Push && c.NtfyURL == "" && c.DiscordWebhook == "" {
		return fmt.Errorf("config: push alerts need WATCH_NTFY_URL or WATCH_DISCORD_WEBHOOK")
	}
	return nil
}

// GetCDPURL returns the full CDP HTTP endpoint used by chromedp remote allocator.
func (c *Config) GetCDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDurationOrDefault accepts Go durations ("10s") or bare seconds.
func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
