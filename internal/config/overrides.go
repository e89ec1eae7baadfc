package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Overrides is the optional YAML file layered over the environment.
// Zero values leave the environment setting in place.
type Overrides struct {
	URL            string            `yaml:"url"`
	Model          string            `yaml:"model"`
	AlertTitle     string            `yaml:"alert_title"`
	Marker         string            `yaml:"marker"`
	UserAgent      string            `yaml:"user_agent"`
	Locale         string            `yaml:"locale"`
	Interval       string            `yaml:"interval"`
	Headers        map[string]string `yaml:"headers"`
	Viewport       *Viewport         `yaml:"viewport"`
	NtfyURL        string            `yaml:"ntfy_url"`
	DiscordWebhook string            `yaml:"discord_webhook"`
}

// Viewport is the emulated window size.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// LoadOverrides reads and validates an overrides YAML file.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("overrides config: %w", err)
	}
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("overrides config: %w", err)
	}
	if o.URL != "" {
		u, err := url.Parse(o.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("overrides config: url %q is not absolute", o.URL)
		}
	}
	if o.Interval != "" {
		d, err := time.ParseDuration(o.Interval)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("overrides config: interval %q is not a positive duration", o.Interval)
		}
	}
	if o.Viewport != nil && (o.Viewport.Width <= 0 || o.Viewport.Height <= 0) {
		return nil, fmt.Errorf("overrides config: viewport must be positive, got %dx%d", o.Viewport.Width, o.Viewport.Height)
	}
	for k := range o.Headers {
		if k == "" {
			return nil, fmt.Errorf("overrides config: headers contains an empty name")
		}
	}
	return &o, nil
}

// Apply copies the non-zero override values onto c.
func (o *Overrides) Apply(c *Config) {
	setString(&c.TargetURL, o.URL)
	setString(&c.Model, o.Model)
	setString(&c.AlertTitle, o.AlertTitle)
	setString(&c.Marker, o.Marker)
	setString(&c.UserAgent, o.UserAgent)
	setString(&c.Locale, o.Locale)
	setString(&c.NtfyURL, o.NtfyURL)
	setString(&c.DiscordWebhook, o.DiscordWebhook)
	if d, err := time.ParseDuration(o.Interval); err == nil && d > 0 {
		c.PollInterval = d
	}
	if o.Viewport != nil {
		c.ViewportWidth = o.Viewport.Width
		c.ViewportHeight = o.Viewport.Height
	}
	if len(o.Headers) > 0 {
		if c.ExtraHeaders == nil {
			c.ExtraHeaders = make(map[string]string, len(o.Headers))
		}
		for k, v := range o.Headers {
			c.ExtraHeaders[k] = v
		}
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
