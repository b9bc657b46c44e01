// Package config loads provider configuration once at startup. A YAML file
// (CONFIG_PATH) sets the shape; environment variables override credentials so
// secrets stay out of the file. The result is read-only for the process.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"orderlink/internal/model"
)

// Environments a provider can run in. Mock never touches the network.
const (
	EnvMock       = "mock"
	EnvSandbox    = "sandbox"
	EnvProduction = "production"
)

type PayPalConfig struct {
	Environment string `yaml:"environment"`
	ClientID    string `yaml:"clientId"`
	Secret      string `yaml:"secret"`
	MerchantID  string `yaml:"merchantId"`
	WebhookID   string `yaml:"webhookId"`
	ReturnURL   string `yaml:"returnUrl"`
	CancelURL   string `yaml:"cancelUrl"`
	// BaseURL overrides the environment-derived endpoint (tests).
	BaseURL string `yaml:"baseUrl"`
}

type CarrierConfig struct {
	Environment      string `yaml:"environment"`
	APIKey           string `yaml:"apiKey"`
	LabelFormat      string `yaml:"labelFormat"`
	AutoConfirm      bool   `yaml:"autoConfirm"`
	AutoSendTracking bool   `yaml:"autoSendTracking"`
	DefaultWeightG   int    `yaml:"defaultPackageWeight"`
	TrackingLanguage string `yaml:"trackingLanguage"`
	BaseURL          string `yaml:"baseUrl"`
}

type Config struct {
	PayPal         PayPalConfig             `yaml:"paypal"`
	Carriers       map[string]CarrierConfig `yaml:"carriers"`
	DefaultCarrier string                   `yaml:"defaultCarrier"`
	Origin         model.Address            `yaml:"origin"`
}

// Load reads path (optional) and applies env overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{Carriers: map[string]CarrierConfig{}}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PAYPAL_ENV"); v != "" {
		c.PayPal.Environment = v
	}
	if v := os.Getenv("PAYPAL_CLIENT_ID"); v != "" {
		c.PayPal.ClientID = v
	}
	if v := os.Getenv("PAYPAL_SECRET"); v != "" {
		c.PayPal.Secret = v
	}
	if v := os.Getenv("PAYPAL_MERCHANT_ID"); v != "" {
		c.PayPal.MerchantID = v
	}
	if v := os.Getenv("PAYPAL_WEBHOOK_ID"); v != "" {
		c.PayPal.WebhookID = v
	}
	for _, name := range []string{"postnl", "dhl"} {
		cc := c.Carriers[name]
		prefix := strings.ToUpper(name)
		if v := os.Getenv(prefix + "_ENV"); v != "" {
			cc.Environment = v
		}
		if v := os.Getenv(prefix + "_API_KEY"); v != "" {
			cc.APIKey = v
		}
		if v := os.Getenv(prefix + "_DEFAULT_WEIGHT_G"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				cc.DefaultWeightG = n
			}
		}
		c.Carriers[name] = cc
	}
}

func (c *Config) applyDefaults() {
	if c.PayPal.Environment == "" {
		c.PayPal.Environment = EnvSandbox
	}
	if c.DefaultCarrier == "" {
		c.DefaultCarrier = "postnl"
	}
	for name, cc := range c.Carriers {
		if cc.Environment == "" {
			cc.Environment = EnvMock
		}
		if cc.LabelFormat == "" {
			cc.LabelFormat = model.LabelFormatPDF
		}
		if cc.DefaultWeightG <= 0 {
			cc.DefaultWeightG = 1000
		}
		if cc.TrackingLanguage == "" {
			cc.TrackingLanguage = "en"
		}
		c.Carriers[name] = cc
	}
}

func (c *Config) validate() error {
	for name, cc := range c.Carriers {
		switch cc.Environment {
		case EnvMock, EnvSandbox, EnvProduction:
		default:
			return fmt.Errorf("carrier %s: unknown environment %q", name, cc.Environment)
		}
		if cc.LabelFormat != model.LabelFormatPDF && cc.LabelFormat != model.LabelFormatZPL {
			return fmt.Errorf("carrier %s: unknown label format %q", name, cc.LabelFormat)
		}
	}
	switch c.PayPal.Environment {
	case EnvMock, EnvSandbox, EnvProduction:
	default:
		return fmt.Errorf("paypal: unknown environment %q", c.PayPal.Environment)
	}
	return nil
}

// Carrier returns the configuration for name, falling back to a mock-mode
// default so an unconfigured carrier degrades instead of crashing.
func (c *Config) Carrier(name string) CarrierConfig {
	if cc, ok := c.Carriers[name]; ok {
		return cc
	}
	return CarrierConfig{Environment: EnvMock, LabelFormat: model.LabelFormatPDF, DefaultWeightG: 1000, TrackingLanguage: "en"}
}
