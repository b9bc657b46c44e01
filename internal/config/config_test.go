package config

import (
	"os"
	"path/filepath"
	"testing"

	"orderlink/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PayPal.Environment != EnvSandbox {
		t.Fatalf("paypal env: %s", cfg.PayPal.Environment)
	}
	if cfg.DefaultCarrier != "postnl" {
		t.Fatalf("default carrier: %s", cfg.DefaultCarrier)
	}
	cc := cfg.Carrier("postnl")
	if cc.Environment != EnvMock || cc.LabelFormat != model.LabelFormatPDF || cc.DefaultWeightG != 1000 {
		t.Fatalf("postnl defaults: %+v", cc)
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
paypal:
  environment: production
  merchantId: M-9
defaultCarrier: dhl
carriers:
  dhl:
    environment: sandbox
    apiKey: k1
    labelFormat: ZPL
    autoConfirm: true
    defaultPackageWeight: 500
origin:
  name: Webshop BV
  postalCode: 5678CD
  countryCode: NL
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PayPal.Environment != EnvProduction || cfg.PayPal.MerchantID != "M-9" {
		t.Fatalf("paypal: %+v", cfg.PayPal)
	}
	if cfg.DefaultCarrier != "dhl" {
		t.Fatalf("default carrier: %s", cfg.DefaultCarrier)
	}
	cc := cfg.Carrier("dhl")
	if cc.Environment != EnvSandbox || cc.APIKey != "k1" || cc.LabelFormat != model.LabelFormatZPL || !cc.AutoConfirm || cc.DefaultWeightG != 500 {
		t.Fatalf("dhl: %+v", cc)
	}
	if cfg.Origin.PostalCode != "5678CD" {
		t.Fatalf("origin: %+v", cfg.Origin)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
paypal:
  clientId: file-id
carriers:
  postnl:
    apiKey: file-key
`)
	t.Setenv("PAYPAL_CLIENT_ID", "env-id")
	t.Setenv("POSTNL_API_KEY", "env-key")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PayPal.ClientID != "env-id" {
		t.Fatalf("clientId: %s", cfg.PayPal.ClientID)
	}
	if cfg.Carrier("postnl").APIKey != "env-key" {
		t.Fatalf("apiKey: %s", cfg.Carrier("postnl").APIKey)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := writeConfig(t, `
carriers:
  postnl:
    environment: staging
`)
	if _, err := Load(path); err == nil {
		t.Fatal("unknown environment must be rejected")
	}

	path = writeConfig(t, `
carriers:
  postnl:
    labelFormat: PNG
`)
	if _, err := Load(path); err == nil {
		t.Fatal("unknown label format must be rejected")
	}
}

func TestCarrierFallback(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cc := cfg.Carrier("ups")
	if cc.Environment != EnvMock {
		t.Fatalf("unconfigured carrier must degrade to mock: %+v", cc)
	}
}
