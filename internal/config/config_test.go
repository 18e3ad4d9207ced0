package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	return writeConfigNamed(t, "config.yaml", contents)
}

func writeConfigNamed(t *testing.T, name, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
listen_address: "0.0.0.0:8080"
data_dir: "/tmp/wj"
domain_name:
  mirror.local: example.com
authorization:
  enabled: false
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ListenAddress != "0.0.0.0:8080" {
		t.Errorf("unexpected listen_address: %q", c.ListenAddress)
	}
	if c.DomainName["mirror.local"] != "example.com" {
		t.Errorf("unexpected domain_name entry")
	}
}

func TestLoadConflictingAliases(t *testing.T) {
	path := writeConfig(t, `
listen_address: "0.0.0.0:8080"
data_dir: "/tmp/wj"
domain_name:
  foo.local: a.example.com
  oo.local: b.example.com
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected conflicting alias error")
	}
}

func TestLoadAuthorizationEnabledRequiresAccount(t *testing.T) {
	path := writeConfig(t, `
listen_address: "0.0.0.0:8080"
data_dir: "/tmp/wj"
domain_name:
  mirror.local: example.com
authorization:
  enabled: true
  domain_list: ["mirror.local"]
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for enabled authorization with no accounts")
	}
}

func TestLoadTOMLConfig(t *testing.T) {
	path := writeConfigNamed(t, "config.toml", `
listen_address = "0.0.0.0:8080"
data_dir = "/tmp/wj"

[domain_name]
"mirror.local" = "example.com"

[authorization]
enabled = true
domain_list = ["mirror.local"]

[[authorization.account]]
username = "alice"
password = "hunter2"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ListenAddress != "0.0.0.0:8080" {
		t.Errorf("unexpected listen_address: %q", c.ListenAddress)
	}
	if c.DomainName["mirror.local"] != "example.com" {
		t.Errorf("unexpected domain_name entry")
	}
	if !c.Authorization.Enabled || len(c.Authorization.Account) != 1 {
		t.Fatalf("unexpected authorization: %+v", c.Authorization)
	}
	if c.Authorization.Account[0].Username != "alice" {
		t.Errorf("unexpected account username: %q", c.Authorization.Account[0].Username)
	}
}

func TestLoadTOMLExtensionCaseInsensitive(t *testing.T) {
	path := writeConfigNamed(t, "config.TOML", `
listen_address = "0.0.0.0:9090"
data_dir = "/tmp/wj"

[domain_name]
"mirror.local" = "example.com"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("unexpected listen_address: %q", c.ListenAddress)
	}
}

func TestConnectTimeoutDefault(t *testing.T) {
	c := &Config{}
	if c.ConnectTimeout().Seconds() != 30 {
		t.Errorf("expected default 30s connect timeout, got %v", c.ConnectTimeout())
	}
	if c.RequestTimeout() != 0 {
		t.Errorf("expected default 0 (no limit) request timeout, got %v", c.RequestTimeout())
	}
}
