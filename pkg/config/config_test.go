package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	Extra string `yaml:"extra"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "graph")
	p := writeFile(t, "name: ${SAMPLE_NAME}\nport: 80\n")

	cfg := &sample{Extra: "kept"}
	if err := Load(p, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "graph" || cfg.Port != 80 || cfg.Extra != "kept" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &sample{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLoadValidation(t *testing.T) {
	p := writeFile(t, "port: 0\n")
	if err := Load(p, &sample{}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadParseError(t *testing.T) {
	p := writeFile(t, "port: [1\n")
	if err := Load(p, &sample{Port: 1}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadOptional(t *testing.T) {
	cfg := &sample{Port: 8080}
	found, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), cfg)
	if err != nil || found {
		t.Fatalf("found = %v, err = %v", found, err)
	}
	if cfg.Port != 8080 {
		t.Errorf("defaults changed: %+v", cfg)
	}

	if _, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &sample{}); err == nil {
		t.Error("invalid defaults should fail validation")
	}

	found, err = LoadOptional(writeFile(t, "port: 9\n"), cfg)
	if err != nil || !found || cfg.Port != 9 {
		t.Errorf("found = %v, err = %v, cfg = %+v", found, err, cfg)
	}
}
