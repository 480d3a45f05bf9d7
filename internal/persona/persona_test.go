package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultPersona(t *testing.T) {
	p := Default()
	if p.Name != "Melanie" || p.Company != "AfroLuxe" || p.Voice != "Kore" {
		t.Fatalf("default = %#v", p)
	}
	if !strings.Contains(p.Greeting, "grow your salon") {
		t.Fatalf("greeting = %q", p.Greeting)
	}
	if !strings.Contains(p.SystemPrompt, "DISCOVERY") {
		t.Fatalf("system prompt missing script stages")
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	doc := "name: Ada\nvoice: Puck\ngreeting: \"Hi there.\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	p := Load(path)
	if p.Name != "Ada" || p.Voice != "Puck" || p.Greeting != "Hi there." {
		t.Fatalf("overlay = %#v", p)
	}
	// Unset fields keep their defaults.
	if p.Company != "AfroLuxe" {
		t.Fatalf("company = %q, want default", p.Company)
	}
	if !strings.Contains(p.SystemPrompt, "DISCOVERY") {
		t.Fatalf("system prompt lost its default")
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	p := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if p.Name != "Melanie" {
		t.Fatalf("fallback persona = %#v", p)
	}
}

func TestParseRejectsBadYAML(t *testing.T) {
	if _, err := Parse([]byte("name: [unterminated")); err == nil {
		t.Fatalf("expected parse error")
	}
	p, err := Parse([]byte("name: Ada"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if p.Name != "Ada" || p.Voice != "Kore" {
		t.Fatalf("parsed = %#v", p)
	}
}
