package importconfig

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, err := c.Get(DefaultProfileID)
	if err != nil {
		t.Fatalf("Get default: %v", err)
	}
	if p.TemplateID == "" {
		t.Fatalf("default profile must carry a template")
	}
}

func TestLoadFile(t *testing.T) {
	c, err := Load(filepath.Join("testdata", "profiles.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	list := c.List()
	if len(list) != 2 || list[0].ID != "b2s-pe" || list[1].ID != "s2b-ch" {
		t.Fatalf("unexpected profiles %+v", list)
	}
	p, err := c.Get("s2b-ch")
	if err != nil || p.TemplateID != "ch-s2b-v3" {
		t.Fatalf("unexpected profile %+v err=%v", p, err)
	}
	if _, err := c.Get("default"); !errors.Is(err, ErrUnknownProfile) {
		t.Fatalf("configured catalogs must not include the built-in default, got %v", err)
	}
}

func TestLoadRejectsDuplicates(t *testing.T) {
	if _, err := Load(filepath.Join("testdata", "duplicate.yaml")); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join("testdata", "missing.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}
