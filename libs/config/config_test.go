package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPort(t *testing.T) {
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "8080"); err == nil {
		t.Fatalf("expected error for out of range port")
	}
	t.Setenv("TEST_PORT", "")
	p, err := Port("TEST_PORT", "8080")
	if err != nil || p != "8080" {
		t.Fatalf("expected fallback 8080, got %q err=%v", p, err)
	}
}

func TestIntAndDuration(t *testing.T) {
	t.Setenv("TEST_GRACE", "45")
	n, err := Int("TEST_GRACE", 60)
	if err != nil || n != 45 {
		t.Fatalf("expected 45, got %d err=%v", n, err)
	}
	t.Setenv("TEST_GRACE", "soon")
	if _, err := Int("TEST_GRACE", 60); err == nil {
		t.Fatalf("expected parse error")
	}

	t.Setenv("TEST_WINDOW", "15m")
	d, err := Duration("TEST_WINDOW", time.Minute)
	if err != nil || d != 15*time.Minute {
		t.Fatalf("expected 15m, got %s err=%v", d, err)
	}
	t.Setenv("TEST_WINDOW", "-1m")
	if _, err := Duration("TEST_WINDOW", time.Minute); err == nil {
		t.Fatalf("expected error for negative duration")
	}
}

func TestBoolAndList(t *testing.T) {
	t.Setenv("TEST_FLAG", "yes")
	if !Bool("TEST_FLAG", false) {
		t.Fatalf("expected true")
	}
	t.Setenv("TEST_FLAG", "garbage")
	if Bool("TEST_FLAG", false) {
		t.Fatalf("expected fallback false")
	}
	t.Setenv("TEST_LIST", " a, ,b ")
	got := List("TEST_LIST")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected list %v", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("DOTENV_ONLY_KEY=from-file\nDOTENV_SET_KEY=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("DOTENV_SET_KEY", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("DOTENV_ONLY_KEY") })

	loaded, err := LoadDotEnv(path)
	if err != nil || !loaded {
		t.Fatalf("expected env file to load, loaded=%v err=%v", loaded, err)
	}
	if got := os.Getenv("DOTENV_ONLY_KEY"); got != "from-file" {
		t.Fatalf("expected from-file, got %q", got)
	}
	if got := os.Getenv("DOTENV_SET_KEY"); got != "from-env" {
		t.Fatalf("existing env must win, got %q", got)
	}

	loaded, err = LoadDotEnv(filepath.Join(dir, "missing.env"))
	if err != nil || loaded {
		t.Fatalf("missing file should be skipped, loaded=%v err=%v", loaded, err)
	}
}
