package util

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDataDir_EnvOverride(t *testing.T) {
	t.Setenv("BETTER_WEBHOOK_HOME", "/tmp/bw-test")
	if got := DataDir(); got != "/tmp/bw-test" {
		t.Fatalf("DataDir = %q, want /tmp/bw-test", got)
	}
}

func TestDataDir_DefaultUnderHome(t *testing.T) {
	t.Setenv("BETTER_WEBHOOK_HOME", "")
	got := DataDir()
	if filepath.Base(got) != ".better-webhook" {
		t.Fatalf("DataDir = %q, want a .better-webhook directory", got)
	}
}

func TestExpandPath(t *testing.T) {
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Fatalf("ExpandPath(/abs/path) = %q", got)
	}
	if got := ExpandPath("~/captures"); strings.HasPrefix(got, "~") {
		t.Fatalf("ExpandPath(~/captures) = %q, tilde not expanded", got)
	}
}
