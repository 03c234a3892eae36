// Package util provides shared filesystem helpers for the capture server.
package util

import (
	"os"
	"path/filepath"
	"strings"
)

// homeEnv overrides the default data directory, mainly for tests and
// containerized deployments.
const homeEnv = "BETTER_WEBHOOK_HOME"

// DataDir resolves the base directory for captures, templates, and logs:
// $BETTER_WEBHOOK_HOME when set, otherwise ~/.better-webhook. Falls back to
// the working directory when the home directory cannot be determined.
func DataDir() string {
	if dir := os.Getenv(homeEnv); dir != "" {
		return ExpandPath(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".better-webhook"
	}
	return filepath.Join(home, ".better-webhook")
}

// ExpandPath resolves a leading "~" to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil && home != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
