// Package state centralizes filesystem locations for the debugger's
// persisted state layout (§6): recordings/<id>/{header.json,frames.bin,
// checkpoints.json,branches.json} and config.toml, rooted under a
// per-user data directory. Adapted from the teacher's internal/state,
// which centralized its own runtime artifact paths the same way.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// StateDirEnv overrides the default runtime state root.
	StateDirEnv = "DEBUGGER_STATE_DIR"

	xdgStateHomeEnv = "XDG_STATE_HOME"
	appName         = "bevy-debugger-mcp"
)

// RootDir returns the runtime state root for the debugger.
// Resolution order:
//  1. DEBUGGER_STATE_DIR (if set)
//  2. XDG_STATE_HOME/bevy-debugger-mcp (if XDG_STATE_HOME is set)
//  3. os.UserConfigDir()/bevy-debugger-mcp (cross-platform fallback)
func RootDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv(StateDirEnv)); override != "" {
		return normalizePath(override)
	}

	if xdg := strings.TrimSpace(os.Getenv(xdgStateHomeEnv)); xdg != "" {
		root, err := normalizePath(xdg)
		if err != nil {
			return "", err
		}
		return filepath.Join(root, appName), nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user config directory: %w", err)
	}
	root, err := normalizePath(configDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, appName), nil
}

// LogsDir returns the logs directory under RootDir.
func LogsDir() (string, error) {
	return InRoot("logs")
}

// ConfigFile returns the config.toml path named in §6.
func ConfigFile() (string, error) {
	return InRoot("config.toml")
}

// RecordingsDir returns the recordings root directory.
func RecordingsDir() (string, error) {
	return InRoot("recordings")
}

// RecordingDir returns the directory for a single recording id.
func RecordingDir(recordingID string) (string, error) {
	return InRoot("recordings", recordingID)
}

// RecordingHeaderFile returns recordings/<id>/header.json.
func RecordingHeaderFile(recordingID string) (string, error) {
	return InRoot("recordings", recordingID, "header.json")
}

// RecordingFramesFile returns recordings/<id>/frames.bin.
func RecordingFramesFile(recordingID string) (string, error) {
	return InRoot("recordings", recordingID, "frames.bin")
}

// RecordingCheckpointsFile returns recordings/<id>/checkpoints.json.
func RecordingCheckpointsFile(recordingID string) (string, error) {
	return InRoot("recordings", recordingID, "checkpoints.json")
}

// RecordingBranchesFile returns recordings/<id>/branches.json.
func RecordingBranchesFile(recordingID string) (string, error) {
	return InRoot("recordings", recordingID, "branches.json")
}

// InRoot returns a path rooted under RootDir with additional path elements.
func InRoot(parts ...string) (string, error) {
	root, err := RootDir()
	if err != nil {
		return "", err
	}
	all := make([]string, 0, len(parts)+1)
	all = append(all, root)
	all = append(all, parts...)
	return filepath.Join(all...), nil
}

func normalizePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path %q: %w", path, err)
	}
	return filepath.Clean(absPath), nil
}
