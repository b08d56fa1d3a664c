// Package workspace derives stable identifiers and per-workspace state
// locations from an absolute workspace path.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
)

// IDLength is the number of hex characters in a workspace identifier.
const IDLength = 16

// Normalize converts a workspace path to its canonical form: absolute,
// forward slashes, no trailing separator.
func Normalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve workspace path: %w", err)
	}
	norm := filepath.ToSlash(abs)
	if len(norm) > 1 {
		norm = strings.TrimRight(norm, "/")
	}
	return norm, nil
}

// ID returns the workspace identifier for a path: the SHA-256 of the
// normalized path, truncated to IDLength hex characters. Identical paths
// always yield the same identifier.
func ID(path string) (string, error) {
	norm, err := Normalize(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])[:IDLength], nil
}

// LockKey derives the 32-bit advisory lock key for a workspace identifier.
// The key is a stable FNV-1a hash so every process computes the same value
// for the same workspace.
func LockKey(workspaceID string) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(workspaceID))
	return int32(h.Sum32())
}

// StateDir returns the per-workspace scratch directory used for the progress
// log and the indexing marker. The directory is created if missing.
func StateDir(workspaceID string) (string, error) {
	dir := filepath.Join(os.TempDir(), "semidex-"+workspaceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create state dir: %w", err)
	}
	return dir, nil
}

// ProgressLogPath returns the JSON-lines progress log path for a workspace.
func ProgressLogPath(workspaceID string) (string, error) {
	dir, err := StateDir(workspaceID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "progress.jsonl"), nil
}

// MarkerPath returns the on-disk indexing marker path for a workspace.
func MarkerPath(workspaceID string) (string, error) {
	dir, err := StateDir(workspaceID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "indexing.lock"), nil
}
