package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// sentinelName marks that first-run bootstrap (seeding the masterplan and
// initial tasks) has already happened, so a restart never re-seeds.
const sentinelName = ".bootstrapped"

// IsBootstrapped reports whether the first-run sentinel exists in dataDir.
func IsBootstrapped(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, sentinelName))
	return err == nil
}

// MarkBootstrapped writes the first-run sentinel.
func MarkBootstrapped(dataDir string) error {
	path := filepath.Join(dataDir, sentinelName)
	if err := os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write bootstrap sentinel: %w", err)
	}
	return nil
}
