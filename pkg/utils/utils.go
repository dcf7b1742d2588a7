// Package utils holds small filesystem helpers shared by the cmd entry
// point, the same role this package plays in the teacher's tree.
package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDataDirExists creates datadir and a logs subdirectory beneath it if
// they do not already exist. The daemon opens its sqlite stores
// (econsnapshot, authority) in datadir at startup.
func EnsureDataDirExists(datadir string) error {
	if err := os.MkdirAll(datadir, 0700); err != nil {
		return fmt.Errorf("failed to create datadir %s: %v", datadir, err)
	}

	logsDir := filepath.Join(datadir, "logs")
	if err := os.MkdirAll(logsDir, 0700); err != nil {
		return fmt.Errorf("failed to create logs directory %s: %v", logsDir, err)
	}

	return nil
}
