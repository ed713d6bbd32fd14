package transcode

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// copyFile copies src to dst, replacing dst, and carries over the permission bits.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src) //#nosec G304 -- paths come from discovery under the watched root
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer sourceFile.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}

	destFile, err := os.Create(dst) //#nosec G304 -- destination is derived from configured directories
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		_ = destFile.Close()
		return fmt.Errorf("copy contents: %w", err)
	}
	if err := destFile.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}

	if info, err := sourceFile.Stat(); err == nil {
		_ = os.Chmod(dst, info.Mode().Perm())
	}
	return nil
}
