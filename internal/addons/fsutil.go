package addons

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// copyDir recursively copies src into dst, preserving file modes. Symlinks
// inside addon packages are not expected and are skipped.
func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// linkOrCopy exposes src at dst, replacing whatever is already there. It
// symlinks when possible and falls back to a recursive copy on filesystems
// that refuse symlinks.
func linkOrCopy(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", dst, err)
	}
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("failed to remove existing %s: %w", dst, err)
	}

	if err := os.Symlink(src, dst); err != nil {
		log.Printf("Symlink %s -> %s failed (%v), falling back to copy", dst, src, err)
		if copyErr := copyDir(src, dst); copyErr != nil {
			return fmt.Errorf("failed to copy %s to %s: %w", src, dst, copyErr)
		}
	}
	return nil
}
