package addons

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/yeka/zip"
)

// ArchivePassword is the fixed password for .fpa addon archives. It is a
// speed bump against casual tampering, not a security boundary.
const ArchivePassword = "featherpanel_development_kit_2025_addon_password"

// ExtractArchive extracts a password-protected .fpa archive into a fresh
// temp directory and returns its path. On any failure the temp directory is
// removed before returning: decrypted addon code must never be left on disk
// by a failed install.
func ExtractArchive(archivePath string) (string, error) {
	tempDir, err := os.MkdirTemp("", "fpa-extract-")
	if err != nil {
		return "", fmt.Errorf("failed to create extraction directory: %w", err)
	}

	if err := extractInto(archivePath, tempDir); err != nil {
		os.RemoveAll(tempDir)
		return "", err
	}
	return tempDir, nil
}

func extractInto(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer reader.Close()

	for _, f := range reader.File {
		if err := extractFile(f, destDir); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, destDir string) error {
	// Reject zip-slip entries before touching the filesystem.
	target := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return fmt.Errorf("archive entry %q escapes extraction directory", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0755)
	}

	if f.IsEncrypted() {
		f.SetPassword(ArchivePassword)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %q: %w", f.Name, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %q: %w", f.Name, err)
	}

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", f.Name, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to extract %q: %w", f.Name, err)
	}
	return nil
}
