package library

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tanq16/megumi/internal/config"
	"github.com/tanq16/megumi/utils"
)

const ledgerName = "info.txt"

// Placer moves classified files into the library layout
// <root>/<folder>/Season <N>, overwriting any existing destination.
type Placer struct {
	LibraryRoot string
	SaveInfo    bool
}

// Place moves localPath into the destination computed from rule and
// newName, returning the final path. An existing destination is replaced.
func (p *Placer) Place(localPath string, rule config.SeriesRule, newName string) (string, error) {
	logger := utils.GetLogger("library")
	destDir := filepath.Join(p.LibraryRoot, rule.Folder, fmt.Sprintf("Season %d", rule.Season))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("error creating destination %s: %w", destDir, err)
	}
	destPath := filepath.Join(destDir, newName)
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return "", fmt.Errorf("error replacing existing %s: %w", destPath, err)
		}
	}
	if err := moveFile(localPath, destPath); err != nil {
		return "", err
	}
	originalName := filepath.Base(localPath)
	logger.Info().Msgf("Moved %s to %s", originalName, destPath)
	if p.SaveInfo {
		if err := appendLedger(destDir, originalName, newName); err != nil {
			logger.Warn().Err(err).Msgf("Failed to record ledger entry for %s", originalName)
		}
	}
	return destPath, nil
}

// moveFile renames when possible and falls back to copy-then-delete across
// volumes. The destination is written under a temporary name first so a
// failure never leaves a truncated destination file.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	tmp := dest + ".moving"
	if err := copyFile(src, tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("error copying to %s: %w", dest, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// appendLedger records "original (renamed)" in the per-directory ledger.
func appendLedger(destDir, originalName, newName string) error {
	ledger, err := os.OpenFile(filepath.Join(destDir, ledgerName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer ledger.Close()
	_, err = fmt.Fprintf(ledger, "%s (%s)\n", originalName, newName)
	return err
}
