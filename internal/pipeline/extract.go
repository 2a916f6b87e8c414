package pipeline

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// utf8BOM prefixes the comments artifact for compatibility with the
// grading tool used downstream on Windows.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// extractZip unpacks archive bytes into targetDir, creating it first.
// Entries escaping the target directory are rejected.
func extractZip(data []byte, targetDir string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return err
	}
	for _, f := range zr.File {
		dest := filepath.Join(targetDir, filepath.FromSlash(f.Name))
		rel, err := filepath.Rel(targetDir, dest)
		if err != nil || strings.HasPrefix(rel, "..") {
			return fmt.Errorf("archive entry %q escapes extraction directory", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open entry %q: %w", f.Name, err)
		}
		out, err := os.Create(dest)
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		closeOutErr := out.Close()
		closeRcErr := rc.Close()
		if copyErr != nil {
			return fmt.Errorf("extract %q: %w", f.Name, copyErr)
		}
		if closeOutErr != nil {
			return closeOutErr
		}
		if closeRcErr != nil {
			return closeRcErr
		}
	}
	return nil
}

// removeJunk recursively deletes denylisted names anywhere under dir.
// Symlinked subdirectories are followed; a denylisted plain file is
// removed directly instead of recursively.
func removeJunk(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		if junkNames[entry.Name()] {
			info, err := os.Stat(full)
			if err != nil {
				// Dangling symlink or the like: plain removal.
				if rmErr := os.Remove(full); rmErr != nil {
					return rmErr
				}
				continue
			}
			if info.IsDir() {
				if err := os.RemoveAll(full); err != nil {
					return err
				}
			} else if err := os.Remove(full); err != nil {
				return err
			}
			continue
		}
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		if info.IsDir() {
			if err := removeJunk(full); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeComments writes the comments artifact with a UTF-8 BOM. When a
// student handed in a file occupying the name, probe
// submission_comments(1).txt, (2), ... until a free name is found.
func writeComments(base, comments string) error {
	path := filepath.Join(base, commentsBasename+".txt")
	for n := 1; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		path = filepath.Join(base, fmt.Sprintf("%s(%d).txt", commentsBasename, n))
	}
	data := append(append([]byte{}, utf8BOM...), comments...)
	return os.WriteFile(path, data, 0o644)
}
