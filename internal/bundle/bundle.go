// Package bundle extracts legacy function bundles.
//
// Older platform runtimes store functions as a single gzipped tar
// archive instead of a file tree. The compatibility download mode
// produces such an archive; this package unpacks it so the rest of the
// pipeline only ever sees plain file trees.
package bundle

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ErrNoArchive is returned by ExtractDir when the directory holds no
// bundle archive to extract.
var ErrNoArchive = errors.New("no bundle archive present")

// archiveSuffixes are the bundle file names the legacy download mode is
// known to produce.
var archiveSuffixes = []string{".tar.gz", ".tgz", ".bundle"}

// ExtractDir finds the bundle archive in dir, unpacks it in place, and
// removes the archive file. Returns ErrNoArchive when dir contains no
// archive, which callers treat as "the download already produced a
// plain tree".
func ExtractDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isArchiveName(entry.Name()) {
			continue
		}
		archive := filepath.Join(dir, entry.Name())
		if err := Extract(archive, dir); err != nil {
			return err
		}
		if err := os.Remove(archive); err != nil {
			return fmt.Errorf("removing extracted archive: %w", err)
		}
		return nil
	}
	return ErrNoArchive
}

// Extract unpacks the gzipped tar archive at archivePath into destDir.
// Entries that would escape destDir are rejected.
func Extract(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening bundle: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("reading bundle %s: %w", filepath.Base(archivePath), err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading bundle entry: %w", err)
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, fs.FileMode(header.Mode)); err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
		default:
			// Symlinks and specials do not occur in function bundles;
			// skip rather than fail on hand-rolled archives.
		}
	}
}

func isArchiveName(name string) bool {
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// safeJoin joins name under dir, rejecting absolute paths and parent
// traversal.
func safeJoin(dir, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("bundle entry escapes destination: %s", name)
	}
	return filepath.Join(dir, cleaned), nil
}

func writeFile(target string, r io.Reader, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
