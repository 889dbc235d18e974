package artifact

import (
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest of an artifact's file tree.
type Hash [32]byte

// IsZero reports whether the hash is unset.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the canonical hex form used in logs and diffs.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 12 hex characters, enough for log lines.
func (h Hash) Short() string {
	return hex.EncodeToString(h[:6])
}

// HashTree computes the content hash of the file tree rooted at dir.
//
// The digest covers the sorted sequence of (slash-separated relative
// path, file bytes) pairs. Sorting makes the result independent of
// filesystem listing order, so two runs over byte-identical trees always
// agree. Each path and each file's contents are length-prefixed before
// hashing so that no (path, content) boundary ambiguity can make two
// different trees collide.
//
// Sentinel files from older toolkit versions are skipped: they describe
// the retrieval, not the artifact.
func HashTree(dir string) (Hash, error) {
	var hash Hash

	paths, err := ListFiles(dir)
	if err != nil {
		return hash, err
	}
	sort.Strings(paths)

	hasher := blake3.New()
	var lenBuf [8]byte

	writeLen := func(n int) {
		// 8-byte big-endian length prefix
		v := uint64(n)
		for i := 7; i >= 0; i-- {
			lenBuf[i] = byte(v)
			v >>= 8
		}
		hasher.Write(lenBuf[:])
	}

	for _, rel := range paths {
		writeLen(len(rel))
		hasher.Write([]byte(rel))

		f, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return hash, fmt.Errorf("hashing %s: %w", rel, err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return hash, fmt.Errorf("hashing %s: %w", rel, err)
		}
		writeLen(int(info.Size()))
		if _, err := io.Copy(hasher, f); err != nil {
			f.Close()
			return hash, fmt.Errorf("hashing %s: %w", rel, err)
		}
		f.Close()
	}

	copy(hash[:], hasher.Sum(nil))
	return hash, nil
}

// ListFiles returns the slash-separated relative paths of all regular
// files under dir, excluding sentinel files. Deployment payloads are
// built from the same listing the hash covers, so what gets compared is
// exactly what gets deployed.
func ListFiles(dir string) ([]string, error) {
	var paths []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if d.Name() == SentinelFileName {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	return paths, nil
}

// HasFiles reports whether dir contains at least one hashable file.
// Used by retrieval to distinguish a real extraction from an extraction
// that "succeeded" but produced nothing readable.
func HasFiles(dir string) (bool, error) {
	paths, err := ListFiles(dir)
	if err != nil {
		return false, err
	}
	return len(paths) > 0, nil
}
