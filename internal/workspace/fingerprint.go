package workspace

import (
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"lukechampine.com/blake3"
)

// Fingerprint computes a BLAKE3 digest over a package directory's file
// names and contents. Two releases with the same fingerprint shipped
// the same bits, which lets the planner skip no-op releases.
//
// node_modules and dotted VCS directories are excluded; files are
// hashed in sorted relative-path order so the digest is stable across
// platforms.
func (p *Package) Fingerprint(root string) (string, error) {
	dir := filepath.Join(root, filepath.FromSlash(p.Dir))
	fsys := os.DirFS(dir)

	var paths []string
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case "node_modules", ".git", ".relkit":
				if path != "." {
					return fs.SkipDir
				}
			}
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walking %s: %w", p.Dir, err)
	}
	sort.Strings(paths)

	h := blake3.New(32, nil)
	for _, path := range paths {
		// Length-prefix the path so "a" + "bc" never collides
		// with "ab" + "c".
		fmt.Fprintf(h, "%d:%s\n", len(path), path)
		f, err := fsys.Open(path)
		if err != nil {
			return "", fmt.Errorf("opening %s: %w", path, err)
		}
		if _, err := io.Copy(h, f); err != nil {
			f.Close()
			return "", fmt.Errorf("hashing %s: %w", path, err)
		}
		f.Close()
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
