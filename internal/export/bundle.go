package export

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Bundle zips the exported files of res and its index into Dir/name and
// returns the path of the archive.
func (e *Exporter) Bundle(res Result, name string) (string, error) {
	files := make([]string, 0, len(res.Files)+1)
	for _, f := range res.Files {
		files = append(files, filepath.Join(e.Dir, f))
	}
	if res.IndexPath != "" {
		files = append(files, res.IndexPath)
	}

	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(e.Dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("create zip: %w", err)
	}
	defer os.Remove(tmp.Name())

	zw := zip.NewWriter(tmp)
	for _, f := range files {
		if err := addFile(zw, f); err != nil {
			zw.Close()
			tmp.Close()
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("finish zip: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close zip: %w", err)
	}

	path := filepath.Join(e.Dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename zip: %w", err)
	}
	return path, nil
}

func addFile(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: filepath.Base(path), Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", filepath.Base(path), err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("zip %s: %w", filepath.Base(path), err)
	}
	return nil
}
