package orchestrator

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// packBlueprint archives the directory holding blueprintFile as a tar.gz
// with a single top-level directory, the layout the orchestrator expects.
func packBlueprint(blueprintFile string) ([]byte, error) {
	info, err := os.Stat(blueprintFile)
	if err != nil {
		return nil, fmt.Errorf("blueprint file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("blueprint %s is a directory, expected the main blueprint file", blueprintFile)
	}

	root := filepath.Dir(blueprintFile)
	prefix := filepath.Base(root)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	err = filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(prefix, rel))
		if fi.IsDir() {
			hdr.Name += "/"
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tw, f)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pack blueprint: %w", err)
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("pack blueprint: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("pack blueprint: %w", err)
	}

	return buf.Bytes(), nil
}
