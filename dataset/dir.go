package dataset

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/YuminosukeSato/insightml/pkg/errors"
)

// Info describes one dataset file.
type Info struct {
	Name    string
	Path    string
	Format  Format
	Size    int64
	ModTime time.Time
}

// List returns the dataset files in dir sorted by name. A missing directory or
// one without any dataset yields ErrNoDatasets.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithStack(errors.ErrNoDatasets)
		}
		return nil, errors.Wrapf(err, "read dataset directory %s", dir)
	}
	var infos []Info
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		format, ok := FormatFromPath(e.Name())
		if !ok {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Name:    e.Name(),
			Path:    filepath.Join(dir, e.Name()),
			Format:  format,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	if len(infos) == 0 {
		return nil, errors.WithStack(errors.ErrNoDatasets)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Resolve maps a user-supplied dataset name to a path inside dir. Directory
// components in name are discarded.
func Resolve(dir, name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == "" {
		return "", errors.NewValidationError("dataset", "empty dataset name", name)
	}
	if _, ok := FormatFromPath(base); !ok {
		return "", errors.NewValidationError("dataset", "unsupported dataset format", name)
	}
	return filepath.Join(dir, base), nil
}

// SaveUpload copies r into dir under name, replacing any existing file
// atomically. The content is parsed first so unreadable uploads never land.
func SaveUpload(dir, name string, r io.Reader) (string, *Frame, error) {
	path, err := Resolve(dir, name)
	if err != nil {
		return "", nil, err
	}
	format, _ := FormatFromPath(path)

	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, errors.Wrap(err, "read upload")
	}
	frame, err := Read(bytes.NewReader(data), format)
	if err != nil {
		return "", nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, errors.Wrapf(err, "create dataset directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", nil, errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", nil, errors.Wrap(err, "write upload")
	}
	if err := tmp.Close(); err != nil {
		return "", nil, errors.Wrap(err, "close upload")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", nil, errors.Wrap(err, "rename upload")
	}
	return path, frame, nil
}
