package ml

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Encode writes the pipeline as an opaque gob stream.
func Encode(w io.Writer, p *Pipeline) error {
	if p == nil {
		return errors.New("model not trained")
	}
	if err := p.validate(); err != nil {
		return err
	}
	return gob.NewEncoder(w).Encode(p)
}

func Decode(r io.Reader) (*Pipeline, error) {
	var p Pipeline
	if err := gob.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Save writes the artifact next to path and renames it into place, so a
// failed save never leaves a partial file behind.
func Save(path string, p *Pipeline) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = Encode(tmp, p); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads an artifact written by Save. A missing file yields
// ErrModelUnavailable.
func Load(path string) (*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		}
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}
