package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/stereotrack/internal/fsutil"
	"github.com/banshee-data/stereotrack/internal/vision/pipeline"
)

// ErrUnsafePath is returned when a session ID or file name would place a file
// outside the session directory.
var ErrUnsafePath = errors.New("export: path escapes output directory")

// Output locates a session's files.
type Output struct {
	FS  fsutil.FileSystem
	Dir string
}

func (o Output) fs() fsutil.FileSystem {
	if o.FS == nil {
		return fsutil.OSFileSystem{}
	}
	return o.FS
}

// SessionDir returns the directory holding a session's files.
func (o Output) SessionDir(sessionID string) string {
	return filepath.Join(o.Dir, sessionID)
}

// create opens <Dir>/<sessionID>/<name>, creating parent directories.
func (o Output) create(sessionID, name string) (io.WriteCloser, string, error) {
	if sessionID == "" || !filepath.IsLocal(sessionID) || !filepath.IsLocal(name) {
		return nil, "", fmt.Errorf("%w: session %q file %q", ErrUnsafePath, sessionID, name)
	}
	path := filepath.Join(o.SessionDir(sessionID), name)
	if err := o.fs().MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", fmt.Errorf("create directory for %s: %w", path, err)
	}
	w, err := o.fs().Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("create %s: %w", path, err)
	}
	return w, path, nil
}

// writeFile creates name and hands it to fill, closing it afterwards.
func (o Output) writeFile(sessionID, name string, fill func(io.Writer) error) (err error) {
	w, path, err := o.create(sessionID, name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if err := fill(w); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Multi fans a record out to several sinks. Every sink is flushed even when
// an earlier one fails; the failures are joined.
type Multi []pipeline.TrajectorySink

// Flush implements pipeline.TrajectorySink.
func (m Multi) Flush(ctx context.Context, rec *pipeline.Record) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Flush(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
