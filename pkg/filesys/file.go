package filesys

import (
	"context"
	"os"
	"path/filepath"

	archerrors "github.com/iamNilotpal/segarchive/pkg/errors"
)

// File is the positional-I/O capability the archive needs from a local
// file: context-aware positional reads and writes, plus its current
// length. It is deliberately narrower than *os.File so that archive code
// depends on an interface it can fake in tests rather than the concrete
// operating-system type.
type File interface {
	// ReadAtContext reads len(p) bytes starting at off, returning early if
	// ctx is canceled before the read completes.
	ReadAtContext(ctx context.Context, p []byte, off int64) (int, error)
	// WriteAllAtContext writes all of p starting at off, returning early if
	// ctx is canceled before the write completes.
	WriteAllAtContext(ctx context.Context, p []byte, off int64) error
	// Len returns the file's current size in bytes.
	Len() (int64, error)
	// Close releases the underlying file handle.
	Close() error
}

// osFile adapts *os.File to the File interface. Context cancellation is
// checked before issuing the underlying syscall; once a positional
// read/write is in flight it runs to completion, since the stdlib offers
// no way to interrupt an in-progress os.File syscall.
type osFile struct {
	f *os.File
}

// Open opens path with the given os.OpenFile flag and perm (perm applies
// only when flag includes os.O_CREATE and the file does not exist).
func Open(path string, flag int, perm os.FileMode) (File, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, archerrors.ClassifyFileOpenError(err, path, filepath.Base(path))
	}
	return &osFile{f: f}, nil
}

// WrapFile adapts an already-open *os.File to the File interface.
func WrapFile(f *os.File) File {
	return &osFile{f: f}
}

func (o *osFile) ReadAtContext(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return o.f.ReadAt(p, off)
}

func (o *osFile) WriteAllAtContext(ctx context.Context, p []byte, off int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for len(p) > 0 {
		n, err := o.f.WriteAt(p, off)
		if err != nil {
			return archerrors.ClassifySyncError(err, filepath.Base(o.f.Name()), o.f.Name(), int(off))
		}
		p = p[n:]
		off += int64(n)
	}
	return nil
}

func (o *osFile) Len() (int64, error) {
	stat, err := o.f.Stat()
	if err != nil {
		return 0, err
	}
	return stat.Size(), nil
}

func (o *osFile) Close() error { return o.f.Close() }

// Raw returns the underlying *os.File, for callers that need the concrete
// type to build an io.Reader/io.Seeker over it.
func (o *osFile) Raw() *os.File { return o.f }
