// Package transfer turns a local segment file into a retryable streaming
// PUT body, and turns an object-store GET stream into a segment header
// peeked in place plus a raw byte copy to a destination file. Both halves
// exist to keep a whole segment's bytes out of memory: segments can be
// gigabytes, so every path here reads and writes in fixed-size chunks.
package transfer

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/iamNilotpal/segarchive/internal/segmentfile"
	"github.com/iamNilotpal/segarchive/pkg/filesys"
)

// ChunkSize is the size of each positional read issued while streaming a
// PUT body.
const ChunkSize = 4096

// FileStreamBody is a retryable, chunked io.Reader over a local file. It
// issues positional reads at a monotonically increasing offset rather than
// holding a single cursor into the OS file descriptor, so Seek(0,
// io.SeekStart) (or a fresh FileStreamBody built with NewFileStreamBody
// over the same file) starts
// again from offset 0 without disturbing any other reader of the file.
//
// This is the Go analogue of the segment producer's retryable HTTP body:
// an SDK transport retry (a connection reset, a retryable 5xx) needs to
// replay the entire body from the start, and the way to make that cheap
// is to never depend on mutable file-descriptor state, only on an
// explicit offset this struct owns.
type FileStreamBody struct {
	ctx    context.Context
	file   filesys.File
	offset int64
	size   int64
}

// NewFileStreamBody wraps file for streaming under ctx. size is reported
// as the reader's content length via Len, so callers building an HTTP
// request can set Content-Length up front.
func NewFileStreamBody(ctx context.Context, file filesys.File, size int64) *FileStreamBody {
	return &FileStreamBody{ctx: ctx, file: file, size: size}
}

// Len reports the total size of the underlying file, for callers that need
// a size hint (e.g. to set Content-Length) before the body is read.
func (b *FileStreamBody) Len() int64 { return b.size }

// Read implements io.Reader via positional reads at the body's internal
// offset; each call reads up to ChunkSize bytes and advances the offset by
// however many bytes were actually read. Read returns io.EOF once the
// offset reaches the file's reported size, matching the "first
// zero-length read ends the stream" termination rule. An I/O error is
// returned to the caller as is; the body keeps no error state, so a
// further Read after an error retries the read at the same offset.
func (b *FileStreamBody) Read(p []byte) (int, error) {
	if b.offset >= b.size {
		return 0, io.EOF
	}
	if len(p) > ChunkSize {
		p = p[:ChunkSize]
	}
	n, err := b.file.ReadAtContext(b.ctx, p, b.offset)
	b.offset += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// Seek implements io.Seeker so that Seek(0, io.SeekStart) resets the body
// to offset 0 for a retry, without reopening or re-duplicating the file
// handle.
func (b *FileStreamBody) Seek(offset int64, whence int) (int64, error) {
	var newOffset int64
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = b.offset + offset
	case io.SeekEnd:
		newOffset = b.size + offset
	default:
		return 0, os.ErrInvalid
	}
	if newOffset < 0 {
		return 0, os.ErrInvalid
	}
	b.offset = newOffset
	return b.offset, nil
}

// Close closes the underlying file handle.
func (b *FileStreamBody) Close() error { return b.file.Close() }

// PeekHeader wraps r in a buffered reader whose capacity is large enough
// to hold one segmentfile header, fills that buffer without consuming it,
// and decodes the header from the buffered bytes in place. The returned
// *bufio.Reader still has the full stream — header bytes included —
// available for a subsequent copy, mirroring the "fill buffer, peek
// without consuming" pattern used to report a segment's header to the
// caller while still streaming every byte, header included, to the
// destination file.
func PeekHeader(r io.Reader) (segmentfile.CompactedSegmentDataHeader, *bufio.Reader, error) {
	const bufCapacity = 8196
	br := bufio.NewReaderSize(r, bufCapacity)

	for {
		buf, err := br.Peek(segmentfile.HeaderSize)
		if err == nil {
			var h segmentfile.CompactedSegmentDataHeader
			if uerr := h.UnmarshalBinary(buf); uerr != nil {
				return segmentfile.CompactedSegmentDataHeader{}, br, uerr
			}
			return h, br, nil
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return segmentfile.CompactedSegmentDataHeader{}, br, io.ErrUnexpectedEOF
		}
		return segmentfile.CompactedSegmentDataHeader{}, br, err
	}
}

// CopyToFile copies every remaining byte of r — including the header
// bytes PeekHeader buffered but did not consume — to dest at sequential
// offsets starting from 0, in ChunkSize chunks. ctx is checked between
// chunks so a caller can cancel a long-running segment download.
func CopyToFile(ctx context.Context, dest filesys.File, r io.Reader) error {
	buf := make([]byte, ChunkSize)
	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf)
		if n > 0 {
			if werr := dest.WriteAllAtContext(ctx, buf[:n], offset); werr != nil {
				return werr
			}
			offset += int64(n)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
