package transfer

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/iamNilotpal/segarchive/internal/segmentfile"
	"github.com/iamNilotpal/segarchive/pkg/filesys"
)

func writeTempFile(t *testing.T, data []byte) filesys.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "stream-body-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	wrapped := filesys.WrapFile(f)
	t.Cleanup(func() { wrapped.Close() })
	return wrapped
}

func TestFileStreamBodyReadsWholeFile(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, ChunkSize*3+17)
	f := writeTempFile(t, data)

	body := NewFileStreamBody(context.Background(), f, int64(len(data)))
	got, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("read %d bytes, want %d bytes matching source", len(got), len(data))
	}
}

func TestFileStreamBodyRetryViaSeek(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, ChunkSize*2)
	f := writeTempFile(t, data)
	body := NewFileStreamBody(context.Background(), f, int64(len(data)))

	first := make([]byte, ChunkSize)
	if _, err := io.ReadFull(body, first); err != nil {
		t.Fatalf("first read: %v", err)
	}

	if _, err := body.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	replayed, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("ReadAll after seek: %v", err)
	}
	if !bytes.Equal(replayed, data) {
		t.Fatal("replay after seek did not reproduce the full file")
	}
}

func TestFileStreamBodyLen(t *testing.T) {
	data := []byte("hello")
	f := writeTempFile(t, data)
	body := NewFileStreamBody(context.Background(), f, int64(len(data)))
	if body.Len() != int64(len(data)) {
		t.Fatalf("Len() = %d, want %d", body.Len(), len(data))
	}
}

func buildSegment(t *testing.T, h segmentfile.CompactedSegmentDataHeader, frames []segmentfile.Frame) []byte {
	t.Helper()
	var buf bytes.Buffer
	hb, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("header MarshalBinary: %v", err)
	}
	buf.Write(hb)
	for _, f := range frames {
		fb, err := f.MarshalBinary()
		if err != nil {
			t.Fatalf("frame MarshalBinary: %v", err)
		}
		buf.Write(fb)
	}
	return buf.Bytes()
}

func TestPeekHeaderThenCopyToFilePreservesAllBytes(t *testing.T) {
	h := segmentfile.CompactedSegmentDataHeader{
		StartFrameNo: 0, EndFrameNo: 1, FrameCount: 2, SizeAfter: 2,
	}
	var data1, data2 [segmentfile.PageSize]byte
	data1[0] = 1
	data2[0] = 2
	frames := []segmentfile.Frame{{PageNo: 1, Data: data1}, {PageNo: 2, Data: data2}}
	raw := buildSegment(t, h, frames)

	gotHeader, br, err := PeekHeader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("PeekHeader: %v", err)
	}
	if gotHeader != h {
		t.Fatalf("header = %+v, want %+v", gotHeader, h)
	}

	destFile, err := os.CreateTemp(t.TempDir(), "dest-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer destFile.Close()
	dest := filesys.WrapFile(destFile)

	if err := CopyToFile(context.Background(), dest, br); err != nil {
		t.Fatalf("CopyToFile: %v", err)
	}

	if _, err := destFile.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	got, err := io.ReadAll(destFile)
	if err != nil {
		t.Fatalf("ReadAll(dest): %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("copied %d bytes, want %d bytes bytewise-equal to source (header must be preserved, not consumed)", len(got), len(raw))
	}
}

func TestPeekHeaderFailsOnTruncatedInput(t *testing.T) {
	_, _, err := PeekHeader(bytes.NewReader([]byte{1, 2, 3}))
	if err == nil {
		t.Fatal("expected error for truncated header")
	}
}

func TestCopyToFileRespectsCancellation(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, ChunkSize*4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	destFile, err := os.CreateTemp(t.TempDir(), "dest-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer destFile.Close()
	dest := filesys.WrapFile(destFile)

	err = CopyToFile(ctx, dest, bytes.NewReader(data))
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
}
