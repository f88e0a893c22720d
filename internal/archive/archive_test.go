package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/iamNilotpal/segarchive/internal/segmentfile"
	archerrors "github.com/iamNilotpal/segarchive/pkg/errors"
	"github.com/iamNilotpal/segarchive/pkg/filesys"
	"github.com/iamNilotpal/segarchive/pkg/logger"
	"github.com/iamNilotpal/segarchive/pkg/options"
	"github.com/iamNilotpal/segarchive/pkg/segarchive"
)

// fakeObjectStore is an in-memory stand-in for *s3.Client: a key/value map
// plus a LIST implementation faithful enough to exercise find_segment's
// start_after trick and list_segments' continuation-token pagination,
// without standing up a real S3-compatible server.
type fakeObjectStore struct {
	mu            sync.Mutex
	objects       map[string][]byte
	bucketCreated bool
	pageSize      int
	// now is the fixed last-modified time reported for every listed
	// object, standing in for the object store's own clock.
	now time.Time
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		objects: map[string][]byte{},
		now:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeObjectStore) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectStore) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", aws.ToString(params.Key))
	}
	cp := append([]byte(nil), data...)
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(cp))}, nil
}

func (f *fakeObjectStore) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := aws.ToString(params.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	cursor := aws.ToString(params.StartAfter)
	if token := aws.ToString(params.ContinuationToken); token != "" {
		cursor = token
	}

	var filtered []string
	for _, k := range keys {
		if k > cursor {
			filtered = append(filtered, k)
		}
	}

	limit := f.pageSize
	if params.MaxKeys != nil && int(*params.MaxKeys) > 0 {
		if limit == 0 || int(*params.MaxKeys) < limit {
			limit = int(*params.MaxKeys)
		}
	}

	truncated := false
	if limit > 0 && len(filtered) > limit {
		truncated = true
		filtered = filtered[:limit]
	}

	var contents []types.Object
	for _, k := range filtered {
		kk := k
		size := int64(len(f.objects[kk]))
		lastModified := f.now
		contents = append(contents, types.Object{Key: &kk, Size: &size, LastModified: &lastModified})
	}

	out := &s3.ListObjectsV2Output{Contents: contents, IsTruncated: aws.Bool(truncated)}
	if truncated {
		out.NextContinuationToken = aws.String(filtered[len(filtered)-1])
	}
	return out, nil
}

func (f *fakeObjectStore) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bucketCreated {
		return nil, &types.BucketAlreadyOwnedByYou{}
	}
	f.bucketCreated = true
	return &s3.CreateBucketOutput{}, nil
}

func newTestArchive(t *testing.T) (*Archive, *fakeObjectStore) {
	t.Helper()
	store := newFakeObjectStore()
	cfg := &options.Config{Bucket: "testbucket", ClusterID: "123456789"}
	a, err := NewArchive(context.Background(), store, cfg, logger.Noop(), nil)
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}
	return a, store
}

func buildSegmentFile(t *testing.T, header segmentfile.CompactedSegmentDataHeader, frames []segmentfile.Frame) filesys.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "segment-data-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}

	hb, err := header.MarshalBinary()
	if err != nil {
		t.Fatalf("header MarshalBinary: %v", err)
	}
	if _, err := f.Write(hb); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for _, fr := range frames {
		fb, err := fr.MarshalBinary()
		if err != nil {
			t.Fatalf("frame MarshalBinary: %v", err)
		}
		if _, err := f.Write(fb); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}

	t.Cleanup(func() { f.Close() })
	return filesys.WrapFile(f)
}

func page(fill byte) [segmentfile.PageSize]byte {
	var d [segmentfile.PageSize]byte
	for i := range d {
		d[i] = fill
	}
	return d
}

const namespace segarchive.Namespace = "foobarbaz"

func TestNewArchiveCreatesBucketIdempotently(t *testing.T) {
	store := newFakeObjectStore()
	cfg := &options.Config{Bucket: "testbucket", ClusterID: "123456789"}

	if _, err := NewArchive(context.Background(), store, cfg, logger.Noop(), nil); err != nil {
		t.Fatalf("first NewArchive: %v", err)
	}
	if _, err := NewArchive(context.Background(), store, cfg, logger.Noop(), nil); err != nil {
		t.Fatalf("second NewArchive (bucket already owned) should succeed: %v", err)
	}
}

func TestNewArchiveRejectsMissingConfig(t *testing.T) {
	store := newFakeObjectStore()
	if _, err := NewArchive(context.Background(), store, &options.Config{}, logger.Noop(), nil); err == nil {
		t.Fatal("expected error for empty Bucket/ClusterID")
	}
}

func TestStoreFetchSegmentRoundTrip(t *testing.T) {
	a, _ := newTestArchive(t)
	ctx := context.Background()

	header := segmentfile.CompactedSegmentDataHeader{StartFrameNo: 0, EndFrameNo: 1, FrameCount: 2, SizeAfter: 2}
	frames := []segmentfile.Frame{{PageNo: 1, Data: page(1)}, {PageNo: 2, Data: page(2)}}
	src := buildSegmentFile(t, header, frames)

	indexPayload := []byte("page-index-payload")
	meta := segarchive.SegmentMeta{Namespace: namespace, SegmentID: uuid.New(), StartFrameNo: 0, EndFrameNo: 1}

	if err := a.Store(ctx, meta, src, indexPayload); err != nil {
		t.Fatalf("Store: %v", err)
	}

	destPath := t.TempDir() + "/restored-segment"
	idx, err := a.FetchSegment(ctx, namespace, 1, destPath)
	if err != nil {
		t.Fatalf("FetchSegment: %v", err)
	}
	if !bytes.Equal(idx.Bytes(), indexPayload) {
		t.Fatalf("index payload = %q, want %q", idx.Bytes(), indexPayload)
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("ReadFile(destPath): %v", err)
	}

	var want bytes.Buffer
	hb, _ := header.MarshalBinary()
	want.Write(hb)
	for _, fr := range frames {
		fb, _ := fr.MarshalBinary()
		want.Write(fb)
	}
	if !bytes.Equal(got, want.Bytes()) {
		t.Fatalf("fetched segment data does not match stored bytes: got %d bytes, want %d", len(got), want.Len())
	}
}

func TestFetchSegmentFrameNotFoundOnEmptyNamespace(t *testing.T) {
	a, _ := newTestArchive(t)
	_, err := a.FetchSegment(context.Background(), namespace, 42, t.TempDir()+"/dest")
	if err == nil {
		t.Fatal("expected FrameNotFound error")
	}
	ae, ok := archerrors.AsArchiveError(err)
	if !ok || ae.Code() != archerrors.ErrorCodeFrameNotFound {
		t.Fatalf("err = %v, want ErrorCodeFrameNotFound", err)
	}
}

func TestFindSegmentOverlapResolution(t *testing.T) {
	a, _ := newTestArchive(t)
	ctx := context.Background()

	store := func(start, end uint64) {
		header := segmentfile.CompactedSegmentDataHeader{StartFrameNo: start, EndFrameNo: end, FrameCount: 1, SizeAfter: 1}
		src := buildSegmentFile(t, header, []segmentfile.Frame{{PageNo: 1, Data: page(byte(start))}})
		meta := segarchive.SegmentMeta{Namespace: namespace, SegmentID: uuid.New(), StartFrameNo: start, EndFrameNo: end}
		if err := a.Store(ctx, meta, src, []byte("idx")); err != nil {
			t.Fatalf("Store(%d,%d): %v", start, end, err)
		}
	}

	store(0, 63)
	store(64, 128)

	key63, ok, err := a.FindSegment(ctx, namespace, 63)
	if err != nil || !ok {
		t.Fatalf("FindSegment(63): ok=%v err=%v", ok, err)
	}
	if key63.StartFrameNo != 0 || key63.EndFrameNo != 63 {
		t.Fatalf("FindSegment(63) = %+v, want [0,63]", key63)
	}

	key64, ok, err := a.FindSegment(ctx, namespace, 64)
	if err != nil || !ok {
		t.Fatalf("FindSegment(64): ok=%v err=%v", ok, err)
	}
	if key64.StartFrameNo != 64 || key64.EndFrameNo != 128 {
		t.Fatalf("FindSegment(64) = %+v, want [64,128]", key64)
	}

	// FindSegment does not check Includes: past the newest segment the
	// lookup still returns that segment, and the caller must reject it.
	key200, ok, err := a.FindSegment(ctx, namespace, 200)
	if err != nil || !ok {
		t.Fatalf("FindSegment(200): ok=%v err=%v", ok, err)
	}
	if key200.StartFrameNo != 64 || key200.EndFrameNo != 128 || key200.Includes(200) {
		t.Fatalf("FindSegment(200) = %+v, want the newest segment [64,128], which does not include 200", key200)
	}
}

func TestMetaEmptyNamespaceReportsZero(t *testing.T) {
	a, _ := newTestArchive(t)
	meta, err := a.Meta(context.Background(), namespace)
	if err != nil {
		t.Fatalf("Meta: %v", err)
	}
	if meta.MaxFrameNo != 0 {
		t.Fatalf("MaxFrameNo = %d, want 0", meta.MaxFrameNo)
	}
}

func TestMetaReportsNewestSegmentEndFrameNo(t *testing.T) {
	a, _ := newTestArchive(t)
	ctx := context.Background()

	for _, r := range [][2]uint64{{0, 63}, {64, 200}} {
		header := segmentfile.CompactedSegmentDataHeader{StartFrameNo: r[0], EndFrameNo: r[1], FrameCount: 1, SizeAfter: 1}
		src := buildSegmentFile(t, header, []segmentfile.Frame{{PageNo: 1, Data: page(1)}})
		m := segarchive.SegmentMeta{Namespace: namespace, SegmentID: uuid.New(), StartFrameNo: r[0], EndFrameNo: r[1]}
		if err := a.Store(ctx, m, src, []byte("idx")); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	meta, err := a.Meta(ctx, namespace)
	if err != nil {
		t.Fatalf("Meta: %v", err)
	}
	if meta.MaxFrameNo != 200 {
		t.Fatalf("MaxFrameNo = %d, want 200", meta.MaxFrameNo)
	}
}

func TestListSegmentsPaginatesAcrossContinuationTokens(t *testing.T) {
	a, store := newTestArchive(t)
	store.pageSize = 2
	ctx := context.Background()

	const total = 5
	for i := 0; i < total; i++ {
		start := uint64(i * 10)
		end := start + 5
		header := segmentfile.CompactedSegmentDataHeader{StartFrameNo: start, EndFrameNo: end, FrameCount: 1, SizeAfter: 1}
		src := buildSegmentFile(t, header, []segmentfile.Frame{{PageNo: 1, Data: page(1)}})
		m := segarchive.SegmentMeta{Namespace: namespace, SegmentID: uuid.New(), StartFrameNo: start, EndFrameNo: end}
		if err := a.Store(ctx, m, src, []byte("idx")); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	seen := map[string]bool{}
	count := 0
	for info, err := range a.ListSegments(ctx, namespace, 0) {
		if err != nil {
			t.Fatalf("ListSegments: %v", err)
		}
		k := info.Key.String()
		if seen[k] {
			t.Fatalf("segment %s yielded more than once", k)
		}
		seen[k] = true
		count++

		if info.Size <= 0 {
			t.Fatalf("segment %s Size = %d, want > 0", k, info.Size)
		}
		if !info.CreatedAt.Equal(store.now) {
			t.Fatalf("segment %s CreatedAt = %v, want %v", k, info.CreatedAt, store.now)
		}
		if info.CreatedAt.Location() != time.UTC {
			t.Fatalf("segment %s CreatedAt location = %v, want UTC", k, info.CreatedAt.Location())
		}
	}
	if count != total {
		t.Fatalf("yielded %d segments, want %d", count, total)
	}
}

func TestRestoreAcrossMultipleSegments(t *testing.T) {
	a, _ := newTestArchive(t)
	ctx := context.Background()

	older := segmentfile.CompactedSegmentDataHeader{StartFrameNo: 0, EndFrameNo: 0, FrameCount: 1, SizeAfter: 2}
	olderFrames := []segmentfile.Frame{{PageNo: 1, Data: page(0xAA)}}
	srcOlder := buildSegmentFile(t, older, olderFrames)
	if err := a.Store(ctx, segarchive.SegmentMeta{
		Namespace: namespace, SegmentID: uuid.New(), StartFrameNo: 0, EndFrameNo: 0,
	}, srcOlder, []byte("idx-older")); err != nil {
		t.Fatalf("Store older: %v", err)
	}

	newer := segmentfile.CompactedSegmentDataHeader{StartFrameNo: 1, EndFrameNo: 1, FrameCount: 1, SizeAfter: 2}
	newerFrames := []segmentfile.Frame{{PageNo: 2, Data: page(0xBB)}}
	srcNewer := buildSegmentFile(t, newer, newerFrames)
	if err := a.Store(ctx, segarchive.SegmentMeta{
		Namespace: namespace, SegmentID: uuid.New(), StartFrameNo: 1, EndFrameNo: 1,
	}, srcNewer, []byte("idx-newer")); err != nil {
		t.Fatalf("Store newer: %v", err)
	}

	destPath := t.TempDir() + "/restored.db"
	dest, err := filesys.Open(destPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		t.Fatalf("Open dest: %v", err)
	}
	defer dest.Close()

	if err := a.Restore(ctx, namespace, segarchive.RestoreOptions{Kind: segarchive.RestoreLatest}, dest); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	raw, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(raw) != 2*segmentfile.PageSize {
		t.Fatalf("restored file size = %d, want %d", len(raw), 2*segmentfile.PageSize)
	}
	if raw[0] != 0xAA {
		t.Fatalf("page 1 byte = %#x, want 0xAA", raw[0])
	}
	if raw[segmentfile.PageSize] != 0xBB {
		t.Fatalf("page 2 byte = %#x, want 0xBB", raw[segmentfile.PageSize])
	}
}

func TestRestoreSurfacesMissingSegmentGap(t *testing.T) {
	a, _ := newTestArchive(t)
	ctx := context.Background()

	// SizeAfter claims 2 pages but this is the only segment and it starts
	// at frame 1, so the walk must look for frame 0 and find nothing.
	header := segmentfile.CompactedSegmentDataHeader{StartFrameNo: 1, EndFrameNo: 1, FrameCount: 1, SizeAfter: 2}
	src := buildSegmentFile(t, header, []segmentfile.Frame{{PageNo: 2, Data: page(0xCC)}})
	if err := a.Store(ctx, segarchive.SegmentMeta{
		Namespace: namespace, SegmentID: uuid.New(), StartFrameNo: 1, EndFrameNo: 1,
	}, src, []byte("idx")); err != nil {
		t.Fatalf("Store: %v", err)
	}

	destPath := t.TempDir() + "/restored.db"
	dest, err := filesys.Open(destPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		t.Fatalf("Open dest: %v", err)
	}
	defer dest.Close()

	err = a.Restore(ctx, namespace, segarchive.RestoreOptions{Kind: segarchive.RestoreLatest}, dest)
	if err == nil {
		t.Fatal("expected MissingSegment error")
	}
	ae, ok := archerrors.AsArchiveError(err)
	if !ok || ae.Code() != archerrors.ErrorCodeMissingSegment {
		t.Fatalf("err = %v, want ErrorCodeMissingSegment", err)
	}
}

func TestRestoreEmptyNamespaceIsNoop(t *testing.T) {
	a, _ := newTestArchive(t)
	destPath := t.TempDir() + "/restored.db"
	dest, err := filesys.Open(destPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		t.Fatalf("Open dest: %v", err)
	}
	defer dest.Close()

	if err := a.Restore(context.Background(), namespace, segarchive.RestoreOptions{Kind: segarchive.RestoreLatest}, dest); err != nil {
		t.Fatalf("Restore on empty namespace should be a no-op: %v", err)
	}
}

func TestRestoreTimestampIsUnimplemented(t *testing.T) {
	a, _ := newTestArchive(t)
	destPath := t.TempDir() + "/restored.db"
	dest, err := filesys.Open(destPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		t.Fatalf("Open dest: %v", err)
	}
	defer dest.Close()

	err = a.Restore(context.Background(), namespace, segarchive.RestoreOptions{Kind: segarchive.RestoreTimestamp}, dest)
	if err == nil {
		t.Fatal("expected Unimplemented error")
	}
	ae, ok := archerrors.AsArchiveError(err)
	if !ok || ae.Code() != archerrors.ErrorCodeUnimplemented {
		t.Fatalf("err = %v, want ErrorCodeUnimplemented", err)
	}
}
