// Package archive implements the object-store-backed segment archive:
// the store/find/fetch/list/meta/restore operations described by
// pkg/segarchive.Backend. It owns the one piece of I/O-bound concurrency
// in the system (concurrent data+index fetch), the restore walk that
// replays frames backwards across segments, and the thin translation
// layer between this module's key/codec/transfer packages and the AWS
// SDK v2 S3 client.
package archive

import (
	"bytes"
	"context"
	stdErrors "errors"
	"io"
	"iter"
	"os"

	"github.com/RoaringBitmap/roaring"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iamNilotpal/segarchive/internal/indexcodec"
	"github.com/iamNilotpal/segarchive/internal/segkey"
	"github.com/iamNilotpal/segarchive/internal/segmentfile"
	"github.com/iamNilotpal/segarchive/internal/transfer"
	archerrors "github.com/iamNilotpal/segarchive/pkg/errors"
	"github.com/iamNilotpal/segarchive/pkg/filesys"
	"github.com/iamNilotpal/segarchive/pkg/options"
	"github.com/iamNilotpal/segarchive/pkg/segarchive"
)

// objectStore is the subset of *s3.Client this package depends on. Tests
// substitute a fake implementation instead of standing up a real
// S3-compatible server.
type objectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// metrics are the Prometheus counters the archive exposes for
// every operation. They are registered once per Archive instance against
// whatever prometheus.Registerer the caller supplies.
type metrics struct {
	opsTotal       *prometheus.CounterVec
	opErrorsTotal  *prometheus.CounterVec
	restoreFrames  prometheus.Counter
	fetchBytes     prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "segarchive_archive_operations_total",
			Help: "Number of archive operations by name.",
		}, []string{"op"}),
		opErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "segarchive_archive_operation_errors_total",
			Help: "Number of archive operation failures by name.",
		}, []string{"op"}),
		restoreFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "segarchive_archive_restore_frames_total",
			Help: "Number of frames replayed during restore walks.",
		}),
		fetchBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "segarchive_archive_fetch_bytes_total",
			Help: "Number of segment data bytes fetched from the object store.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.opsTotal, m.opErrorsTotal, m.restoreFrames, m.fetchBytes)
	}
	return m
}

func (m *metrics) observe(op string, err error) {
	m.opsTotal.WithLabelValues(op).Inc()
	if err != nil {
		m.opErrorsTotal.WithLabelValues(op).Inc()
	}
}

// Archive implements segarchive.Backend against a real or fake object
// store client.
type Archive struct {
	client  objectStore
	cfg     *options.Config
	log     *zap.SugaredLogger
	metrics *metrics
}

// NewArchive constructs an Archive, idempotently creating cfg.Bucket if it
// does not already exist: BucketAlreadyExists and BucketAlreadyOwnedByYou
// are both treated as success, matching the producer this was adapted
// from, since either means the bucket is ready to use.
func NewArchive(ctx context.Context, client objectStore, cfg *options.Config, log *zap.SugaredLogger, reg prometheus.Registerer) (*Archive, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, archerrors.NewConfigurationValidationError("Bucket", "bucket is required to construct an archive")
	}
	if cfg.ClusterID == "" {
		return nil, archerrors.NewConfigurationValidationError("ClusterID", "cluster id is required to construct an archive")
	}

	a := &Archive{client: client, cfg: cfg, log: log, metrics: newMetrics(reg)}

	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)})
	if err != nil {
		var alreadyExists *types.BucketAlreadyExists
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if stdErrors.As(err, &alreadyExists) || stdErrors.As(err, &alreadyOwned) {
			log.Infow("bucket already provisioned", "bucket", cfg.Bucket)
		} else {
			return nil, archerrors.NewUnhandledError(err, "creating archive bucket")
		}
	}

	return a, nil
}

// DefaultConfig returns the configuration the archive was constructed
// with.
func (a *Archive) DefaultConfig() *options.Config { return a.cfg }

func (a *Archive) folderKey(ns segarchive.Namespace) segkey.FolderKey {
	return segkey.FolderKey{ClusterID: segkey.ClusterID(a.cfg.ClusterID), Namespace: ns}
}

// Store PUTs the segment's data object before its index object, so that a
// reader who observes the index key always finds matching data already
// present. There is no rollback on partial failure: a data PUT that
// succeeds but whose index PUT fails leaves an orphaned data object,
// which is harmless (it simply will never be found by find_segment since
// find_segment only lists index keys).
func (a *Archive) Store(ctx context.Context, meta segarchive.SegmentMeta, segmentData filesys.File, segmentIndex []byte) error {
	var err error
	defer func() { a.metrics.observe("store", err) }()

	key := segkey.SegmentKey{
		Namespace:    meta.Namespace,
		StartFrameNo: meta.StartFrameNo,
		EndFrameNo:   meta.EndFrameNo,
		SegmentID:    meta.SegmentID,
	}
	folder := a.folderKey(meta.Namespace)

	size, err := segmentData.Len()
	if err != nil {
		err = archerrors.NewUnhandledError(err, "stat segment data file")
		return err
	}

	body := transfer.NewFileStreamBody(ctx, segmentData, size)
	dataKey := segkey.DataKey(folder, key)
	if _, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(dataKey),
		Body:   body,
	}); err != nil {
		err = archerrors.NewUnhandledError(err, "error sending s3 PUT request for segment data")
		return err
	}

	indexKey := segkey.IndexKey(folder, key)
	framed := indexcodec.Encode(segmentIndex)
	if _, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(indexKey),
		Body:   bytes.NewReader(framed),
	}); err != nil {
		err = archerrors.NewUnhandledError(err, "error sending s3 PUT request for segment index")
		return err
	}

	a.log.Infow("segment stored", "namespace", meta.Namespace, "key", key.String())
	return nil
}

// FindSegment returns the newest segment whose encoded key is strictly
// greater than the lookup key built from frameNo, without verifying that
// the segment actually includes frameNo — callers must do that
// themselves (FetchSegment does; Meta and Restore deliberately do not,
// since they query with frameNo = MaxUint64 where Includes would always
// be false).
func (a *Archive) FindSegment(ctx context.Context, ns segarchive.Namespace, frameNo uint64) (segarchive.SegmentKey, bool, error) {
	var err error
	defer func() { a.metrics.observe("find_segment", err) }()

	folder := a.folderKey(ns)
	lookupKey := segkey.LookupKey(folder, frameNo)

	out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:     aws.String(a.cfg.Bucket),
		Prefix:     aws.String(segkey.IndexPrefix(folder)),
		StartAfter: aws.String(lookupKey),
		MaxKeys:    aws.Int32(1),
	})
	if err != nil {
		err = archerrors.NewUnhandledError(err, "error sending s3 LIST request")
		return segarchive.SegmentKey{}, false, err
	}
	if len(out.Contents) == 0 {
		return segarchive.SegmentKey{}, false, nil
	}

	key, ok := segkey.ParseIndexObjectKey(folder, aws.ToString(out.Contents[0].Key))
	if !ok {
		err = archerrors.NewInvalidIndexError("listed index key does not match the expected key format")
		return segarchive.SegmentKey{}, false, err
	}
	return key, true, nil
}

// FetchSegment finds the segment covering frameNo and concurrently
// downloads its data (to destPath) and index (decoded in memory),
// returning the decoded index. If either fetch fails the whole operation
// fails; a partially-written destPath is left as-is, the caller's
// responsibility to clean up.
func (a *Archive) FetchSegment(ctx context.Context, ns segarchive.Namespace, frameNo uint64, destPath string) (segarchive.IndexMap, error) {
	var err error
	defer func() { a.metrics.observe("fetch_segment", err) }()

	key, ok, ferr := a.FindSegment(ctx, ns, frameNo)
	if ferr != nil {
		err = ferr
		return nil, err
	}
	if !ok || !key.Includes(frameNo) {
		err = archerrors.NewFrameNotFoundError(frameNo)
		return nil, err
	}

	dest, oerr := filesys.Open(destPath, fileOpenFlags, 0644)
	if oerr != nil {
		err = archerrors.NewUnhandledError(oerr, "opening fetch destination file")
		return nil, err
	}
	defer dest.Close()

	var index segarchive.IndexMap
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, ferr := a.FetchSegmentDataToFile(gctx, ns, key, dest)
		return ferr
	})
	g.Go(func() error {
		m, ferr := a.FetchSegmentIndex(gctx, ns, key)
		if ferr != nil {
			return ferr
		}
		index = m
		return nil
	})

	if err = g.Wait(); err != nil {
		return nil, err
	}
	return index, nil
}

// fileOpenFlags truncates and (re)creates the destination on each fetch,
// matching the "open for writing (truncate)" requirement.
const fileOpenFlags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC

// FetchSegmentIndex downloads and decodes a segment's index object.
func (a *Archive) FetchSegmentIndex(ctx context.Context, ns segarchive.Namespace, key segarchive.SegmentKey) (segarchive.IndexMap, error) {
	var err error
	defer func() { a.metrics.observe("fetch_segment_index", err) }()

	folder := a.folderKey(ns)
	indexKey := segkey.IndexKey(folder, key)

	out, gerr := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(indexKey),
	})
	if gerr != nil {
		err = archerrors.NewUnhandledError(gerr, "error sending s3 GET request for segment index")
		return nil, err
	}
	defer out.Body.Close()

	m, derr := indexcodec.Decode(out.Body, indexcodec.DefaultConstructor)
	if derr != nil {
		err = derr
		return nil, err
	}
	return m, nil
}

// FetchSegmentDataToFile downloads a segment's data object directly into
// dest, returning the segment's fixed header. The header is peeked from
// the buffered stream without being consumed, so the full object — header
// bytes included — reaches dest unmodified.
func (a *Archive) FetchSegmentDataToFile(ctx context.Context, ns segarchive.Namespace, key segarchive.SegmentKey, dest filesys.File) (segarchive.CompactedSegmentDataHeader, error) {
	var err error
	defer func() { a.metrics.observe("fetch_segment_data_to_file", err) }()

	folder := a.folderKey(ns)
	dataKey := segkey.DataKey(folder, key)

	out, gerr := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(dataKey),
	})
	if gerr != nil {
		err = archerrors.NewUnhandledError(gerr, "error sending s3 GET request for segment data")
		return segarchive.CompactedSegmentDataHeader{}, err
	}
	defer out.Body.Close()

	header, br, perr := transfer.PeekHeader(out.Body)
	if perr != nil {
		err = archerrors.NewUnhandledError(perr, "reading segment data header")
		return segarchive.CompactedSegmentDataHeader{}, err
	}

	if cerr := transfer.CopyToFile(ctx, dest, br); cerr != nil {
		err = archerrors.NewUnhandledError(cerr, "copying segment data to destination")
		return segarchive.CompactedSegmentDataHeader{}, err
	}

	a.metrics.fetchBytes.Add(float64(segmentfile.HeaderSize) + float64(header.FrameCount)*float64(segmentfile.FrameSize))
	return header, nil
}

// FetchSegmentData downloads a segment's data object into a freshly
// allocated temp file and returns it, along with its path so the caller
// can manage its lifetime. Grounded on the archive's own temp-file-backed
// fetch: producers that only need transient access to a segment's bytes
// (e.g. to re-derive its index) don't need to choose a destination path
// themselves.
func (a *Archive) FetchSegmentData(ctx context.Context, ns segarchive.Namespace, key segarchive.SegmentKey) (filesys.File, string, error) {
	var err error
	defer func() { a.metrics.observe("fetch_segment_data", err) }()

	tmp, terr := filesys.TempFile("", "segarchive-segment-*")
	if terr != nil {
		err = archerrors.NewUnhandledError(terr, "allocating temp file for segment data")
		return nil, "", err
	}
	path := tmp.Name()
	wrapped := filesys.WrapFile(tmp)

	if _, err = a.FetchSegmentDataToFile(ctx, ns, key, wrapped); err != nil {
		wrapped.Close()
		return nil, "", err
	}
	return wrapped, path, nil
}

// ListSegments streams every segment object under a namespace's index
// prefix, paginating through truncated LIST responses until every valid
// segment has been yielded exactly once.
//
// until is accepted but unused: the original interface leaves its
// intended filtering semantics (end_frame_no <= until? start_frame_no <=
// until?) unspecified, and this implementation does not guess — it is
// reserved for a future, precisely-defined filter.
func (a *Archive) ListSegments(ctx context.Context, ns segarchive.Namespace, until uint64) iter.Seq2[segarchive.SegmentInfo, error] {
	_ = until
	folder := a.folderKey(ns)

	return func(yield func(segarchive.SegmentInfo, error) bool) {
		var err error
		defer func() { a.metrics.observe("list_segments", err) }()

		var continuationToken *string
		for {
			out, lerr := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            aws.String(a.cfg.Bucket),
				Prefix:            aws.String(segkey.IndexPrefix(folder)),
				ContinuationToken: continuationToken,
			})
			if lerr != nil {
				err = archerrors.NewUnhandledError(lerr, "error sending s3 LIST request")
				yield(segarchive.SegmentInfo{}, err)
				return
			}

			for _, obj := range out.Contents {
				key, ok := segkey.ParseIndexObjectKey(folder, aws.ToString(obj.Key))
				if !ok {
					continue
				}

				info := segarchive.SegmentInfo{Key: key, Size: aws.ToInt64(obj.Size)}
				if obj.LastModified != nil {
					info.CreatedAt = obj.LastModified.UTC()
				}
				if !yield(info, nil) {
					return
				}
			}

			if !aws.ToBool(out.IsTruncated) {
				return
			}
			continuationToken = out.NextContinuationToken
		}
	}
}

// Meta derives DbMeta from the newest segment in the namespace; an empty
// namespace reports MaxFrameNo = 0.
func (a *Archive) Meta(ctx context.Context, ns segarchive.Namespace) (segarchive.DbMeta, error) {
	var err error
	defer func() { a.metrics.observe("meta", err) }()

	key, ok, ferr := a.FindSegment(ctx, ns, maxUint64)
	if ferr != nil {
		err = ferr
		return segarchive.DbMeta{}, err
	}
	if !ok {
		return segarchive.DbMeta{}, nil
	}
	return segarchive.DbMeta{MaxFrameNo: key.EndFrameNo}, nil
}

// Restore walks segments newest-to-oldest, replaying frames into dest at
// (PageNo-1)*PageSize, tracking seen pages in a roaring bitmap, until
// every logical page has been written. If the backward walk runs out of
// segments before the database is fully covered, it returns an
// ErrorCodeMissingSegment error rather than looping forever or panicking.
func (a *Archive) Restore(ctx context.Context, ns segarchive.Namespace, opts segarchive.RestoreOptions, dest filesys.File) error {
	var err error
	defer func() { a.metrics.observe("restore", err) }()

	if opts.Kind == segarchive.RestoreTimestamp {
		err = archerrors.NewUnimplementedError("restore to a timestamp")
		return err
	}

	key, ok, ferr := a.FindSegment(ctx, ns, maxUint64)
	if ferr != nil {
		err = ferr
		return err
	}
	if !ok {
		a.log.Infow("nothing to restore", "namespace", ns)
		return nil
	}

	seen := roaring.New()
	for {
		src, path, gerr := a.FetchSegmentData(ctx, ns, key)
		if gerr != nil {
			err = gerr
			return err
		}

		header, ferr := restoreOneSegment(ctx, src, dest, seen)
		src.Close()
		removeTempFile(path)
		if ferr != nil {
			err = ferr
			return err
		}

		a.metrics.restoreFrames.Add(float64(header.FrameCount))

		if uint64(seen.GetCardinality()) >= uint64(header.SizeAfter) {
			return nil
		}

		if header.StartFrameNo == 0 {
			err = archerrors.NewMissingSegmentError(0)
			return err
		}

		nextFrameNo := header.StartFrameNo - 1
		next, ok, nerr := a.FindSegment(ctx, ns, nextFrameNo)
		if nerr != nil {
			err = nerr
			return err
		}
		if !ok {
			err = archerrors.NewMissingSegmentError(nextFrameNo)
			return err
		}
		key = next
	}
}

// restoreOneSegment reads one segment's header and frames from src,
// writing each page's payload to dest at its page offset the first time
// that page number is seen, and returns the segment's header.
func restoreOneSegment(ctx context.Context, src filesys.File, dest filesys.File, seen *roaring.Bitmap) (segmentfile.CompactedSegmentDataHeader, error) {
	reader := fileSectionReader{ctx: ctx, file: src}

	header, err := segmentfile.ReadHeader(&reader)
	if err != nil {
		return segmentfile.CompactedSegmentDataHeader{}, archerrors.NewUnhandledError(err, "reading segment data header during restore")
	}

	for i := uint32(0); i < header.FrameCount; i++ {
		frame, ferr := segmentfile.ReadFrame(&reader)
		if ferr != nil {
			return header, archerrors.NewUnhandledError(ferr, "reading segment frame during restore")
		}

		if seen.Contains(frame.PageNo) {
			continue
		}
		seen.Add(frame.PageNo)

		offset := int64(frame.PageNo-1) * segmentfile.PageSize
		if werr := dest.WriteAllAtContext(ctx, frame.Data[:], offset); werr != nil {
			return header, archerrors.NewUnhandledError(werr, "writing restored page")
		}
	}

	return header, nil
}

// fileSectionReader adapts a filesys.File (positional I/O) into a
// sequential io.Reader for segmentfile.ReadHeader/ReadFrame, which only
// need forward streaming access.
type fileSectionReader struct {
	ctx    context.Context
	file   filesys.File
	offset int64
}

func (r *fileSectionReader) Read(p []byte) (int, error) {
	n, err := r.file.ReadAtContext(r.ctx, p, r.offset)
	r.offset += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

const maxUint64 = ^uint64(0)

func removeTempFile(path string) {
	if path != "" {
		_ = filesys.DeleteFile(path)
	}
}
