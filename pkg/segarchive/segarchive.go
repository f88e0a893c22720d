// Package segarchive is the public entry point for the object-store-backed
// segment archive: it wires together the object-store client, the
// archive's functional options, and the structured logger into a single
// Instance, and re-exports the domain types a caller needs to drive a
// store/fetch/restore workflow without reaching into internal packages.
package segarchive

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/iamNilotpal/segarchive/internal/indexcodec"
	"github.com/iamNilotpal/segarchive/internal/segkey"
	"github.com/iamNilotpal/segarchive/internal/segmentfile"
	"github.com/iamNilotpal/segarchive/pkg/filesys"
	"github.com/iamNilotpal/segarchive/pkg/options"
	"go.uber.org/zap"
)

// Namespace identifies one logical database within a cluster.
type Namespace = segkey.Namespace

// ClusterID scopes a group of namespaces under a shared bucket.
type ClusterID = segkey.ClusterID

// SegmentKey identifies one stored segment by frame range and ID.
type SegmentKey = segkey.SegmentKey

// IndexMap is the decoded form of a segment's index payload.
type IndexMap = indexcodec.Map

// CompactedSegmentDataHeader is the fixed header at the start of every
// segment data object.
type CompactedSegmentDataHeader = segmentfile.CompactedSegmentDataHeader

// SegmentMeta is the producer-supplied record consumed once at Store: the
// namespace, segment identity, frame range, and creation time of a
// segment about to be archived.
type SegmentMeta struct {
	Namespace    Namespace
	SegmentID    uuid.UUID
	StartFrameNo uint64
	EndFrameNo   uint64
	CreatedAt    time.Time
}

// DbMeta is the archive-derived metadata for a namespace.
type DbMeta struct {
	// MaxFrameNo is the end_frame_no of the segment with the largest
	// end_frame_no in the namespace, or zero if the namespace is empty.
	MaxFrameNo uint64
}

// SegmentInfo describes one segment surfaced by ListSegments.
type SegmentInfo struct {
	Key SegmentKey
	// Size is the index object's size in bytes, or 0 if the object store
	// did not report one.
	Size int64
	// CreatedAt is the index object's last-modified time, in UTC.
	CreatedAt time.Time
}

// RestoreKind distinguishes the two RestoreOptions variants.
type RestoreKind int

const (
	// RestoreLatest restores the database to the newest archived frame.
	RestoreLatest RestoreKind = iota
	// RestoreTimestamp restores the database to the state as of a given
	// time. Declared for interface completeness; not implemented (see
	// Archive.Restore), matching the archive this was adapted from.
	RestoreTimestamp
)

// RestoreOptions selects which point in the log to restore to.
type RestoreOptions struct {
	Kind      RestoreKind
	Timestamp time.Time
}

// Backend is the full set of operations the archive exposes. It is
// implemented by internal/archive.Archive; Instance wraps one Backend
// value with the configuration used to construct it.
type Backend interface {
	Store(ctx context.Context, meta SegmentMeta, segmentData filesys.File, segmentIndex []byte) error
	FindSegment(ctx context.Context, ns Namespace, frameNo uint64) (SegmentKey, bool, error)
	FetchSegment(ctx context.Context, ns Namespace, frameNo uint64, destPath string) (IndexMap, error)
	FetchSegmentIndex(ctx context.Context, ns Namespace, key SegmentKey) (IndexMap, error)
	FetchSegmentDataToFile(ctx context.Context, ns Namespace, key SegmentKey, dest filesys.File) (CompactedSegmentDataHeader, error)
	FetchSegmentData(ctx context.Context, ns Namespace, key SegmentKey) (filesys.File, string, error)
	ListSegments(ctx context.Context, ns Namespace, until uint64) iter.Seq2[SegmentInfo, error]
	Meta(ctx context.Context, ns Namespace) (DbMeta, error)
	Restore(ctx context.Context, ns Namespace, opts RestoreOptions, dest filesys.File) error
	DefaultConfig() *options.Config
}

// Instance is the archive handle an application holds: a configured
// Backend plus the logger it was built with.
type Instance struct {
	backend Backend
	config  *options.Config
	log     *zap.SugaredLogger
}

// NewInstance wraps an already-constructed Backend (typically
// internal/archive.NewArchive) together with its configuration and
// logger into the handle applications drive store/fetch/restore calls
// through.
func NewInstance(backend Backend, config *options.Config, log *zap.SugaredLogger) *Instance {
	return &Instance{backend: backend, config: config, log: log}
}

// Backend returns the underlying Backend, for callers that want the full
// method set without going through Instance's thin wrappers.
func (i *Instance) Backend() Backend { return i.backend }

// Config returns the configuration the instance was constructed with.
func (i *Instance) Config() *options.Config { return i.config }

// Store archives one compacted segment's data and index.
func (i *Instance) Store(ctx context.Context, meta SegmentMeta, segmentData filesys.File, segmentIndex []byte) error {
	return i.backend.Store(ctx, meta, segmentData, segmentIndex)
}

// FetchSegment downloads the segment covering frameNo to destPath and
// returns its decoded index.
func (i *Instance) FetchSegment(ctx context.Context, ns Namespace, frameNo uint64, destPath string) (IndexMap, error) {
	return i.backend.FetchSegment(ctx, ns, frameNo, destPath)
}

// Meta returns the archive-derived metadata for a namespace.
func (i *Instance) Meta(ctx context.Context, ns Namespace) (DbMeta, error) {
	return i.backend.Meta(ctx, ns)
}

// Restore reconstructs a database file at dest according to opts.
func (i *Instance) Restore(ctx context.Context, ns Namespace, opts RestoreOptions, dest filesys.File) error {
	return i.backend.Restore(ctx, ns, opts, dest)
}

// ListSegments streams every segment known for a namespace.
func (i *Instance) ListSegments(ctx context.Context, ns Namespace, until uint64) iter.Seq2[SegmentInfo, error] {
	return i.backend.ListSegments(ctx, ns, until)
}
