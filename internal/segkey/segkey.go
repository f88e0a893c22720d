// Package segkey derives the object-store keys the archive uses to store
// and look up segment data and index objects. Key derivation is pure: no
// I/O, no network calls, just string formatting and parsing, so that the
// ordering invariants it encodes can be tested in isolation from the
// transfer engine that sends the keys over the wire.
//
// The central trick is the one described in the archive's design notes:
// folding "find the newest segment covering frame N" into a single
// lexicographically-ordered LIST request. Every frame number component
// is stored as the 20-digit decimal of (math.MaxUint64 - value), so that
// ascending lexicographic order over the encoded string is descending
// order over the real frame number. Combined with an object-store LIST's
// start_after semantics (strictly greater than the given key), this turns
// "biggest value <= f" into "first result after a key built from f" with
// no secondary index.
package segkey

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Namespace identifies one logical database within a cluster. Opaque and
// non-empty for the lifetime of its data.
type Namespace string

// ClusterID scopes a group of namespaces under a shared object-store bucket.
type ClusterID string

// invertedFrameNo is the fixed-width, order-reversing encoding used for
// every frame number component of a key. Twenty digits is exactly the
// width of math.MaxUint64 in decimal, and the fixed width is what makes
// lexicographic and numeric order agree.
func invertedFrameNo(frameNo uint64) string {
	return fmt.Sprintf("%020d", math.MaxUint64-frameNo)
}

// SegmentKey identifies one stored segment: the frame range it covers and
// the unique ID that disambiguates segments sharing the same range (which
// happens routinely, since compaction produces overlapping ranges).
type SegmentKey struct {
	Namespace    Namespace
	StartFrameNo uint64
	EndFrameNo   uint64
	SegmentID    uuid.UUID
}

// Includes reports whether the segment's frame range covers frameNo.
func (k SegmentKey) Includes(frameNo uint64) bool {
	return k.StartFrameNo <= frameNo && frameNo <= k.EndFrameNo
}

// String renders the stable wire form of the key: the part that appears
// after "segments/" or "indexes/" in an object-store key. Ordering across
// a fixed namespace is, in priority order: descending EndFrameNo,
// descending StartFrameNo, then SegmentID as a tiebreaker.
func (k SegmentKey) String() string {
	return fmt.Sprintf(
		"%s_%s_%s",
		invertedFrameNo(k.EndFrameNo),
		invertedFrameNo(k.StartFrameNo),
		k.SegmentID.String(),
	)
}

// ParseSegmentKey is the only validated entry point for keys returned by a
// LIST call: it rejects anything that doesn't match the fixed
// "{20 digits}_{20 digits}_{uuid}" shape emitted by String, and recovers
// the original (non-inverted) frame numbers.
func ParseSegmentKey(encoded string, namespace Namespace) (SegmentKey, bool) {
	parts := strings.SplitN(encoded, "_", 3)
	if len(parts) != 3 {
		return SegmentKey{}, false
	}

	invertedEnd, invertedStart, idPart := parts[0], parts[1], parts[2]
	if len(invertedEnd) != 20 || len(invertedStart) != 20 {
		return SegmentKey{}, false
	}

	invEnd, err := strconv.ParseUint(invertedEnd, 10, 64)
	if err != nil {
		return SegmentKey{}, false
	}
	invStart, err := strconv.ParseUint(invertedStart, 10, 64)
	if err != nil {
		return SegmentKey{}, false
	}

	id, err := uuid.Parse(idPart)
	if err != nil {
		return SegmentKey{}, false
	}

	endFrameNo := math.MaxUint64 - invEnd
	startFrameNo := math.MaxUint64 - invStart
	if startFrameNo > endFrameNo {
		return SegmentKey{}, false
	}

	return SegmentKey{
		Namespace:    namespace,
		StartFrameNo: startFrameNo,
		EndFrameNo:   endFrameNo,
		SegmentID:    id,
	}, true
}

// FolderKey scopes every key under a shared cluster/namespace prefix.
type FolderKey struct {
	ClusterID ClusterID
	Namespace Namespace
}

// String renders the folder prefix all of a namespace's keys live under.
func (f FolderKey) String() string {
	return fmt.Sprintf("v2/clusters/%s/namespaces/%s", f.ClusterID, f.Namespace)
}

// DataKey returns the object-store key for a segment's data object.
func DataKey(folder FolderKey, key SegmentKey) string {
	return folder.String() + "/segments/" + key.String()
}

// IndexKey returns the object-store key for a segment's index object.
func IndexKey(folder FolderKey, key SegmentKey) string {
	return folder.String() + "/indexes/" + key.String()
}

// IndexPrefix returns the LIST prefix under which every index object for a
// namespace lives.
func IndexPrefix(folder FolderKey) string {
	return folder.String() + "/indexes/"
}

// LookupKey builds the key used as a LIST start_after argument to find the
// newest segment whose range covers frameNo. It does not itself name a
// real object; find_segment issues a LIST with this as start_after and
// takes the first result, then the caller validates SegmentKey.Includes.
func LookupKey(folder FolderKey, frameNo uint64) string {
	return IndexPrefix(folder) + invertedFrameNo(frameNo)
}

// ParseIndexObjectKey strips the index prefix for a folder from a full
// object key and parses the remainder as a SegmentKey. Returns false if
// the key doesn't live under the folder's index prefix or doesn't parse.
func ParseIndexObjectKey(folder FolderKey, objectKey string) (SegmentKey, bool) {
	prefix := IndexPrefix(folder)
	if !strings.HasPrefix(objectKey, prefix) {
		return SegmentKey{}, false
	}
	return ParseSegmentKey(strings.TrimPrefix(objectKey, prefix), folder.Namespace)
}
