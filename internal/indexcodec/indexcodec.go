// Package indexcodec frames a segment index payload with the fixed header
// the archive writes alongside every segment's data object, and validates
// that framing on the way back in. The payload itself — a sorted map from
// page number to the offset of its newest frame within the segment — is
// treated as opaque bytes; indexcodec only owns the 22-byte envelope
// around it (magic, version, length, CRC32), mirroring the original
// engine's SegmentIndexHeader.
package indexcodec

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	archerrors "github.com/iamNilotpal/segarchive/pkg/errors"
)

// Magic identifies a segment index object. The value mirrors the engine's
// own LIBSQL_MAGIC constant; any object whose header doesn't carry it is
// rejected outright rather than risked as a different format.
const Magic uint64 = 0x4c49425351570001

// Version is the only index header version this codec understands.
const Version uint16 = 1

// HeaderSize is the fixed, on-the-wire size of the header: 8-byte magic +
// 2-byte version + 8-byte length + 4-byte checksum.
const HeaderSize = 8 + 2 + 8 + 4

// Header is the fixed envelope written before every index payload.
type Header struct {
	Magic    uint64
	Version  uint16
	Length   uint64
	Checksum uint32
}

// Map is the decoded form of an index payload: an opaque sorted map from a
// page-key to its frame offset within the segment. The archive never
// inspects entries itself; it only needs to serialize the payload it is
// handed by the caller and hand the same bytes back on fetch.
//
// No Go library in the available dependency set implements the succinct
// FST-backed map construction the original engine uses; Constructor below
// is the seam a real implementation of one would plug into. MapBytes is
// the flat, already-serialized form used until one is wired in.
type Map interface {
	// Bytes returns the payload's on-the-wire serialized form.
	Bytes() []byte
}

// MapBytes is the default Map implementation: the payload is already a
// serialized byte slice (e.g. produced by an external FST builder) and is
// passed through unchanged. It exists so callers that already have
// serialized bytes don't need a real map implementation to use this codec.
type MapBytes []byte

// Bytes implements Map.
func (b MapBytes) Bytes() []byte { return []byte(b) }

// Constructor builds a Map from raw payload bytes read off the wire. It is
// the injection point for a real succinct-map decoder; DefaultConstructor
// is a pass-through stand-in that treats the payload as already-decoded
// bytes, suitable for tests and for callers who manage their own payload
// format above this codec.
type Constructor func(payload []byte) (Map, error)

// DefaultConstructor wraps payload bytes as a MapBytes without further
// validation beyond what Decode already performed (header and checksum).
func DefaultConstructor(payload []byte) (Map, error) {
	return MapBytes(payload), nil
}

// Encode frames payload with the fixed header and returns the full object
// body ready for a single PUT.
func Encode(payload []byte) []byte {
	out := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint64(out[0:8], Magic)
	binary.LittleEndian.PutUint16(out[8:10], Version)
	binary.LittleEndian.PutUint64(out[10:18], uint64(len(payload)))
	binary.LittleEndian.PutUint32(out[18:22], crc32.ChecksumIEEE(payload))
	copy(out[HeaderSize:], payload)
	return out
}

// Decode reads exactly one header and payload from r, validates magic,
// version, and checksum, and hands the payload to construct. It reports an
// *errors.ArchiveError with code ErrorCodeInvalidIndex for every validation
// failure, each carrying the distinct reason text the archive's testable
// properties pin down.
func Decode(r io.Reader, construct Constructor) (Map, error) {
	if construct == nil {
		construct = DefaultConstructor
	}

	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, archerrors.NewUnhandledError(err, "reading index header")
	}

	magic := binary.LittleEndian.Uint64(hdr[0:8])
	version := binary.LittleEndian.Uint16(hdr[8:10])
	length := binary.LittleEndian.Uint64(hdr[10:18])
	checksum := binary.LittleEndian.Uint32(hdr[18:22])

	if magic != Magic || version != Version {
		return nil, archerrors.NewInvalidIndexError("index header magic or version invalid")
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, archerrors.NewUnhandledError(err, "reading index payload")
	}

	if crc32.ChecksumIEEE(payload) != checksum {
		return nil, archerrors.NewInvalidIndexError("invalid index data checksum")
	}

	m, err := construct(payload)
	if err != nil {
		return nil, archerrors.NewInvalidIndexError("invalid index bytes")
	}
	return m, nil
}
