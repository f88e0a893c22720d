// Package segmentfile defines the fixed binary layout of a compacted
// segment data object: a header declaring how many frames follow and how
// many logical pages the database has after applying them, followed by
// that many fixed-size frames. The archive treats everything past the
// header as opaque except for the one field every restore step needs: a
// frame's page number, which is what tells restore_latest where on disk
// to write the frame's payload.
//
// Layout is intentionally the producer's contract, not this archive's:
// the spec calls the compacted segment binary format beyond its header an
// external collaborator, so this package implements only the header and
// frame shapes, not how a producer builds them.
package segmentfile

import (
	"encoding/binary"
	"io"
)

// PageSize is the fixed size, in bytes, of one database page and of one
// frame's payload.
const PageSize = 4096

// HeaderSize is the on-the-wire size of CompactedSegmentDataHeader.
const HeaderSize = 8 + 8 + 4 + 4

// FrameHeaderSize is the size of the fixed fields preceding a frame's page
// payload.
const FrameHeaderSize = 4

// FrameSize is the total on-the-wire size of one frame: its header plus
// one page payload.
const FrameSize = FrameHeaderSize + PageSize

// CompactedSegmentDataHeader is the fixed header at the start of every
// segment data object.
type CompactedSegmentDataHeader struct {
	// StartFrameNo is the first frame number this segment covers. Used by
	// restore_latest to compute the next segment to walk back to
	// (StartFrameNo - 1) when the current segment doesn't fully cover the
	// database.
	StartFrameNo uint64
	// EndFrameNo is the last frame number this segment covers.
	EndFrameNo uint64
	// FrameCount is the number of Frame records following the header.
	FrameCount uint32
	// SizeAfter is the logical page count of the database once this
	// segment's frames have been applied; restore_latest treats it as the
	// total number of distinct pages that must be seen before the
	// database is fully restored.
	SizeAfter uint32
}

// MarshalBinary encodes the header into its fixed HeaderSize-byte form.
func (h CompactedSegmentDataHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.StartFrameNo)
	binary.LittleEndian.PutUint64(buf[8:16], h.EndFrameNo)
	binary.LittleEndian.PutUint32(buf[16:20], h.FrameCount)
	binary.LittleEndian.PutUint32(buf[20:24], h.SizeAfter)
	return buf, nil
}

// UnmarshalBinary decodes a header from its fixed HeaderSize-byte form.
func (h *CompactedSegmentDataHeader) UnmarshalBinary(buf []byte) error {
	if len(buf) < HeaderSize {
		return io.ErrUnexpectedEOF
	}
	h.StartFrameNo = binary.LittleEndian.Uint64(buf[0:8])
	h.EndFrameNo = binary.LittleEndian.Uint64(buf[8:16])
	h.FrameCount = binary.LittleEndian.Uint32(buf[16:20])
	h.SizeAfter = binary.LittleEndian.Uint32(buf[20:24])
	return nil
}

// ReadHeader reads exactly one CompactedSegmentDataHeader from r.
func ReadHeader(r io.Reader) (CompactedSegmentDataHeader, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return CompactedSegmentDataHeader{}, err
	}
	var h CompactedSegmentDataHeader
	if err := h.UnmarshalBinary(buf[:]); err != nil {
		return CompactedSegmentDataHeader{}, err
	}
	return h, nil
}

// Frame is one fixed-size record within a segment data object: a 1-based
// page number and that page's full payload.
type Frame struct {
	PageNo uint32
	Data   [PageSize]byte
}

// MarshalBinary encodes the frame into its fixed FrameSize-byte form.
func (f Frame) MarshalBinary() ([]byte, error) {
	buf := make([]byte, FrameSize)
	binary.LittleEndian.PutUint32(buf[0:4], f.PageNo)
	copy(buf[FrameHeaderSize:], f.Data[:])
	return buf, nil
}

// UnmarshalBinary decodes a frame from its fixed FrameSize-byte form.
func (f *Frame) UnmarshalBinary(buf []byte) error {
	if len(buf) < FrameSize {
		return io.ErrUnexpectedEOF
	}
	f.PageNo = binary.LittleEndian.Uint32(buf[0:4])
	copy(f.Data[:], buf[FrameHeaderSize:FrameSize])
	return nil
}

// ReadFrame reads exactly one Frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var buf [FrameSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := f.UnmarshalBinary(buf[:]); err != nil {
		return Frame{}, err
	}
	return f, nil
}
