package segkey

import (
	"math"
	"sort"
	"testing"

	"github.com/google/uuid"
)

func mustKey(t *testing.T, ns Namespace, start, end uint64) SegmentKey {
	t.Helper()
	return SegmentKey{
		Namespace:    ns,
		StartFrameNo: start,
		EndFrameNo:   end,
		SegmentID:    uuid.New(),
	}
}

func TestSegmentKeyRoundTrip(t *testing.T) {
	k := mustKey(t, "ns1", 64, 128)
	encoded := k.String()

	parsed, ok := ParseSegmentKey(encoded, "ns1")
	if !ok {
		t.Fatalf("ParseSegmentKey(%q) failed to parse", encoded)
	}
	if parsed.StartFrameNo != k.StartFrameNo || parsed.EndFrameNo != k.EndFrameNo || parsed.SegmentID != k.SegmentID {
		t.Fatalf("round trip mismatch: got %+v, want %+v", parsed, k)
	}
}

func TestParseSegmentKeyRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"not_a_key",
		"00000000000000000000_00000000000000000000",
		"bad_00000000000000000000_" + uuid.New().String(),
		"00000000000000000000_bad_" + uuid.New().String(),
		"00000000000000000000_00000000000000000000_not-a-uuid",
	}
	for _, c := range cases {
		if _, ok := ParseSegmentKey(c, "ns1"); ok {
			t.Errorf("ParseSegmentKey(%q) unexpectedly succeeded", c)
		}
	}
}

func TestParseSegmentKeyRejectsInvertedRangeOrder(t *testing.T) {
	// start > end once un-inverted should be rejected as malformed.
	start := mustKey(t, "ns1", 100, 50)
	// Build manually since SegmentKey.String doesn't enforce start<=end
	// itself; ParseSegmentKey is the validation boundary.
	encoded := start.String()
	if _, ok := ParseSegmentKey(encoded, "ns1"); ok {
		t.Fatalf("expected ParseSegmentKey to reject start > end, got success for %q", encoded)
	}
}

func TestSegmentKeyIncludes(t *testing.T) {
	k := mustKey(t, "ns1", 64, 128)

	if k.Includes(63) {
		t.Errorf("Includes(63) = true, want false")
	}
	if !k.Includes(64) {
		t.Errorf("Includes(64) = false, want true")
	}
	if !k.Includes(128) {
		t.Errorf("Includes(128) = false, want true")
	}
	if k.Includes(129) {
		t.Errorf("Includes(129) = true, want false")
	}
}

// TestLexicographicOrderMatchesDescendingFrameOrder is the ordering
// invariant the whole lookup scheme rests on: sorting encoded keys
// lexicographically ascending must yield segments in descending
// EndFrameNo order (ties broken by descending StartFrameNo).
func TestLexicographicOrderMatchesDescendingFrameOrder(t *testing.T) {
	keys := []SegmentKey{
		mustKey(t, "ns1", 0, 64),
		mustKey(t, "ns1", 64, 128),
		mustKey(t, "ns1", 128, 256),
		mustKey(t, "ns1", 200, 500),
	}

	encoded := make([]string, len(keys))
	for i, k := range keys {
		encoded[i] = k.String()
	}

	sorted := make([]string, len(encoded))
	copy(sorted, encoded)
	sort.Strings(sorted)

	wantEndOrder := []uint64{500, 256, 128, 64}
	for i, enc := range sorted {
		parsed, ok := ParseSegmentKey(enc, "ns1")
		if !ok {
			t.Fatalf("ParseSegmentKey(%q) failed", enc)
		}
		if parsed.EndFrameNo != wantEndOrder[i] {
			t.Fatalf("position %d: EndFrameNo = %d, want %d", i, parsed.EndFrameNo, wantEndOrder[i])
		}
	}
}

// TestFindSegmentOverlapResolution mirrors the concrete scenario: two
// segments S1=[0,64] and S2=[64,128] overlap at frame 64. A LIST
// start_after the lookup key for frame 63 must surface S1 first, and for
// frame 64 must surface S2 first.
func TestFindSegmentOverlapResolution(t *testing.T) {
	s1 := mustKey(t, "ns1", 0, 64)
	s2 := mustKey(t, "ns1", 64, 128)

	folder := FolderKey{ClusterID: "c1", Namespace: "ns1"}
	objects := []string{IndexKey(folder, s1), IndexKey(folder, s2)}
	sort.Strings(objects)

	find := func(frameNo uint64) (SegmentKey, bool) {
		startAfter := LookupKey(folder, frameNo)
		for _, obj := range objects {
			if obj > startAfter {
				return ParseIndexObjectKey(folder, obj)
			}
		}
		return SegmentKey{}, false
	}

	got, ok := find(63)
	if !ok || got.EndFrameNo != 64 || got.StartFrameNo != 0 {
		t.Fatalf("find(63) = %+v, ok=%v, want S1 [0,64]", got, ok)
	}

	got, ok = find(64)
	if !ok || got.EndFrameNo != 128 || got.StartFrameNo != 64 {
		t.Fatalf("find(64) = %+v, ok=%v, want S2 [64,128]", got, ok)
	}

	// frame number covered by neither segment: the first key after the
	// lookup key is still S2, which the caller must reject via Includes.
	got, ok = find(200)
	if !ok || got.EndFrameNo != 128 || got.StartFrameNo != 64 || got.Includes(200) {
		t.Fatalf("find(200) = %+v, ok=%v, want S2 [64,128], which does not include 200", got, ok)
	}
}

func TestLookupKeyAtMaxFrameNo(t *testing.T) {
	folder := FolderKey{ClusterID: "c1", Namespace: "ns1"}
	key := LookupKey(folder, math.MaxUint64)
	want := IndexPrefix(folder) + "00000000000000000000"
	if key != want {
		t.Fatalf("LookupKey(MaxUint64) = %q, want %q", key, want)
	}
}

func TestFolderKeyString(t *testing.T) {
	folder := FolderKey{ClusterID: "cluster-a", Namespace: "db1"}
	want := "v2/clusters/cluster-a/namespaces/db1"
	if got := folder.String(); got != want {
		t.Fatalf("FolderKey.String() = %q, want %q", got, want)
	}
}

func TestDataKeyAndIndexKeyDiffer(t *testing.T) {
	folder := FolderKey{ClusterID: "c1", Namespace: "ns1"}
	k := mustKey(t, "ns1", 0, 64)

	data := DataKey(folder, k)
	index := IndexKey(folder, k)
	if data == index {
		t.Fatalf("DataKey and IndexKey produced the same key: %q", data)
	}
	if got, ok := ParseIndexObjectKey(folder, data); ok {
		t.Fatalf("ParseIndexObjectKey unexpectedly parsed a data key: %+v", got)
	}
}
