package pmtiles

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
)

func TestZxyToID(t *testing.T) {
	tests := []struct {
		z    uint8
		x, y uint32
		want uint64
	}{
		{0, 0, 0, 0},
		{1, 0, 0, 1},
		{1, 0, 1, 2},
		{1, 1, 1, 3},
		{1, 1, 0, 4},
		{2, 0, 0, 5},
	}
	for _, tt := range tests {
		if got := ZxyToID(tt.z, tt.x, tt.y); got != tt.want {
			t.Errorf("ZxyToID(%d,%d,%d)=%d, want %d", tt.z, tt.x, tt.y, got, tt.want)
		}
	}
}

func TestWriteHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	tiles := []Tile{
		{ID: 4, Data: []byte("dddd")},
		{ID: 1, Data: []byte("a")},
	}
	bound := orb.Bound{Min: orb.Point{103.1, 3.6}, Max: orb.Point{103.6, 4.1}}
	err := Write(&buf, tiles, Options{MinZoom: 1, MaxZoom: 1, Bounds: bound, Metadata: map[string]any{"name": "patches"}})
	if err != nil {
		t.Fatal(err)
	}

	h, err := DeserializeHeader(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if h.SpecVersion != 3 || h.TileType != Mvt || !h.Clustered {
		t.Fatalf("header=%+v", h)
	}
	if h.TileEntriesCount != 2 || h.TileDataLength != 5 {
		t.Fatalf("entries=%d data=%d", h.TileEntriesCount, h.TileDataLength)
	}
	if got := uint64(buf.Len()); got != h.TileDataOffset+h.TileDataLength {
		t.Fatalf("file length=%d, want %d", got, h.TileDataOffset+h.TileDataLength)
	}
	// Sorted by ID: tile 1 comes first in the data section.
	if buf.Bytes()[h.TileDataOffset] != 'a' {
		t.Fatal("tile data not sorted by ID")
	}

	b := h.Bound()
	if math.Abs(b.Min.Lon()-103.1) > 1e-7 || math.Abs(b.Max.Lat()-4.1) > 1e-7 {
		t.Fatalf("bound=%v", b)
	}
}

func TestWriteEmpty(t *testing.T) {
	if err := Write(&bytes.Buffer{}, nil, Options{}); err == nil {
		t.Fatal("expected error for empty archive")
	}
}

func TestDeserializeHeaderRejectsGarbage(t *testing.T) {
	if _, err := DeserializeHeader([]byte("short")); !errors.Is(err, ErrShortHeader) {
		t.Fatalf("short buffer: err=%v", err)
	}
	if _, err := DeserializeHeader(make([]byte, HeaderV3LenBytes)); !errors.Is(err, ErrNotPMTiles) {
		t.Fatalf("missing magic: err=%v", err)
	}
}

func TestHeaderSize(t *testing.T) {
	if got := len(SerializeHeader(HeaderV3{})); got != HeaderV3LenBytes {
		t.Fatalf("header=%d bytes, want %d", got, HeaderV3LenBytes)
	}
}

func TestReadMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.pmtiles")
	var buf bytes.Buffer
	md := map[string]any{"name": "forest", "vector_layers": []map[string]any{{"id": "forest"}}}
	if err := Write(&buf, []Tile{{ID: 0, Data: []byte("x")}}, Options{Metadata: md}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	h, got, err := ReadMetadata(path)
	if err != nil {
		t.Fatal(err)
	}
	if h.TileEntriesCount != 1 || got["name"] != "forest" {
		t.Fatalf("header=%+v metadata=%v", h, got)
	}
}

func TestSerializeEntriesCompression(t *testing.T) {
	entries := []EntryV3{{TileID: 0, Length: 3, RunLength: 1}, {TileID: 2, Offset: 3, Length: 1, RunLength: 1}}
	raw, err := SerializeEntries(entries, NoCompression)
	if err != nil {
		t.Fatal(err)
	}
	// count, id deltas, run lengths, lengths, offsets (second is contiguous).
	want := []byte{2, 0, 2, 1, 1, 3, 1, 1, 0}
	if !bytes.Equal(raw, want) {
		t.Fatalf("entries=%v, want %v", raw, want)
	}
	if _, err := SerializeEntries(entries, Compression(9)); err == nil {
		t.Fatal("unsupported compression accepted")
	}
}
