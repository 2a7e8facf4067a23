// Package pmtiles reads and writes single-directory PMTiles v3 archives.
//
// Only what the patch tiler needs is supported: one gzipped root
// directory, gzipped JSON metadata and gzipped MVT tiles, clustered by
// tile ID. Leaf directories are never written.
//
// Spec: https://github.com/protomaps/PMTiles/blob/main/spec/v3/spec.md
package pmtiles

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/paulmach/orb"
)

// Compression is the compression algorithm applied to directories,
// metadata and tiles.
type Compression uint8

const (
	NoCompression Compression = 1
	Gzip          Compression = 2
)

// TileType is the format of individual tile contents.
type TileType uint8

// Mvt is Mapbox Vector Tile content.
const Mvt TileType = 1

// HeaderV3LenBytes is the fixed-size binary header.
const HeaderV3LenBytes = 127

const magic = "PMTiles"

var (
	ErrShortHeader = errors.New("buffer too small for header")
	ErrNotPMTiles  = errors.New("magic number not detected")
)

// HeaderV3 is the archive header. Fields after the magic and version are
// kept in Layout so they serialise in on-disk order with encoding/binary.
type HeaderV3 struct {
	SpecVersion uint8
	Layout
}

// Layout is the little-endian body of the header, 119 bytes packed.
type Layout struct {
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirectoryOffset uint64
	LeafDirectoryLength uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	AddressedTilesCount uint64
	TileEntriesCount    uint64
	TileContentsCount   uint64
	Clustered           bool
	InternalCompression Compression
	TileCompression     Compression
	TileType            TileType
	MinZoom             uint8
	MaxZoom             uint8
	MinLonE7            int32
	MinLatE7            int32
	MaxLonE7            int32
	MaxLatE7            int32
	CenterZoom          uint8
	CenterLonE7         int32
	CenterLatE7         int32
}

// EntryV3 is an entry in a PMTiles v3 directory.
type EntryV3 struct {
	TileID    uint64
	Offset    uint64
	Length    uint32
	RunLength uint32
}

// ZxyToID converts (Z,X,Y) tile coordinates to a Hilbert TileID: the
// number of tiles on all lower zooms plus the Hilbert index within z.
func ZxyToID(z uint8, x, y uint32) uint64 {
	id := (uint64(1)<<(2*uint64(z)) - 1) / 3
	if z == 0 {
		return id
	}
	n := uint32(1) << z
	var d uint64
	for s := n / 2; s > 0; s /= 2 {
		var rx, ry uint32
		if x&s != 0 {
			rx = 1
		}
		if y&s != 0 {
			ry = 1
		}
		d += uint64(s) * uint64(s) * uint64((3*rx)^ry)
		// Rotate the quadrant so the curve stays continuous.
		if ry == 0 {
			if rx == 1 {
				x = s - 1 - x%s
				y = s - 1 - y%s
			}
			x, y = y, x
		}
	}
	return id + d
}

// SerializeHeader encodes h with the magic bytes and version 3.
func SerializeHeader(h HeaderV3) []byte {
	var b bytes.Buffer
	b.Grow(HeaderV3LenBytes)
	b.WriteString(magic)
	b.WriteByte(3)
	// Writes to a bytes.Buffer of a fixed-size struct cannot fail.
	_ = binary.Write(&b, binary.LittleEndian, h.Layout)
	return b.Bytes()
}

// DeserializeHeader parses a binary header.
func DeserializeHeader(d []byte) (HeaderV3, error) {
	if len(d) < HeaderV3LenBytes {
		return HeaderV3{}, ErrShortHeader
	}
	if string(d[:len(magic)]) != magic {
		return HeaderV3{}, ErrNotPMTiles
	}
	h := HeaderV3{SpecVersion: d[len(magic)]}
	if err := binary.Read(bytes.NewReader(d[len(magic)+1:HeaderV3LenBytes]), binary.LittleEndian, &h.Layout); err != nil {
		return HeaderV3{}, fmt.Errorf("decoding header: %w", err)
	}
	return h, nil
}

// SerializeEntries encodes a directory: entry count, then tile ID deltas,
// run lengths, lengths and offsets as uvarint columns. An offset is
// written as 0 when the entry directly follows the previous one.
func SerializeEntries(entries []EntryV3, c Compression) ([]byte, error) {
	var raw bytes.Buffer
	tmp := make([]byte, binary.MaxVarintLen64)
	put := func(v uint64) {
		raw.Write(tmp[:binary.PutUvarint(tmp, v)])
	}

	put(uint64(len(entries)))
	var last uint64
	for _, e := range entries {
		put(e.TileID - last)
		last = e.TileID
	}
	for _, e := range entries {
		put(uint64(e.RunLength))
	}
	for _, e := range entries {
		put(uint64(e.Length))
	}
	for i, e := range entries {
		if i > 0 && e.Offset == entries[i-1].Offset+uint64(entries[i-1].Length) {
			put(0)
			continue
		}
		put(e.Offset + 1)
	}
	return compress(raw.Bytes(), c)
}

// SerializeMetadata encodes archive metadata as JSON.
func SerializeMetadata(metadata map[string]any, c Compression) ([]byte, error) {
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	return compress(data, c)
}

func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case NoCompression:
		return data, nil
	case Gzip:
		var b bytes.Buffer
		w, err := gzip.NewWriterLevel(&b, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	}
	return nil, fmt.Errorf("compression %d not supported", c)
}

func decompress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case NoCompression:
		return data, nil
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	}
	return nil, fmt.Errorf("compression %d not supported", c)
}

// Tile is one encoded tile keyed by its Hilbert tile ID.
type Tile struct {
	ID   uint64
	Data []byte
}

// Options describe the archive written by Write.
type Options struct {
	MinZoom  uint8
	MaxZoom  uint8
	Bounds   orb.Bound
	Metadata map[string]any
}

// Write lays out header, root directory, metadata and tile data in that
// order. Tiles are sorted by ID; tile data is expected to be gzipped MVT.
func Write(w io.Writer, tiles []Tile, opts Options) error {
	if len(tiles) == 0 {
		return errors.New("no tiles to write")
	}
	sort.Slice(tiles, func(i, j int) bool { return tiles[i].ID < tiles[j].ID })

	entries := make([]EntryV3, len(tiles))
	var dataLen uint64
	for i, t := range tiles {
		entries[i] = EntryV3{TileID: t.ID, Offset: dataLen, Length: uint32(len(t.Data)), RunLength: 1}
		dataLen += uint64(len(t.Data))
	}

	root, err := SerializeEntries(entries, Gzip)
	if err != nil {
		return fmt.Errorf("serializing directory: %w", err)
	}
	metadata, err := SerializeMetadata(opts.Metadata, Gzip)
	if err != nil {
		return fmt.Errorf("serializing metadata: %w", err)
	}

	n := uint64(len(entries))
	center := opts.Bounds.Center()
	h := HeaderV3{SpecVersion: 3, Layout: Layout{
		RootOffset:          HeaderV3LenBytes,
		RootLength:          uint64(len(root)),
		MetadataOffset:      HeaderV3LenBytes + uint64(len(root)),
		MetadataLength:      uint64(len(metadata)),
		TileDataOffset:      HeaderV3LenBytes + uint64(len(root)) + uint64(len(metadata)),
		TileDataLength:      dataLen,
		AddressedTilesCount: n,
		TileEntriesCount:    n,
		TileContentsCount:   n,
		Clustered:           true,
		InternalCompression: Gzip,
		TileCompression:     Gzip,
		TileType:            Mvt,
		MinZoom:             opts.MinZoom,
		MaxZoom:             opts.MaxZoom,
		MinLonE7:            e7(opts.Bounds.Min.Lon()),
		MinLatE7:            e7(opts.Bounds.Min.Lat()),
		MaxLonE7:            e7(opts.Bounds.Max.Lon()),
		MaxLatE7:            e7(opts.Bounds.Max.Lat()),
		CenterZoom:          opts.MinZoom,
		CenterLonE7:         e7(center.Lon()),
		CenterLatE7:         e7(center.Lat()),
	}}

	for _, chunk := range [][]byte{SerializeHeader(h), root, metadata} {
		if _, err := w.Write(chunk); err != nil {
			return err
		}
	}
	for _, t := range tiles {
		if _, err := w.Write(t.Data); err != nil {
			return err
		}
	}
	return nil
}

// ReadHeader reads and parses the header of the archive at path.
func ReadHeader(path string) (HeaderV3, error) {
	f, err := os.Open(path)
	if err != nil {
		return HeaderV3{}, err
	}
	defer f.Close()

	buf := make([]byte, HeaderV3LenBytes)
	if _, err := io.ReadFull(f, buf); err != nil {
		return HeaderV3{}, fmt.Errorf("reading header: %w", err)
	}
	return DeserializeHeader(buf)
}

// ReadMetadata reads the header and the JSON metadata of the archive at path.
func ReadMetadata(path string) (HeaderV3, map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return HeaderV3{}, nil, err
	}
	defer f.Close()

	buf := make([]byte, HeaderV3LenBytes)
	if _, err := io.ReadFull(f, buf); err != nil {
		return HeaderV3{}, nil, fmt.Errorf("reading header: %w", err)
	}
	h, err := DeserializeHeader(buf)
	if err != nil {
		return HeaderV3{}, nil, err
	}

	raw := make([]byte, h.MetadataLength)
	if _, err := f.ReadAt(raw, int64(h.MetadataOffset)); err != nil {
		return h, nil, fmt.Errorf("reading metadata: %w", err)
	}
	data, err := decompress(raw, h.InternalCompression)
	if err != nil {
		return h, nil, fmt.Errorf("decompressing metadata: %w", err)
	}
	var md map[string]any
	if err := json.Unmarshal(data, &md); err != nil {
		return h, nil, fmt.Errorf("parsing metadata: %w", err)
	}
	return h, md, nil
}

// Bound returns the header bounds in degrees.
func (h HeaderV3) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{float64(h.MinLonE7) / 1e7, float64(h.MinLatE7) / 1e7},
		Max: orb.Point{float64(h.MaxLonE7) / 1e7, float64(h.MaxLatE7) / 1e7},
	}
}

func e7(deg float64) int32 {
	return int32(math.Round(deg * 1e7))
}
