package nand

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ───────────────────────────────────────────────────────────────────────────
// Device image
// ───────────────────────────────────────────────────────────────────────────
//
// The whole device persists as a single flat binary file. An image written
// by one process is loadable by another of the same build; a missing,
// truncated, or corrupt image is reported as an error and the caller
// falls back to a fresh device.
//
// Header layout (little endian):
//
//  Offset  Size  Field
//  ──────  ────  ───────────────────
//  0       8     Magic            "NANDIMG\x00"
//  8       4     FormatVersion    uint32
//  12      4     PageSize         uint32
//  16      4     OOBSize          uint32
//  20      4     PagesPerBlock    uint32
//  24      4     Blocks           uint32
//  28      4     LogicalPages     uint32
//  32      16    Serial           uuid bytes
//  48      8     TotalPageWrites  uint64
//  56      8     TotalBlockErases uint64
//  64      4     CRC32            uint32  (CRC32-C of header, field zeroed)
//  68      28    Reserved         zero-filled
//
// Body: per block, erase_count uint32 + invalid_pages uint32, followed by
// the block's pages in order — each page is OOBSize bytes of OOB record
// (see page.go) then PageSize bytes of payload.

const (
	// ImageMagic identifies a device image file.
	ImageMagic = "NANDIMG\x00"

	// ImageFormatVersion is the current on-disk format version.
	ImageFormatVersion uint32 = 1

	imageHeaderSize = 96

	imgMagicOff      = 0
	imgVersionOff    = 8
	imgPageSizeOff   = 12
	imgOOBSizeOff    = 16
	imgPerBlockOff   = 20
	imgBlocksOff     = 24
	imgLogicalOff    = 28
	imgSerialOff     = 32
	imgPageWritesOff = 48
	imgEraseOff      = 56
	imgCRCOff        = 64
)

// ErrBadImage reports an unreadable or inconsistent image file.
var ErrBadImage = errors.New("bad device image")

var imageCRCTable = crc32.MakeTable(crc32.Castagnoli)

func headerCRC(hdr []byte) uint32 {
	h := crc32.New(imageCRCTable)
	h.Write(hdr[:imgCRCOff])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(hdr[imgCRCOff+4:])
	return h.Sum32()
}

// blockRecordSize returns the on-disk size of one block record.
func blockRecordSize(g Geometry) int {
	return 8 + g.PagesPerBlock*(g.OOBSize+g.PageSize)
}

// marshalHeader serializes the device header.
func (d *Device) marshalHeader() []byte {
	hdr := make([]byte, imageHeaderSize)
	copy(hdr[imgMagicOff:], ImageMagic)
	binary.LittleEndian.PutUint32(hdr[imgVersionOff:], ImageFormatVersion)
	binary.LittleEndian.PutUint32(hdr[imgPageSizeOff:], uint32(d.geo.PageSize))
	binary.LittleEndian.PutUint32(hdr[imgOOBSizeOff:], uint32(d.geo.OOBSize))
	binary.LittleEndian.PutUint32(hdr[imgPerBlockOff:], uint32(d.geo.PagesPerBlock))
	binary.LittleEndian.PutUint32(hdr[imgBlocksOff:], uint32(d.geo.Blocks))
	binary.LittleEndian.PutUint32(hdr[imgLogicalOff:], uint32(d.geo.LogicalPages))
	copy(hdr[imgSerialOff:imgSerialOff+16], d.serial[:])
	binary.LittleEndian.PutUint64(hdr[imgPageWritesOff:], d.totalPageWrites)
	binary.LittleEndian.PutUint64(hdr[imgEraseOff:], d.totalBlockErases)
	binary.LittleEndian.PutUint32(hdr[imgCRCOff:], headerCRC(hdr))
	return hdr
}

// SaveImage writes the full device image to path. The image is written to
// a temporary file in the same directory and renamed into place so a
// crash mid-save leaves the previous image intact.
func (d *Device) SaveImage(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".nandimg-*")
	if err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := d.writeImage(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("save image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	return nil
}

func (d *Device) writeImage(w io.Writer) error {
	if _, err := w.Write(d.marshalHeader()); err != nil {
		return err
	}
	rec := make([]byte, blockRecordSize(d.geo))
	for bi := range d.blocks {
		b := &d.blocks[bi]
		binary.LittleEndian.PutUint32(rec[0:4], b.eraseCount)
		binary.LittleEndian.PutUint32(rec[4:8], uint32(b.invalidPages))
		off := 8
		for pi := range b.pages {
			p := &b.pages[pi]
			oob := rec[off : off+d.geo.OOBSize]
			for i := range oob {
				oob[i] = 0
			}
			marshalOOB(&p.oob, oob)
			off += d.geo.OOBSize
			copy(rec[off:off+d.geo.PageSize], p.data)
			off += d.geo.PageSize
		}
		if _, err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// LoadImage reads a device image from path. The stored geometry becomes
// the device geometry; pass the expected geometry to Geometry-check after
// load if the caller requires a specific layout. Per-block invalid
// counters are recomputed from page states rather than trusted, so a
// stale counter in the image cannot poison GC victim selection.
func LoadImage(path string) (*Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}
	defer f.Close()

	hdr := make([]byte, imageHeaderSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return nil, fmt.Errorf("load image header: %w: %v", ErrBadImage, err)
	}
	if string(hdr[imgMagicOff:imgMagicOff+8]) != ImageMagic {
		return nil, fmt.Errorf("load image: %w: bad magic", ErrBadImage)
	}
	if v := binary.LittleEndian.Uint32(hdr[imgVersionOff:]); v != ImageFormatVersion {
		return nil, fmt.Errorf("load image: %w: format version %d", ErrBadImage, v)
	}
	if stored := binary.LittleEndian.Uint32(hdr[imgCRCOff:]); stored != headerCRC(hdr) {
		return nil, fmt.Errorf("load image: %w: header CRC mismatch", ErrBadImage)
	}

	g := Geometry{
		PageSize:      int(binary.LittleEndian.Uint32(hdr[imgPageSizeOff:])),
		OOBSize:       int(binary.LittleEndian.Uint32(hdr[imgOOBSizeOff:])),
		PagesPerBlock: int(binary.LittleEndian.Uint32(hdr[imgPerBlockOff:])),
		Blocks:        int(binary.LittleEndian.Uint32(hdr[imgBlocksOff:])),
		LogicalPages:  int(binary.LittleEndian.Uint32(hdr[imgLogicalOff:])),
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("load image: %w: %v", ErrBadImage, err)
	}

	d, err := New(g)
	if err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}
	copy(d.serial[:], hdr[imgSerialOff:imgSerialOff+16])
	d.totalPageWrites = binary.LittleEndian.Uint64(hdr[imgPageWritesOff:])
	d.totalBlockErases = binary.LittleEndian.Uint64(hdr[imgEraseOff:])

	rec := make([]byte, blockRecordSize(g))
	for bi := range d.blocks {
		if _, err := io.ReadFull(f, rec); err != nil {
			return nil, fmt.Errorf("load image block %d: %w: %v", bi, ErrBadImage, err)
		}
		b := &d.blocks[bi]
		b.eraseCount = binary.LittleEndian.Uint32(rec[0:4])
		off := 8
		invalid := 0
		for pi := range b.pages {
			p := &b.pages[pi]
			p.oob = unmarshalOOB(rec[off : off+g.OOBSize])
			if p.oob.State > PageInvalid {
				return nil, fmt.Errorf("load image block %d page %d: %w: state 0x%02x", bi, pi, ErrBadImage, uint8(p.oob.State))
			}
			if p.oob.State == PageInvalid {
				invalid++
			}
			off += g.OOBSize
			copy(p.data, rec[off:off+g.PageSize])
			off += g.PageSize
		}
		b.invalidPages = invalid
	}

	// Trailing garbage means the file does not match its own header.
	if n, _ := f.Read(make([]byte, 1)); n != 0 {
		return nil, fmt.Errorf("load image: %w: trailing data", ErrBadImage)
	}
	return d, nil
}

// Serial-stable restore is part of the image contract; expose the parse
// for tools that only need the header.
func ReadImageSerial(path string) (uuid.UUID, error) {
	f, err := os.Open(path)
	if err != nil {
		return uuid.UUID{}, err
	}
	defer f.Close()
	hdr := make([]byte, imageHeaderSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	if string(hdr[imgMagicOff:imgMagicOff+8]) != ImageMagic {
		return uuid.UUID{}, fmt.Errorf("%w: bad magic", ErrBadImage)
	}
	var u uuid.UUID
	copy(u[:], hdr[imgSerialOff:imgSerialOff+16])
	return u, nil
}
