package nand

import (
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Addresses and page state
// ───────────────────────────────────────────────────────────────────────────

// PBA is a physical page address in [0, Geometry.TotalPages).
type PBA uint32

// LBA is a host-visible logical page address in [0, Geometry.LogicalPages).
type LBA uint32

// UnmappedPBA and UnmappedLBA are the "no address" sentinels. They lie outside every valid
// PBA and LBA range at any supported geometry.
const (
	UnmappedPBA = PBA(^uint32(0))
	UnmappedLBA = LBA(^uint32(0))
)

// PageState is the programming state of one physical page.
type PageState uint8

const (
	// PageFree: erased and programmable.
	PageFree PageState = iota
	// PageValid: holds the current data for its OOB LBA.
	PageValid
	// PageInvalid: stale data awaiting block erase.
	PageInvalid
)

// String returns a human-readable label for the page state.
func (s PageState) String() string {
	switch s {
	case PageFree:
		return "Free"
	case PageValid:
		return "Valid"
	case PageInvalid:
		return "Invalid"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(s))
	}
}

// ───────────────────────────────────────────────────────────────────────────
// OOB record
// ───────────────────────────────────────────────────────────────────────────
//
// Each page carries an out-of-band metadata record. Only the first
// oobRecordSize bytes of the OOB area are used; the remainder is reserved
// for ECC.
//
// On-image layout (little endian):
//
//  Offset  Size  Field
//  ──────  ────  ───────────────────
//  0       1     State       uint8
//  1       3     Reserved
//  4       4     LBA         uint32  (0xFFFFFFFF = unmapped)
//  8       4     WriteCount  uint32  (programs since last erase)
//  12      8     Timestamp   int64   (wall-clock seconds at program time)

const oobRecordSize = 20

// OOB is the parsed out-of-band record of one page.
type OOB struct {
	State      PageState
	LBA        LBA
	WriteCount uint32
	Timestamp  int64
}

// marshalOOB writes the record into the first oobRecordSize bytes of buf.
func marshalOOB(o *OOB, buf []byte) {
	buf[0] = byte(o.State)
	buf[1], buf[2], buf[3] = 0, 0, 0
	binary.LittleEndian.PutUint32(buf[4:8], uint32(o.LBA))
	binary.LittleEndian.PutUint32(buf[8:12], o.WriteCount)
	binary.LittleEndian.PutUint64(buf[12:20], uint64(o.Timestamp))
}

// unmarshalOOB reads a record from the first oobRecordSize bytes of buf.
func unmarshalOOB(buf []byte) OOB {
	return OOB{
		State:      PageState(buf[0]),
		LBA:        LBA(binary.LittleEndian.Uint32(buf[4:8])),
		WriteCount: binary.LittleEndian.Uint32(buf[8:12]),
		Timestamp:  int64(binary.LittleEndian.Uint64(buf[12:20])),
	}
}

// ───────────────────────────────────────────────────────────────────────────
// Page
// ───────────────────────────────────────────────────────────────────────────

// erasedByte is the pattern an erased NAND cell reads back.
const erasedByte = 0xFF

// page is one physical page: payload plus OOB record.
type page struct {
	data []byte
	oob  OOB
}

// reset returns the page to the erased state: all-0xFF payload, Free
// state, unmapped back-pointer, write count cleared.
func (p *page) reset() {
	for i := range p.data {
		p.data[i] = erasedByte
	}
	p.oob = OOB{State: PageFree, LBA: UnmappedLBA}
}
