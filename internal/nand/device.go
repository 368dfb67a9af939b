package nand

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ───────────────────────────────────────────────────────────────────────────
// Errors
// ───────────────────────────────────────────────────────────────────────────

var (
	// ErrOutOfRange reports a PBA or block index outside the device.
	ErrOutOfRange = errors.New("address out of range")

	// ErrOverwrite reports a program attempt on a non-Free page. Under
	// normal FTL operation this is never hit; seeing it means a caller
	// broke the allocate-then-invalidate discipline.
	ErrOverwrite = errors.New("program on non-free page refused")

	// ErrNotValid reports a read of a page that holds no current data.
	ErrNotValid = errors.New("page not valid")

	// ErrPayloadSize reports a payload larger than the page.
	ErrPayloadSize = errors.New("payload exceeds page size")
)

// ───────────────────────────────────────────────────────────────────────────
// Device
// ───────────────────────────────────────────────────────────────────────────

// Device is the in-memory NAND flash model. It owns its blocks
// exclusively; the only way to reach a page is through the device API.
// The device is not safe for concurrent use — the simulator's scheduling
// model is single-threaded and callers serialize access themselves.
type Device struct {
	geo    Geometry
	blocks []block
	serial uuid.UUID

	// Lifetime counters, persisted in the image.
	totalPageWrites  uint64
	totalBlockErases uint64

	// now supplies OOB timestamps; tests pin it.
	now func() int64
}

// New creates a freshly-erased device with a new serial number.
func New(g Geometry) (*Device, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	d := &Device{
		geo:    g,
		blocks: make([]block, g.Blocks),
		serial: uuid.New(),
		now:    func() int64 { return time.Now().Unix() },
	}
	for i := range d.blocks {
		d.blocks[i] = newBlock(g)
	}
	return d, nil
}

// Geometry returns the device layout.
func (d *Device) Geometry() Geometry { return d.geo }

// Serial returns the device serial number assigned at first format.
func (d *Device) Serial() uuid.UUID { return d.serial }

// SetClock replaces the timestamp source. Intended for tests.
func (d *Device) SetClock(now func() int64) { d.now = now }

// pageAt resolves a PBA to its page, or nil when out of range.
func (d *Device) pageAt(pba PBA) (*block, *page) {
	if int(pba) >= d.geo.TotalPages() {
		return nil, nil
	}
	b := &d.blocks[int(pba)/d.geo.PagesPerBlock]
	return b, &b.pages[int(pba)%d.geo.PagesPerBlock]
}

// ───────────────────────────────────────────────────────────────────────────
// Program / read / erase
// ───────────────────────────────────────────────────────────────────────────

// ProgramPage writes payload into the page at pba and stamps its OOB with
// the owning LBA. The page must be Free — NAND cells cannot be rewritten
// in place — otherwise ErrOverwrite is returned and nothing changes.
// Payloads shorter than the page are zero-padded.
func (d *Device) ProgramPage(pba PBA, payload []byte, lba LBA) error {
	_, p := d.pageAt(pba)
	if p == nil {
		return fmt.Errorf("program page %d: %w", pba, ErrOutOfRange)
	}
	if len(payload) > d.geo.PageSize {
		return fmt.Errorf("program page %d: %w (%d > %d)", pba, ErrPayloadSize, len(payload), d.geo.PageSize)
	}
	if p.oob.State != PageFree {
		return fmt.Errorf("program page %d (state %s): %w", pba, p.oob.State, ErrOverwrite)
	}

	n := copy(p.data, payload)
	for i := n; i < len(p.data); i++ {
		p.data[i] = 0
	}
	p.oob.State = PageValid
	p.oob.LBA = lba
	p.oob.WriteCount++
	p.oob.Timestamp = d.now()
	d.totalPageWrites++
	return nil
}

// ReadPage returns a copy of the payload at pba. Only Valid pages are
// readable; Free and Invalid pages return ErrNotValid.
func (d *Device) ReadPage(pba PBA) ([]byte, error) {
	_, p := d.pageAt(pba)
	if p == nil {
		return nil, fmt.Errorf("read page %d: %w", pba, ErrOutOfRange)
	}
	if p.oob.State != PageValid {
		return nil, fmt.Errorf("read page %d (state %s): %w", pba, p.oob.State, ErrNotValid)
	}
	out := make([]byte, len(p.data))
	copy(out, p.data)
	return out, nil
}

// EraseBlock resets every page of the block to Free and scrubs payloads
// to the erased 0xFF pattern. The block's erase counter and the device's
// erase total both advance.
func (d *Device) EraseBlock(idx int) error {
	if idx < 0 || idx >= d.geo.Blocks {
		return fmt.Errorf("erase block %d: %w", idx, ErrOutOfRange)
	}
	d.blocks[idx].erase()
	d.totalBlockErases++
	return nil
}

// ───────────────────────────────────────────────────────────────────────────
// State accessors
// ───────────────────────────────────────────────────────────────────────────

// State returns the state of the page at pba, or PageFree and false when
// pba is out of range.
func (d *Device) State(pba PBA) (PageState, bool) {
	_, p := d.pageAt(pba)
	if p == nil {
		return PageFree, false
	}
	return p.oob.State, true
}

// SetState moves a page between states without touching its data. It is
// the only sanctioned Valid→Invalid transition and keeps the per-block
// invalid counter coherent. Out-of-range PBAs are a silent no-op; callers
// on the normal paths never pass one.
func (d *Device) SetState(pba PBA, s PageState) {
	b, p := d.pageAt(pba)
	if p == nil {
		return
	}
	if p.oob.State == PageInvalid && s != PageInvalid {
		b.invalidPages--
	}
	if p.oob.State != PageInvalid && s == PageInvalid {
		b.invalidPages++
	}
	p.oob.State = s
}

// OOBAt returns the OOB record of the page at pba.
func (d *Device) OOBAt(pba PBA) (OOB, bool) {
	_, p := d.pageAt(pba)
	if p == nil {
		return OOB{}, false
	}
	return p.oob, true
}

// ───────────────────────────────────────────────────────────────────────────
// Aggregate queries
// ───────────────────────────────────────────────────────────────────────────

// CountFreePages scans the device and returns the number of Free pages.
func (d *Device) CountFreePages() int {
	n := 0
	for bi := range d.blocks {
		for pi := range d.blocks[bi].pages {
			if d.blocks[bi].pages[pi].oob.State == PageFree {
				n++
			}
		}
	}
	return n
}

// InvalidInBlock returns the cached invalid-page count of one block.
func (d *Device) InvalidInBlock(idx int) int {
	if idx < 0 || idx >= d.geo.Blocks {
		return 0
	}
	return d.blocks[idx].invalidPages
}

// EraseCount returns the lifetime erase count of one block.
func (d *Device) EraseCount(idx int) uint32 {
	if idx < 0 || idx >= d.geo.Blocks {
		return 0
	}
	return d.blocks[idx].eraseCount
}

// TotalPageWrites returns the lifetime count of successful page programs.
func (d *Device) TotalPageWrites() uint64 { return d.totalPageWrites }

// TotalBlockErases returns the lifetime count of block erases.
func (d *Device) TotalBlockErases() uint64 { return d.totalBlockErases }

// BlockCensus counts the pages of one block by state. Used by the stats
// surfaces; it recounts rather than trusting caches so the printout can
// double as a coherence check.
func (d *Device) BlockCensus(idx int) (free, valid, invalid int) {
	if idx < 0 || idx >= d.geo.Blocks {
		return 0, 0, 0
	}
	for pi := range d.blocks[idx].pages {
		switch d.blocks[idx].pages[pi].oob.State {
		case PageFree:
			free++
		case PageValid:
			valid++
		case PageInvalid:
			invalid++
		}
	}
	return free, valid, invalid
}
