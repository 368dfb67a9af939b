// Package ftl implements the flash translation layer on top of the NAND
// device model: the logical-to-physical map, the sequential page
// allocator, the greedy garbage collector, and write-amplification
// accounting.
//
// The FTL owns its device exclusively. All operations are synchronous and
// single-threaded; garbage collection runs inline with the host write
// that triggered it.
package ftl

import (
	"errors"
	"fmt"
	"os"

	"github.com/sonoasy/ssdsim/internal/nand"
)

// ───────────────────────────────────────────────────────────────────────────
// Errors
// ───────────────────────────────────────────────────────────────────────────

var (
	// ErrOutOfRange reports an LBA outside the logical address space.
	ErrOutOfRange = errors.New("lba out of range")

	// ErrNotMapped reports a read of an LBA that was never written.
	ErrNotMapped = errors.New("lba not mapped")

	// ErrNoFreePage reports allocator exhaustion.
	ErrNoFreePage = errors.New("no free page")

	// ErrNoVictim reports that no block has any invalid page to reclaim.
	ErrNoVictim = errors.New("no gc victim")

	// ErrDeviceFull reports a host write that could not proceed even
	// after garbage collection.
	ErrDeviceFull = errors.New("device full")

	// ErrProgramFailed wraps a NAND program error on the write path.
	ErrProgramFailed = errors.New("page program failed")
)

// ───────────────────────────────────────────────────────────────────────────
// FTL
// ───────────────────────────────────────────────────────────────────────────

// Config configures an FTL instance.
type Config struct {
	// Geometry of the device. Zero value means nand.DefaultGeometry.
	Geometry nand.Geometry

	// ImagePath is the device image file. Empty disables persistence.
	// A missing or unreadable image is not an error: the device starts
	// fresh and the image is written at Close.
	ImagePath string
}

// FTL is the flash translation layer. Not safe for concurrent use.
type FTL struct {
	dev       *nand.Device
	imagePath string

	// l2p maps LBA → PBA; nand.UnmappedPBA marks unbound entries. It is
	// a cache of the OOB back-pointers, rebuilt from them at open.
	l2p []nand.PBA

	// nextFree is the allocator cursor. It is a hint only — allocation
	// scans the whole device with wraparound — and is not persisted.
	nextFree uint32

	// Per-session counters, reset on every open.
	hostWrites uint64
	gcRuns     uint64

	// restored reports whether the device came from an image.
	restored bool
}

// Open creates an FTL over a device restored from cfg.ImagePath, or over
// a freshly formatted device when no usable image exists. Image loss or
// corruption is deliberately not fatal.
func Open(cfg Config) (*FTL, error) {
	geo := cfg.Geometry
	if geo == (nand.Geometry{}) {
		geo = nand.DefaultGeometry()
	}
	if err := geo.Validate(); err != nil {
		return nil, err
	}

	var (
		dev      *nand.Device
		restored bool
	)
	if cfg.ImagePath != "" {
		if _, err := os.Stat(cfg.ImagePath); err == nil {
			if loaded, err := nand.LoadImage(cfg.ImagePath); err == nil && loaded.Geometry() == geo {
				dev, restored = loaded, true
			}
		}
	}
	if dev == nil {
		var err error
		dev, err = nand.New(geo)
		if err != nil {
			return nil, err
		}
	}

	f := &FTL{
		dev:       dev,
		imagePath: cfg.ImagePath,
		l2p:       make([]nand.PBA, geo.LogicalPages),
		restored:  restored,
	}
	f.rebuildMap()
	return f, nil
}

// NewWithDevice wraps an existing device without persistence. Used by
// tests that need direct control of the device.
func NewWithDevice(dev *nand.Device) *FTL {
	f := &FTL{
		dev: dev,
		l2p: make([]nand.PBA, dev.Geometry().LogicalPages),
	}
	f.rebuildMap()
	return f
}

// Device exposes the underlying NAND model for inspection.
func (f *FTL) Device() *nand.Device { return f.dev }

// Restored reports whether the device state came from a persisted image.
func (f *FTL) Restored() bool { return f.restored }

// ───────────────────────────────────────────────────────────────────────────
// Host write / read path
// ───────────────────────────────────────────────────────────────────────────

// Write stores payload at lba. The previous placement, if any, is
// invalidated first; a free page is then allocated (running garbage
// collection once if none is available), programmed with the payload and
// the LBA back-pointer, and bound in the map.
func (f *FTL) Write(lba nand.LBA, payload []byte) error {
	if int(lba) >= f.dev.Geometry().LogicalPages {
		return fmt.Errorf("write lba %d: %w", lba, ErrOutOfRange)
	}
	f.hostWrites++

	// Invalidate the superseded placement before allocating. The old
	// page is Valid at this point, so the allocator cannot hand it back.
	if old := f.l2p[lba]; old != nand.UnmappedPBA {
		f.dev.SetState(old, nand.PageInvalid)
	}

	pba, err := f.allocate()
	if errors.Is(err, ErrNoFreePage) {
		// One reclamation attempt, then one retry. "Nothing to reclaim"
		// and a pass that ran out of free pages mid-migration both fall
		// through to the retry; any other GC failure is returned.
		if _, gcErr := f.collect(); gcErr != nil && !errors.Is(gcErr, ErrNoVictim) && !errors.Is(gcErr, ErrNoFreePage) {
			return fmt.Errorf("write lba %d: gc: %w", lba, gcErr)
		}
		pba, err = f.allocate()
	}
	if err != nil {
		// The superseded page is already Invalid; drop the binding so the
		// map never points at a non-Valid page.
		f.l2p[lba] = nand.UnmappedPBA
		return fmt.Errorf("write lba %d: %w", lba, ErrDeviceFull)
	}

	if err := f.dev.ProgramPage(pba, payload, lba); err != nil {
		f.l2p[lba] = nand.UnmappedPBA
		return fmt.Errorf("write lba %d: %w: %w", lba, ErrProgramFailed, err)
	}
	f.l2p[lba] = pba
	return nil
}

// Read returns a copy of the payload most recently written to lba.
func (f *FTL) Read(lba nand.LBA) ([]byte, error) {
	if int(lba) >= f.dev.Geometry().LogicalPages {
		return nil, fmt.Errorf("read lba %d: %w", lba, ErrOutOfRange)
	}
	pba := f.l2p[lba]
	if pba == nand.UnmappedPBA {
		return nil, fmt.Errorf("read lba %d: %w", lba, ErrNotMapped)
	}
	data, err := f.dev.ReadPage(pba)
	if err != nil {
		return nil, fmt.Errorf("read lba %d (pba %d): %w", lba, pba, err)
	}
	return data, nil
}

// ───────────────────────────────────────────────────────────────────────────
// Lifecycle
// ───────────────────────────────────────────────────────────────────────────

// Save writes the device image. A no-op without an image path.
func (f *FTL) Save() error {
	if f.imagePath == "" {
		return nil
	}
	return f.dev.SaveImage(f.imagePath)
}

// Close persists the device image. The FTL must not be used afterwards.
func (f *FTL) Close() error {
	return f.Save()
}
