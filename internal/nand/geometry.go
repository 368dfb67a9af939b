// Package nand implements the NAND flash device model: fixed-geometry
// blocks of pages, page-program and block-erase semantics, out-of-band
// (OOB) metadata per page, and a binary on-disk image of the whole device.
//
// The model enforces the hardware constraints of real NAND at its API
// boundary: a page can only be programmed while Free, data is erased a
// whole block at a time, and erase resets every page of the block to the
// 0xFF pattern. Everything above this package (the FTL) has to work within
// those constraints.
package nand

import "fmt"

// ───────────────────────────────────────────────────────────────────────────
// Geometry
// ───────────────────────────────────────────────────────────────────────────

// Default geometry of the simulated device. These match the reference
// hardware profile: 2 KiB pages, 128 pages per block, 100 blocks.
const (
	DefaultPageSize      = 2048
	DefaultOOBSize       = 64
	DefaultPagesPerBlock = 128
	DefaultBlocks        = 100
	DefaultLogicalPages  = 100
)

// Geometry describes the physical and logical layout of a device. The
// zero value is not valid; use DefaultGeometry or fill every field.
type Geometry struct {
	PageSize      int // payload bytes per page
	OOBSize       int // out-of-band metadata bytes per page
	PagesPerBlock int
	Blocks        int
	LogicalPages  int // host-visible LBA count
}

// DefaultGeometry returns the reference device layout.
func DefaultGeometry() Geometry {
	return Geometry{
		PageSize:      DefaultPageSize,
		OOBSize:       DefaultOOBSize,
		PagesPerBlock: DefaultPagesPerBlock,
		Blocks:        DefaultBlocks,
		LogicalPages:  DefaultLogicalPages,
	}
}

// TotalPages returns the number of physical pages in the device.
func (g Geometry) TotalPages() int { return g.Blocks * g.PagesPerBlock }

// Validate checks that the geometry is usable. The OOB record needs
// oobRecordSize bytes; the remainder of the OOB area is reserved (ECC).
func (g Geometry) Validate() error {
	switch {
	case g.PageSize <= 0:
		return fmt.Errorf("geometry: page size %d", g.PageSize)
	case g.OOBSize < oobRecordSize:
		return fmt.Errorf("geometry: OOB size %d below record size %d", g.OOBSize, oobRecordSize)
	case g.PagesPerBlock <= 0:
		return fmt.Errorf("geometry: %d pages per block", g.PagesPerBlock)
	case g.Blocks <= 0:
		return fmt.Errorf("geometry: %d blocks", g.Blocks)
	case g.LogicalPages <= 0 || g.LogicalPages > g.TotalPages():
		return fmt.Errorf("geometry: %d logical pages for %d physical", g.LogicalPages, g.TotalPages())
	}
	return nil
}
