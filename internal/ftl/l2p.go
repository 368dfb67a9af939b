package ftl

import (
	"github.com/sonoasy/ssdsim/internal/nand"
)

// ───────────────────────────────────────────────────────────────────────────
// L2P map
// ───────────────────────────────────────────────────────────────────────────

// Lookup returns the physical page currently bound to lba.
func (f *FTL) Lookup(lba nand.LBA) (nand.PBA, bool) {
	if int(lba) >= len(f.l2p) {
		return nand.UnmappedPBA, false
	}
	pba := f.l2p[lba]
	return pba, pba != nand.UnmappedPBA
}

// L2PSnapshot returns a copy of the mapping table. Unbound entries hold
// nand.UnmappedPBA.
func (f *FTL) L2PSnapshot() []nand.PBA {
	out := make([]nand.PBA, len(f.l2p))
	copy(out, f.l2p)
	return out
}

// rebuildMap reconstructs the L2P table from OOB back-pointers. The OOB
// record is the authoritative mapping; the in-memory table is only a
// cache of it. Pages with an out-of-range back-pointer are skipped — a
// corrupt image must not take the device down. If two Valid pages claim
// the same LBA the younger program wins and the loser is invalidated,
// which restores the one-Valid-page-per-LBA invariant.
func (f *FTL) rebuildMap() {
	for i := range f.l2p {
		f.l2p[i] = nand.UnmappedPBA
	}
	total := f.dev.Geometry().TotalPages()
	for p := 0; p < total; p++ {
		pba := nand.PBA(p)
		oob, ok := f.dev.OOBAt(pba)
		if !ok || oob.State != nand.PageValid {
			continue
		}
		if int(oob.LBA) >= len(f.l2p) {
			continue
		}
		prev := f.l2p[oob.LBA]
		if prev == nand.UnmappedPBA {
			f.l2p[oob.LBA] = pba
			continue
		}
		prevOOB, _ := f.dev.OOBAt(prev)
		if oob.Timestamp >= prevOOB.Timestamp {
			f.dev.SetState(prev, nand.PageInvalid)
			f.l2p[oob.LBA] = pba
		} else {
			f.dev.SetState(pba, nand.PageInvalid)
		}
	}
}

// ───────────────────────────────────────────────────────────────────────────
// Allocator
// ───────────────────────────────────────────────────────────────────────────

// allocate returns the next Free physical page, scanning the whole device
// from the cursor with wraparound. The cursor keeps programs sequential
// within a block when the device is not near-full; correctness never
// depends on where it points.
func (f *FTL) allocate() (nand.PBA, error) {
	return f.allocateSkipping(-1)
}

// allocateSkipping is allocate with one block excluded. Garbage
// collection excludes the victim so a migrant can never land on a page
// that the end of the pass is about to erase.
func (f *FTL) allocateSkipping(excludeBlock int) (nand.PBA, error) {
	geo := f.dev.Geometry()
	total := geo.TotalPages()
	for i := 0; i < total; i++ {
		pba := nand.PBA((int(f.nextFree) + i) % total)
		if excludeBlock >= 0 && int(pba)/geo.PagesPerBlock == excludeBlock {
			continue
		}
		if st, ok := f.dev.State(pba); ok && st == nand.PageFree {
			f.nextFree = uint32((int(pba) + 1) % total)
			return pba, nil
		}
	}
	return nand.UnmappedPBA, ErrNoFreePage
}
