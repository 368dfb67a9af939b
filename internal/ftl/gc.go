package ftl

import (
	"fmt"

	"github.com/sonoasy/ssdsim/internal/nand"
)

// ───────────────────────────────────────────────────────────────────────────
// Garbage collector
// ───────────────────────────────────────────────────────────────────────────
//
// Victim policy is greedy: the block with the most invalid pages wins,
// lowest index breaking ties. Greedy maximizes pages reclaimed per erase
// and ignores wear balance — the simulator models the amplification this
// produces instead of hiding it.
//
// Reclamation copies every still-Valid page of the victim to a freshly
// allocated page (updating the map as it goes), then erases the victim.
// A pass that runs out of free pages mid-migration aborts and keeps its
// partial progress; every intermediate state still satisfies the map
// consistency invariant, and the pages already migrated have freed
// nothing yet, so the caller sees ErrNoFreePage.

// GCResult holds statistics about one garbage collection pass.
type GCResult struct {
	Victim       int  // victim block index
	InvalidPages int  // invalid pages in the victim at selection
	Migrated     int  // valid pages copied out
	Erased       bool // whether the pass completed with a block erase
}

// ForceGC runs one garbage collection pass on demand. It returns
// ErrNoVictim when no block has anything to reclaim.
func (f *FTL) ForceGC() (*GCResult, error) {
	return f.collect()
}

// GCRuns returns the number of completed passes this session.
func (f *FTL) GCRuns() uint64 { return f.gcRuns }

// selectVictim returns the block with the maximum invalid-page count
// strictly greater than zero, lowest index first.
func (f *FTL) selectVictim() (int, bool) {
	victim, best := -1, 0
	for b := 0; b < f.dev.Geometry().Blocks; b++ {
		if n := f.dev.InvalidInBlock(b); n > best {
			victim, best = b, n
		}
	}
	return victim, victim >= 0
}

func (f *FTL) collect() (*GCResult, error) {
	victim, ok := f.selectVictim()
	if !ok {
		return nil, ErrNoVictim
	}

	geo := f.dev.Geometry()
	res := &GCResult{
		Victim:       victim,
		InvalidPages: f.dev.InvalidInBlock(victim),
	}

	base := victim * geo.PagesPerBlock
	for p := 0; p < geo.PagesPerBlock; p++ {
		pba := nand.PBA(base + p)
		oob, _ := f.dev.OOBAt(pba)
		if oob.State != nand.PageValid {
			continue
		}
		// A back-pointer outside the logical space means a corrupt OOB;
		// skip the page rather than strand the whole pass.
		if int(oob.LBA) >= geo.LogicalPages {
			continue
		}

		payload, err := f.dev.ReadPage(pba)
		if err != nil {
			return res, fmt.Errorf("gc block %d: read pba %d: %w", victim, pba, err)
		}
		dst, err := f.allocateSkipping(victim)
		if err != nil {
			// Out of space mid-pass: keep partial progress, no erase.
			return res, fmt.Errorf("gc block %d: %w", victim, err)
		}
		if err := f.dev.ProgramPage(dst, payload, oob.LBA); err != nil {
			return res, fmt.Errorf("gc block %d: program pba %d: %w", victim, dst, err)
		}
		f.l2p[oob.LBA] = dst
		f.dev.SetState(pba, nand.PageInvalid)
		res.Migrated++
	}

	if err := f.dev.EraseBlock(victim); err != nil {
		return res, fmt.Errorf("gc block %d: %w", victim, err)
	}
	res.Erased = true
	f.gcRuns++
	return res, nil
}
