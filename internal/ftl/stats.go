package ftl

import "github.com/sonoasy/ssdsim/internal/nand"

// ───────────────────────────────────────────────────────────────────────────
// Statistics
// ───────────────────────────────────────────────────────────────────────────

// BlockStats is the per-block census row.
type BlockStats struct {
	Index      int
	EraseCount uint32
	Free       int
	Valid      int
	Invalid    int
}

// Stats is a snapshot of the FTL and device counters.
type Stats struct {
	Serial string

	HostWrites  uint64 // host-issued writes this session
	PageWrites  uint64 // lifetime NAND page programs (GC copies included)
	BlockErases uint64 // lifetime block erases
	GCRuns      uint64 // completed GC passes this session

	FreePages    int
	ValidPages   int
	InvalidPages int
	MappedLBAs   int

	// WAF is total page writes over host writes, the user-visible cost
	// of garbage collection. 1.0 when no host writes have happened.
	WAF float64

	Blocks []BlockStats
}

// HostWrites returns the host write count this session.
func (f *FTL) HostWrites() uint64 { return f.hostWrites }

// WAF returns the current write amplification factor.
func (f *FTL) WAF() float64 {
	if f.hostWrites == 0 {
		return 1.0
	}
	return float64(f.dev.TotalPageWrites()) / float64(f.hostWrites)
}

// Stats builds a full census snapshot.
func (f *FTL) Stats() Stats {
	geo := f.dev.Geometry()
	s := Stats{
		Serial:      f.dev.Serial().String(),
		HostWrites:  f.hostWrites,
		PageWrites:  f.dev.TotalPageWrites(),
		BlockErases: f.dev.TotalBlockErases(),
		GCRuns:      f.gcRuns,
		WAF:         f.WAF(),
		Blocks:      make([]BlockStats, geo.Blocks),
	}
	for b := 0; b < geo.Blocks; b++ {
		free, valid, invalid := f.dev.BlockCensus(b)
		s.Blocks[b] = BlockStats{
			Index:      b,
			EraseCount: f.dev.EraseCount(b),
			Free:       free,
			Valid:      valid,
			Invalid:    invalid,
		}
		s.FreePages += free
		s.ValidPages += valid
		s.InvalidPages += invalid
	}
	for _, pba := range f.l2p {
		if pba != nand.UnmappedPBA {
			s.MappedLBAs++
		}
	}
	return s
}
