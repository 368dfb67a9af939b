// Package host implements the legacy host interface over the FTL: the
// 0xXXXXXXXX value codec, the result.txt mirror, full-device sweeps, and
// the printed statistics and mapping tables the shell exposes.
package host

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sonoasy/ssdsim/internal/ftl"
	"github.com/sonoasy/ssdsim/internal/nand"
	"github.com/sonoasy/ssdsim/internal/trace"
)

// DefaultResultPath is where read mirrors the last value.
const DefaultResultPath = "result.txt"

// Options configures a Host.
type Options struct {
	// Out receives printed tables and sweep output. Defaults to stdout.
	Out io.Writer

	// ResultPath is the read mirror file. Defaults to DefaultResultPath.
	ResultPath string

	// Recorder, when set, receives one trace event per operation.
	Recorder *trace.Recorder
}

// Host is the legacy single-device host interface. It owns the FTL handle
// for its lifetime; Shutdown persists and releases it.
type Host struct {
	ftl        *ftl.FTL
	out        io.Writer
	resultPath string
	rec        *trace.Recorder
}

// New wraps an FTL in the host interface.
func New(f *ftl.FTL, opts Options) *Host {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.ResultPath == "" {
		opts.ResultPath = DefaultResultPath
	}
	return &Host{
		ftl:        f,
		out:        opts.Out,
		resultPath: opts.ResultPath,
		rec:        opts.Recorder,
	}
}

// FTL returns the owned translation layer.
func (h *Host) FTL() *ftl.FTL { return h.ftl }

// LogicalPages returns the host-visible LBA count.
func (h *Host) LogicalPages() int {
	return h.ftl.Device().Geometry().LogicalPages
}

func (h *Host) record(e trace.Event) {
	if h.rec != nil {
		h.rec.Record(e)
	}
}

// ───────────────────────────────────────────────────────────────────────────
// Write / read
// ───────────────────────────────────────────────────────────────────────────

// Write parses word as a 0xXXXXXXXX literal and stores it at lba.
func (h *Host) Write(lba int, word string) error {
	start := time.Now()
	if lba < 0 || lba >= h.LogicalPages() {
		return fmt.Errorf("write lba %d: %w", lba, ftl.ErrOutOfRange)
	}
	v, err := ParseHexWord(word)
	if err != nil {
		return err
	}
	err = h.ftl.Write(nand.LBA(lba), EncodePayload(v, h.ftl.Device().Geometry().PageSize))
	ev := trace.Event{Kind: trace.KindWrite, LBA: lba, Victim: -1, Duration: time.Since(start)}
	if err != nil {
		ev.Err = err.Error()
	}
	h.record(ev)
	return err
}

// Read returns the value stored at lba, mirroring it as text to the
// result file. Failures return 0 — the legacy contract has no error
// channel on reads.
func (h *Host) Read(lba int) uint32 {
	start := time.Now()
	ev := trace.Event{Kind: trace.KindRead, LBA: lba, Victim: -1}
	defer func() {
		ev.Duration = time.Since(start)
		h.record(ev)
	}()

	if lba < 0 || lba >= h.LogicalPages() {
		ev.Err = ftl.ErrOutOfRange.Error()
		return 0
	}
	data, err := h.ftl.Read(nand.LBA(lba))
	if err != nil {
		ev.Err = err.Error()
		return 0
	}
	v := DecodePayload(data)
	if err := os.WriteFile(h.resultPath, []byte(FormatHexWord(v)+"\n"), 0o644); err != nil {
		ev.Err = err.Error()
	}
	return v
}

// FullWrite stores the same value at every LBA.
func (h *Host) FullWrite(word string) error {
	for lba := 0; lba < h.LogicalPages(); lba++ {
		if err := h.Write(lba, word); err != nil {
			return fmt.Errorf("fullwrite at lba %d: %w", lba, err)
		}
	}
	return nil
}

// FullRead prints every LBA's value, one 0xXXXXXXXX literal per line.
func (h *Host) FullRead() {
	for lba := 0; lba < h.LogicalPages(); lba++ {
		fmt.Fprintln(h.out, FormatHexWord(h.Read(lba)))
	}
}

// ───────────────────────────────────────────────────────────────────────────
// GC, stats, lifecycle
// ───────────────────────────────────────────────────────────────────────────

// ForceGC runs one reclamation pass and reports the outcome.
func (h *Host) ForceGC() (*ftl.GCResult, error) {
	start := time.Now()
	res, err := h.ftl.ForceGC()
	ev := trace.Event{Kind: trace.KindGC, LBA: -1, Victim: -1, Duration: time.Since(start)}
	if res != nil {
		ev.Victim = res.Victim
		ev.Migrated = res.Migrated
	}
	if err != nil {
		ev.Err = err.Error()
	}
	h.record(ev)
	return res, err
}

// PrintStatistics writes the FTL and device counters plus the block
// census to the output writer.
func (h *Host) PrintStatistics() {
	s := h.ftl.Stats()
	fmt.Fprintln(h.out, "=== SSD Statistics ===")
	fmt.Fprintf(h.out, "device serial     : %s\n", s.Serial)
	fmt.Fprintf(h.out, "host writes       : %d\n", s.HostWrites)
	fmt.Fprintf(h.out, "nand page writes  : %d\n", s.PageWrites)
	fmt.Fprintf(h.out, "block erases      : %d\n", s.BlockErases)
	fmt.Fprintf(h.out, "gc runs           : %d\n", s.GCRuns)
	fmt.Fprintf(h.out, "WAF               : %.3f\n", s.WAF)
	fmt.Fprintf(h.out, "pages free/valid/invalid : %d/%d/%d\n", s.FreePages, s.ValidPages, s.InvalidPages)
	fmt.Fprintf(h.out, "mapped LBAs       : %d/%d\n", s.MappedLBAs, h.LogicalPages())

	idle := 0
	for _, b := range s.Blocks {
		if b.Valid == 0 && b.Invalid == 0 && b.EraseCount == 0 {
			idle++
			continue
		}
		fmt.Fprintf(h.out, "  block %3d: erase=%d free=%d valid=%d invalid=%d\n",
			b.Index, b.EraseCount, b.Free, b.Valid, b.Invalid)
	}
	if idle > 0 {
		fmt.Fprintf(h.out, "  (%d blocks untouched)\n", idle)
	}
}

// PrintL2P writes one line per mapped LBA.
func (h *Host) PrintL2P() {
	fmt.Fprintln(h.out, "=== L2P Table ===")
	mapped := 0
	for lba, pba := range h.ftl.L2PSnapshot() {
		if pba == nand.UnmappedPBA {
			continue
		}
		fmt.Fprintf(h.out, "  LBA %3d -> PBA %5d\n", lba, pba)
		mapped++
	}
	if mapped == 0 {
		fmt.Fprintln(h.out, "  (empty)")
	}
}

// Shutdown persists the device image and releases the FTL. The host must
// not be used afterwards.
func (h *Host) Shutdown() error {
	start := time.Now()
	err := h.ftl.Close()
	ev := trace.Event{Kind: trace.KindSave, LBA: -1, Victim: -1, Duration: time.Since(start)}
	if err != nil {
		ev.Err = err.Error()
	}
	h.record(ev)
	return err
}
