package host

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sonoasy/ssdsim/internal/ftl"
	"github.com/sonoasy/ssdsim/internal/nand"
	"github.com/sonoasy/ssdsim/internal/trace"
)

func testGeometry() nand.Geometry {
	return nand.Geometry{
		PageSize:      32,
		OOBSize:       nand.DefaultOOBSize,
		PagesPerBlock: 4,
		Blocks:        4,
		LogicalPages:  8,
	}
}

func newTestHost(t *testing.T) (*Host, *bytes.Buffer) {
	t.Helper()
	dev, err := nand.New(testGeometry())
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	h := New(ftl.NewWithDevice(dev), Options{
		Out:        &out,
		ResultPath: filepath.Join(t.TempDir(), "result.txt"),
	})
	return h, &out
}

// ───────────────────────────────────────────────────────────────────────────
// Hex codec
// ───────────────────────────────────────────────────────────────────────────

func TestParseHexWord(t *testing.T) {
	cases := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"0xAAAABBBB", 0xAAAABBBB, false},
		{"0x00000000", 0, false},
		{"0xdeadBEEF", 0xDEADBEEF, false},
		{"0xFFFFFFFF", 0xFFFFFFFF, false},
		{"AAAABBBB", 0, true},     // missing prefix
		{"0xAAAABBB", 0, true},    // too short
		{"0xAAAABBBBC", 0, true},  // too long
		{"0xGGGGGGGG", 0, true},   // bad digits
		{"0x1234 678", 0, true},   // embedded space
		{"", 0, true},
	}
	for _, c := range cases {
		got, err := ParseHexWord(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseHexWord(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHexWord(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseHexWord(%q) = 0x%08X, want 0x%08X", c.in, got, c.want)
		}
	}
}

func TestHexWord_FormatParseRoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 0xDEADBEEF, 0xFFFFFFFF} {
		s := FormatHexWord(v)
		if len(s) != HexWordLen {
			t.Errorf("FormatHexWord(0x%X) = %q, wrong length", v, s)
		}
		got, err := ParseHexWord(s)
		if err != nil || got != v {
			t.Errorf("round trip of 0x%X via %q: got 0x%X, err %v", v, s, got, err)
		}
	}
}

func TestEncodePayload_LittleEndianAtOffsetZero(t *testing.T) {
	p := EncodePayload(0xAABBCCDD, 32)
	if len(p) != 32 {
		t.Fatalf("payload length %d", len(p))
	}
	want := []byte{0xDD, 0xCC, 0xBB, 0xAA}
	if !bytes.Equal(p[:4], want) {
		t.Errorf("first bytes % x, want % x", p[:4], want)
	}
	for i := 4; i < 32; i++ {
		if p[i] != 0 {
			t.Fatalf("byte %d not zero-padded", i)
		}
	}
	if DecodePayload(p) != 0xAABBCCDD {
		t.Error("decode mismatch")
	}
}

// ───────────────────────────────────────────────────────────────────────────
// Host operations
// ───────────────────────────────────────────────────────────────────────────

func TestHost_WriteRead(t *testing.T) {
	h, _ := newTestHost(t)

	if err := h.Write(0, "0xAAAAAAAA"); err != nil {
		t.Fatal(err)
	}
	if got := h.Read(0); got != 0xAAAAAAAA {
		t.Errorf("read = 0x%08X", got)
	}
	s := h.FTL().Stats()
	if s.PageWrites != 1 || s.MappedLBAs != 1 {
		t.Errorf("stats: %+v", s)
	}

	// Overwrite supersedes.
	if err := h.Write(0, "0xBBBBBBBB"); err != nil {
		t.Fatal(err)
	}
	if got := h.Read(0); got != 0xBBBBBBBB {
		t.Errorf("read after overwrite = 0x%08X", got)
	}
	if s := h.FTL().Stats(); s.PageWrites != 2 || s.InvalidPages != 1 {
		t.Errorf("stats after overwrite: %+v", s)
	}
}

func TestHost_WriteRejections(t *testing.T) {
	h, _ := newTestHost(t)
	if err := h.Write(h.LogicalPages(), "0xAAAAAAAA"); err == nil {
		t.Error("expected range rejection")
	}
	if err := h.Write(-1, "0xAAAAAAAA"); err == nil {
		t.Error("expected negative index rejection")
	}
	if err := h.Write(0, "junk"); err == nil {
		t.Error("expected format rejection")
	}
	if s := h.FTL().Stats(); s.PageWrites != 0 {
		t.Errorf("rejected writes programmed pages: %+v", s)
	}
}

func TestHost_ReadFailuresReturnZero(t *testing.T) {
	h, _ := newTestHost(t)
	if got := h.Read(3); got != 0 {
		t.Errorf("unmapped read = 0x%08X, want 0", got)
	}
	if got := h.Read(-1); got != 0 {
		t.Errorf("out-of-range read = 0x%08X, want 0", got)
	}
	if got := h.Read(h.LogicalPages()); got != 0 {
		t.Errorf("out-of-range read = 0x%08X, want 0", got)
	}
}

func TestHost_ResultFileMirror(t *testing.T) {
	h, _ := newTestHost(t)
	if err := h.Write(7, "0xDEADBEEF"); err != nil {
		t.Fatal(err)
	}
	h.Read(7)

	data, err := os.ReadFile(h.resultPath)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(data)); got != "0xDEADBEEF" {
		t.Errorf("result file = %q", got)
	}

	// The mirror tracks the latest read.
	if err := h.Write(2, "0x12345678"); err != nil {
		t.Fatal(err)
	}
	h.Read(2)
	data, _ = os.ReadFile(h.resultPath)
	if got := strings.TrimSpace(string(data)); got != "0x12345678" {
		t.Errorf("result file after second read = %q", got)
	}
}

func TestHost_FullWriteFullRead(t *testing.T) {
	h, out := newTestHost(t)
	if err := h.FullWrite("0xABCDFFFF"); err != nil {
		t.Fatal(err)
	}
	h.FullRead()

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != h.LogicalPages() {
		t.Fatalf("fullread printed %d lines, want %d", len(lines), h.LogicalPages())
	}
	for i, ln := range lines {
		if ln != "0xABCDFFFF" {
			t.Errorf("line %d = %q", i, ln)
		}
	}
}

func TestHost_ForceGCAndPrints(t *testing.T) {
	h, out := newTestHost(t)
	for i := 0; i < 4; i++ {
		if err := h.Write(0, "0xAAAABBBB"); err != nil {
			t.Fatal(err)
		}
	}
	res, err := h.ForceGC()
	if err != nil {
		t.Fatal(err)
	}
	if res.InvalidPages == 0 {
		t.Errorf("gc found nothing: %+v", res)
	}

	out.Reset()
	h.PrintStatistics()
	if !strings.Contains(out.String(), "WAF") {
		t.Error("stats output missing WAF")
	}

	out.Reset()
	h.PrintL2P()
	if !strings.Contains(out.String(), "LBA   0") {
		t.Errorf("l2p output missing mapping:\n%s", out.String())
	}
}

func TestHost_TraceRecording(t *testing.T) {
	dev, err := nand.New(testGeometry())
	if err != nil {
		t.Fatal(err)
	}
	rec := trace.NewRecorder(16)
	h := New(ftl.NewWithDevice(dev), Options{
		Out:        &bytes.Buffer{},
		ResultPath: filepath.Join(t.TempDir(), "result.txt"),
		Recorder:   rec,
	})

	h.Write(0, "0xAAAAAAAA")
	h.Read(0)
	h.ForceGC()

	events := rec.Events()
	if len(events) != 3 {
		t.Fatalf("recorded %d events, want 3", len(events))
	}
	if events[0].Kind != trace.KindWrite || events[1].Kind != trace.KindRead || events[2].Kind != trace.KindGC {
		t.Errorf("event kinds: %v %v %v", events[0].Kind, events[1].Kind, events[2].Kind)
	}
	if events[2].Err == "" {
		t.Error("gc on clean device should record the no-victim error")
	}
}
