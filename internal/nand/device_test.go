package nand

import (
	"bytes"
	"errors"
	"testing"
)

// testGeometry is small enough to exhaust in tests: 3 blocks of 4 pages.
func testGeometry() Geometry {
	return Geometry{
		PageSize:      32,
		OOBSize:       DefaultOOBSize,
		PagesPerBlock: 4,
		Blocks:        3,
		LogicalPages:  6,
	}
}

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	d, err := New(testGeometry())
	if err != nil {
		t.Fatal(err)
	}
	d.SetClock(func() int64 { return 1000 })
	return d
}

func TestGeometry_Validate(t *testing.T) {
	if err := DefaultGeometry().Validate(); err != nil {
		t.Fatalf("default geometry invalid: %v", err)
	}
	bad := testGeometry()
	bad.LogicalPages = bad.TotalPages() + 1
	if err := bad.Validate(); err == nil {
		t.Error("expected error for logical > physical")
	}
	bad = testGeometry()
	bad.OOBSize = 4
	if err := bad.Validate(); err == nil {
		t.Error("expected error for OOB below record size")
	}
}

func TestProgramRead_RoundTrip(t *testing.T) {
	d := newTestDevice(t)
	payload := bytes.Repeat([]byte{0xA5}, 32)

	if err := d.ProgramPage(0, payload, 3); err != nil {
		t.Fatal(err)
	}
	got, err := d.ReadPage(0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch: got % x", got)
	}

	oob, ok := d.OOBAt(0)
	if !ok {
		t.Fatal("OOBAt(0) out of range")
	}
	if oob.State != PageValid || oob.LBA != 3 || oob.WriteCount != 1 || oob.Timestamp != 1000 {
		t.Errorf("unexpected OOB: %+v", oob)
	}
	if d.TotalPageWrites() != 1 {
		t.Errorf("TotalPageWrites = %d, want 1", d.TotalPageWrites())
	}
}

func TestProgram_ShortPayloadZeroPadded(t *testing.T) {
	d := newTestDevice(t)
	if err := d.ProgramPage(0, []byte{1, 2, 3, 4}, 0); err != nil {
		t.Fatal(err)
	}
	got, err := d.ReadPage(0)
	if err != nil {
		t.Fatal(err)
	}
	want := make([]byte, 32)
	copy(want, []byte{1, 2, 3, 4})
	if !bytes.Equal(got, want) {
		t.Errorf("got % x", got)
	}
}

func TestProgram_OverwriteRefused(t *testing.T) {
	d := newTestDevice(t)
	if err := d.ProgramPage(5, []byte{1}, 0); err != nil {
		t.Fatal(err)
	}
	err := d.ProgramPage(5, []byte{2}, 0)
	if !errors.Is(err, ErrOverwrite) {
		t.Fatalf("expected ErrOverwrite, got %v", err)
	}
	// The refused program must not count or mutate.
	if d.TotalPageWrites() != 1 {
		t.Errorf("TotalPageWrites = %d, want 1", d.TotalPageWrites())
	}
	got, _ := d.ReadPage(5)
	if got[0] != 1 {
		t.Error("payload changed by refused program")
	}

	// Invalid pages are not programmable either.
	d.SetState(5, PageInvalid)
	if err := d.ProgramPage(5, []byte{3}, 0); !errors.Is(err, ErrOverwrite) {
		t.Fatalf("expected ErrOverwrite on invalid page, got %v", err)
	}
}

func TestProgram_Errors(t *testing.T) {
	d := newTestDevice(t)
	if err := d.ProgramPage(PBA(testGeometry().TotalPages()), []byte{1}, 0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if err := d.ProgramPage(0, make([]byte, 33), 0); !errors.Is(err, ErrPayloadSize) {
		t.Errorf("expected ErrPayloadSize, got %v", err)
	}
}

func TestRead_Errors(t *testing.T) {
	d := newTestDevice(t)
	if _, err := d.ReadPage(0); !errors.Is(err, ErrNotValid) {
		t.Errorf("read of free page: expected ErrNotValid, got %v", err)
	}
	if _, err := d.ReadPage(9999); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}

	if err := d.ProgramPage(1, []byte{1}, 0); err != nil {
		t.Fatal(err)
	}
	d.SetState(1, PageInvalid)
	if _, err := d.ReadPage(1); !errors.Is(err, ErrNotValid) {
		t.Errorf("read of invalid page: expected ErrNotValid, got %v", err)
	}
}

func TestSetState_InvalidCountCoherence(t *testing.T) {
	d := newTestDevice(t)
	for p := 0; p < 4; p++ {
		if err := d.ProgramPage(PBA(p), []byte{byte(p)}, LBA(p)); err != nil {
			t.Fatal(err)
		}
	}

	d.SetState(0, PageInvalid)
	d.SetState(1, PageInvalid)
	if got := d.InvalidInBlock(0); got != 2 {
		t.Errorf("InvalidInBlock = %d, want 2", got)
	}
	// Re-invalidating must not double count.
	d.SetState(0, PageInvalid)
	if got := d.InvalidInBlock(0); got != 2 {
		t.Errorf("InvalidInBlock after repeat = %d, want 2", got)
	}
	// Leaving Invalid decrements.
	d.SetState(1, PageValid)
	if got := d.InvalidInBlock(0); got != 1 {
		t.Errorf("InvalidInBlock after revert = %d, want 1", got)
	}

	// The cached counter must agree with a recount.
	_, _, invalid := d.BlockCensus(0)
	if invalid != d.InvalidInBlock(0) {
		t.Errorf("census invalid %d != cached %d", invalid, d.InvalidInBlock(0))
	}

	// Out-of-range set is a silent no-op.
	d.SetState(PBA(testGeometry().TotalPages()+5), PageInvalid)
}

func TestEraseBlock_ResetsEverything(t *testing.T) {
	d := newTestDevice(t)
	for p := 0; p < 4; p++ {
		if err := d.ProgramPage(PBA(p), []byte{0xAB}, LBA(p)); err != nil {
			t.Fatal(err)
		}
	}
	d.SetState(2, PageInvalid)

	if err := d.EraseBlock(0); err != nil {
		t.Fatal(err)
	}
	if d.EraseCount(0) != 1 || d.TotalBlockErases() != 1 {
		t.Errorf("erase counters: block=%d device=%d", d.EraseCount(0), d.TotalBlockErases())
	}
	if d.InvalidInBlock(0) != 0 {
		t.Errorf("invalid count after erase = %d", d.InvalidInBlock(0))
	}
	for p := 0; p < 4; p++ {
		oob, _ := d.OOBAt(PBA(p))
		if oob.State != PageFree || oob.LBA != UnmappedLBA || oob.WriteCount != 0 {
			t.Errorf("page %d OOB after erase: %+v", p, oob)
		}
	}

	if err := d.EraseBlock(99); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestCountFreePages(t *testing.T) {
	d := newTestDevice(t)
	total := testGeometry().TotalPages()
	if got := d.CountFreePages(); got != total {
		t.Fatalf("fresh device free pages = %d, want %d", got, total)
	}
	for p := 0; p < 3; p++ {
		if err := d.ProgramPage(PBA(p), []byte{1}, LBA(p)); err != nil {
			t.Fatal(err)
		}
	}
	d.SetState(0, PageInvalid)
	if got := d.CountFreePages(); got != total-3 {
		t.Errorf("free pages = %d, want %d", got, total-3)
	}
}
