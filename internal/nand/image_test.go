package nand

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tmpImagePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "nand_flash.bin")
}

func TestImage_SaveLoadRoundTrip(t *testing.T) {
	d := newTestDevice(t)
	for p := 0; p < 4; p++ {
		if err := d.ProgramPage(PBA(p), []byte{byte(0x10 + p)}, LBA(p)); err != nil {
			t.Fatal(err)
		}
	}
	d.SetState(1, PageInvalid)
	if err := d.EraseBlock(2); err != nil {
		t.Fatal(err)
	}

	path := tmpImagePath(t)
	if err := d.SaveImage(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadImage(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Geometry() != d.Geometry() {
		t.Fatalf("geometry mismatch: %+v", loaded.Geometry())
	}
	if loaded.Serial() != d.Serial() {
		t.Errorf("serial changed across restore")
	}
	if loaded.TotalPageWrites() != d.TotalPageWrites() || loaded.TotalBlockErases() != d.TotalBlockErases() {
		t.Errorf("lifetime counters not restored")
	}
	if loaded.EraseCount(2) != 1 {
		t.Errorf("block erase count not restored")
	}
	if loaded.InvalidInBlock(0) != 1 {
		t.Errorf("invalid count = %d, want 1", loaded.InvalidInBlock(0))
	}

	for p := 0; p < 4; p++ {
		wantOOB, _ := d.OOBAt(PBA(p))
		gotOOB, _ := loaded.OOBAt(PBA(p))
		if wantOOB != gotOOB {
			t.Errorf("page %d OOB mismatch: want %+v got %+v", p, wantOOB, gotOOB)
		}
	}
	want, _ := d.ReadPage(0)
	got, err := loaded.ReadPage(0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(want, got) {
		t.Error("payload mismatch after restore")
	}
}

func TestImage_InvalidCountRecomputed(t *testing.T) {
	d := newTestDevice(t)
	if err := d.ProgramPage(0, []byte{1}, 0); err != nil {
		t.Fatal(err)
	}
	d.SetState(0, PageInvalid)

	path := tmpImagePath(t)
	if err := d.SaveImage(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadImage(path)
	if err != nil {
		t.Fatal(err)
	}
	_, _, invalid := loaded.BlockCensus(0)
	if invalid != loaded.InvalidInBlock(0) {
		t.Errorf("cached %d != census %d", loaded.InvalidInBlock(0), invalid)
	}
}

func TestImage_LoadErrors(t *testing.T) {
	path := tmpImagePath(t)

	// Missing file.
	if _, err := LoadImage(path); err == nil {
		t.Error("expected error for missing file")
	}

	// Bad magic.
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x00}, 4096), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadImage(path); !errors.Is(err, ErrBadImage) {
		t.Errorf("expected ErrBadImage, got %v", err)
	}

	// Valid header, truncated body.
	d := newTestDevice(t)
	if err := d.SaveImage(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data[:len(data)/2], 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadImage(path); !errors.Is(err, ErrBadImage) {
		t.Errorf("truncated image: expected ErrBadImage, got %v", err)
	}

	// Corrupted header CRC.
	if err := d.SaveImage(path); err != nil {
		t.Fatal(err)
	}
	data, err = os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[imgBlocksOff] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadImage(path); !errors.Is(err, ErrBadImage) {
		t.Errorf("corrupt header: expected ErrBadImage, got %v", err)
	}

	// Trailing garbage.
	if err := d.SaveImage(path); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte{0xEE})
	f.Close()
	if _, err := LoadImage(path); !errors.Is(err, ErrBadImage) {
		t.Errorf("trailing data: expected ErrBadImage, got %v", err)
	}
}

func TestImage_ErasedPayloadScrubbed(t *testing.T) {
	d := newTestDevice(t)
	if err := d.ProgramPage(0, bytes.Repeat([]byte{0xAB}, 32), 0); err != nil {
		t.Fatal(err)
	}
	if err := d.EraseBlock(0); err != nil {
		t.Fatal(err)
	}

	// The image stores raw payload bytes, so the erase pattern is
	// observable there.
	path := tmpImagePath(t)
	if err := d.SaveImage(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	g := d.Geometry()
	firstPayload := imageHeaderSize + 8 + g.OOBSize
	for i := 0; i < g.PageSize; i++ {
		if data[firstPayload+i] != erasedByte {
			t.Fatalf("byte %d = 0x%02x, want 0xFF", i, data[firstPayload+i])
		}
	}
}

func TestReadImageSerial(t *testing.T) {
	d := newTestDevice(t)
	path := tmpImagePath(t)
	if err := d.SaveImage(path); err != nil {
		t.Fatal(err)
	}
	u, err := ReadImageSerial(path)
	if err != nil {
		t.Fatal(err)
	}
	if u != d.Serial() {
		t.Errorf("serial mismatch: %s vs %s", u, d.Serial())
	}
}
