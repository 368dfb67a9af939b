package trace

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func TestRecorder_RingBounds(t *testing.T) {
	r := NewRecorder(4)
	for i := 0; i < 10; i++ {
		r.Record(Event{Kind: KindWrite, LBA: i})
	}
	if r.Len() != 4 {
		t.Fatalf("len = %d, want 4", r.Len())
	}
	if r.Total() != 10 {
		t.Errorf("total = %d, want 10", r.Total())
	}
	events := r.Events()
	// Oldest evicted; the ring keeps the last four in order.
	for i, e := range events {
		if e.LBA != 6+i {
			t.Errorf("event %d: lba %d, want %d", i, e.LBA, 6+i)
		}
		if e.Seq != uint64(6+i) {
			t.Errorf("event %d: seq %d, want %d", i, e.Seq, 6+i)
		}
	}
}

func TestRecorder_ExportSQLite(t *testing.T) {
	r := NewRecorder(8)
	r.Record(Event{Kind: KindWrite, LBA: 3, Victim: -1})
	r.Record(Event{Kind: KindRead, LBA: 3, Victim: -1})
	r.Record(Event{Kind: KindGC, LBA: -1, Victim: 2, Migrated: 5})

	path := filepath.Join(t.TempDir(), "trace.sqlite")
	if err := r.ExportSQLite(path); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM trace_events").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("exported %d rows, want 3", n)
	}

	var kind string
	var victim, migrated int
	err = db.QueryRow("SELECT kind, victim, migrated FROM trace_events WHERE seq = 2").Scan(&kind, &victim, &migrated)
	if err != nil {
		t.Fatal(err)
	}
	if kind != string(KindGC) || victim != 2 || migrated != 5 {
		t.Errorf("gc row: kind=%s victim=%d migrated=%d", kind, victim, migrated)
	}

	// A second export must be idempotent for retained rows.
	if err := r.ExportSQLite(path); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM trace_events").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("re-export duplicated rows: %d", n)
	}
}
