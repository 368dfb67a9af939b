// Package trace records host and GC operations in a bounded ring and can
// export them to a SQLite file for offline analysis of write
// amplification behavior.
package trace

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Kind labels one recorded operation.
type Kind string

const (
	KindWrite Kind = "write"
	KindRead  Kind = "read"
	KindGC    Kind = "gc"
	KindSave  Kind = "save"
)

// Event is one recorded operation.
type Event struct {
	Seq      uint64
	Time     int64 // unix seconds
	Kind     Kind
	LBA      int // -1 when not applicable
	Victim   int // GC victim block, -1 when not applicable
	Migrated int // GC pages migrated
	Err      string
	Duration time.Duration
}

// Recorder is a fixed-capacity ring of events. The zero value is unusable;
// call NewRecorder. Not safe for concurrent use — callers on the
// single-threaded host path need no locking, and the server serializes
// access along with the FTL itself.
type Recorder struct {
	max    int
	seq    uint64
	events []Event
}

// DefaultCapacity bounds the ring when NewRecorder gets zero.
const DefaultCapacity = 4096

// NewRecorder creates a recorder holding at most max events.
func NewRecorder(max int) *Recorder {
	if max <= 0 {
		max = DefaultCapacity
	}
	return &Recorder{max: max, events: make([]Event, 0, max)}
}

// Record appends an event, evicting the oldest when full. The sequence
// number keeps counting across evictions.
func (r *Recorder) Record(e Event) {
	e.Seq = r.seq
	r.seq++
	if e.Time == 0 {
		e.Time = time.Now().Unix()
	}
	if len(r.events) < r.max {
		r.events = append(r.events, e)
		return
	}
	copy(r.events, r.events[1:])
	r.events[len(r.events)-1] = e
}

// Len returns the number of retained events.
func (r *Recorder) Len() int { return len(r.events) }

// Total returns the number of events ever recorded.
func (r *Recorder) Total() uint64 { return r.seq }

// Events returns the retained events in chronological order.
func (r *Recorder) Events() []Event {
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ExportSQLite writes the retained events to a SQLite database at path,
// creating the trace_events table if needed. Existing rows are kept, so
// successive exports from one session accumulate.
func (r *Recorder) ExportSQLite(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("trace export: %w", err)
	}
	defer db.Close()

	const schema = `CREATE TABLE IF NOT EXISTS trace_events (
		seq         INTEGER PRIMARY KEY,
		time        INTEGER NOT NULL,
		kind        TEXT    NOT NULL,
		lba         INTEGER,
		victim      INTEGER,
		migrated    INTEGER,
		err         TEXT,
		duration_ns INTEGER
	)`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("trace export: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("trace export: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO trace_events
		(seq, time, kind, lba, victim, migrated, err, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("trace export: %w", err)
	}
	defer stmt.Close()

	for _, e := range r.events {
		if _, err := stmt.Exec(e.Seq, e.Time, string(e.Kind), e.LBA, e.Victim, e.Migrated, e.Err, int64(e.Duration)); err != nil {
			tx.Rollback()
			return fmt.Errorf("trace export seq %d: %w", e.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("trace export: %w", err)
	}
	return nil
}
