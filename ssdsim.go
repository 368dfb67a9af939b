// Package ssdsim is the public face of the NAND SSD simulator. It wires
// the device model, the flash translation layer, and the legacy host
// interface into one handle with an explicit open/close lifecycle.
//
// Quick start:
//
//	ssd, err := ssdsim.Open(config.Default())
//	if err != nil { ... }
//	defer ssd.Close()
//
//	ssd.WriteValue(3, 0xAAAABBBB)
//	v := ssd.ReadValue(3)
//
// The simulator is strictly single-threaded: callers serialize access
// themselves (cmd/server does so behind a mutex).
package ssdsim

import (
	"github.com/sonoasy/ssdsim/internal/config"
	"github.com/sonoasy/ssdsim/internal/ftl"
	"github.com/sonoasy/ssdsim/internal/host"
	"github.com/sonoasy/ssdsim/internal/nand"
	"github.com/sonoasy/ssdsim/internal/trace"
)

// Config aliases the configuration type so callers need only this
// package and internal/config.
type Config = config.Config

// DefaultConfig returns the reference simulator configuration.
func DefaultConfig() Config { return config.Default() }

// SSD is an open simulator instance.
type SSD struct {
	h   *host.Host
	rec *trace.Recorder
	cfg Config
}

// Open restores or formats a device per cfg and builds the host stack
// over it. Image loss or corruption yields a fresh device, never an
// error.
func Open(cfg Config) (*SSD, error) {
	f, err := ftl.Open(ftl.Config{
		Geometry:  cfg.NANDGeometry(),
		ImagePath: cfg.ImagePath,
	})
	if err != nil {
		return nil, err
	}
	var rec *trace.Recorder
	if cfg.TracePath != "" {
		rec = trace.NewRecorder(cfg.TraceCapacity)
	}
	h := host.New(f, host.Options{
		ResultPath: cfg.ResultPath,
		Recorder:   rec,
	})
	return &SSD{h: h, rec: rec, cfg: cfg}, nil
}

// Host returns the legacy host interface for shell-style use.
func (s *SSD) Host() *host.Host { return s.h }

// FTL returns the translation layer for inspection.
func (s *SSD) FTL() *ftl.FTL { return s.h.FTL() }

// Write stores a raw payload (at most one page) at lba.
func (s *SSD) Write(lba int, payload []byte) error {
	return s.h.FTL().Write(nand.LBA(lba), payload)
}

// Read returns the payload most recently written to lba.
func (s *SSD) Read(lba int) ([]byte, error) {
	return s.h.FTL().Read(nand.LBA(lba))
}

// WriteValue stores a 32-bit host value at lba using the legacy page
// encoding.
func (s *SSD) WriteValue(lba int, v uint32) error {
	return s.h.Write(lba, host.FormatHexWord(v))
}

// ReadValue returns the 32-bit host value at lba; 0 when unmapped.
func (s *SSD) ReadValue(lba int) uint32 {
	return s.h.Read(lba)
}

// ForceGC runs one garbage collection pass.
func (s *SSD) ForceGC() (*ftl.GCResult, error) { return s.h.ForceGC() }

// Stats returns a counter snapshot.
func (s *SSD) Stats() ftl.Stats { return s.h.FTL().Stats() }

// Close persists the device image and, when tracing is enabled, exports
// the trace database.
func (s *SSD) Close() error {
	err := s.h.Shutdown()
	if s.rec != nil && s.cfg.TracePath != "" {
		if expErr := s.rec.ExportSQLite(s.cfg.TracePath); err == nil {
			err = expErr
		}
	}
	return err
}
