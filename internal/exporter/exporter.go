// Package exporter exposes the simulator's counters as Prometheus
// metrics. The collector snapshots the FTL on every scrape, so the
// metrics stay consistent with the printed statistics.
package exporter

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sonoasy/ssdsim/internal/ftl"
)

const namespace = "ssdsim"

// StatsSource yields a stats snapshot. *ftl.FTL satisfies it; the server
// wraps it with its lock.
type StatsSource interface {
	Stats() ftl.Stats
}

// Collector implements prometheus.Collector over an FTL.
type Collector struct {
	src StatsSource

	hostWrites   *prometheus.Desc
	pageWrites   *prometheus.Desc
	blockErases  *prometheus.Desc
	gcRuns       *prometheus.Desc
	waf          *prometheus.Desc
	pagesByState *prometheus.Desc
	mappedLBAs   *prometheus.Desc
	blockErase   *prometheus.Desc
	blockInvalid *prometheus.Desc
}

// NewCollector returns a Collector exposing simulator statistics.
func NewCollector(src StatsSource) *Collector {
	return &Collector{
		src: src,
		hostWrites: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "host_writes_total"),
			"Host-issued page writes this session.", nil, nil,
		),
		pageWrites: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "nand_page_writes_total"),
			"Lifetime NAND page programs, GC copies included.", nil, nil,
		),
		blockErases: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "nand_block_erases_total"),
			"Lifetime NAND block erases.", nil, nil,
		),
		gcRuns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "gc_runs_total"),
			"Completed garbage collection passes this session.", nil, nil,
		),
		waf: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "write_amplification_factor"),
			"NAND page writes per host write.", nil, nil,
		),
		pagesByState: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pages"),
			"Physical page count by state.", []string{"state"}, nil,
		),
		mappedLBAs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "mapped_lbas"),
			"Logical pages currently bound to a physical page.", nil, nil,
		),
		blockErase: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "block_erase_count"),
			"Lifetime erase count per block.", []string{"block"}, nil,
		),
		blockInvalid: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "block_invalid_pages"),
			"Invalid pages per block.", []string{"block"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hostWrites
	ch <- c.pageWrites
	ch <- c.blockErases
	ch <- c.gcRuns
	ch <- c.waf
	ch <- c.pagesByState
	ch <- c.mappedLBAs
	ch <- c.blockErase
	ch <- c.blockInvalid
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()

	ch <- prometheus.MustNewConstMetric(c.hostWrites, prometheus.CounterValue, float64(s.HostWrites))
	ch <- prometheus.MustNewConstMetric(c.pageWrites, prometheus.CounterValue, float64(s.PageWrites))
	ch <- prometheus.MustNewConstMetric(c.blockErases, prometheus.CounterValue, float64(s.BlockErases))
	ch <- prometheus.MustNewConstMetric(c.gcRuns, prometheus.CounterValue, float64(s.GCRuns))
	ch <- prometheus.MustNewConstMetric(c.waf, prometheus.GaugeValue, s.WAF)
	ch <- prometheus.MustNewConstMetric(c.pagesByState, prometheus.GaugeValue, float64(s.FreePages), "free")
	ch <- prometheus.MustNewConstMetric(c.pagesByState, prometheus.GaugeValue, float64(s.ValidPages), "valid")
	ch <- prometheus.MustNewConstMetric(c.pagesByState, prometheus.GaugeValue, float64(s.InvalidPages), "invalid")
	ch <- prometheus.MustNewConstMetric(c.mappedLBAs, prometheus.GaugeValue, float64(s.MappedLBAs))

	for _, b := range s.Blocks {
		label := strconv.Itoa(b.Index)
		ch <- prometheus.MustNewConstMetric(c.blockErase, prometheus.CounterValue, float64(b.EraseCount), label)
		ch <- prometheus.MustNewConstMetric(c.blockInvalid, prometheus.GaugeValue, float64(b.Invalid), label)
	}
}
