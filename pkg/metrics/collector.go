package metrics

import (
	"github.com/RhyVis/meta-manager/pkg/types"
)

// RecordLister is the part of the store the collector reads
type RecordLister interface {
	List() ([]*types.Record, error)
}

// Collector refreshes the catalogue gauges from the store
type Collector struct {
	store RecordLister
}

// NewCollector creates a new metrics collector
func NewCollector(store RecordLister) *Collector {
	return &Collector{store: store}
}

// Collect recomputes the gauges in one pass over the library
func (c *Collector) Collect() error {
	recs, err := c.store.List()
	if err != nil {
		return err
	}

	var deployed int
	var bytes uint64
	for _, rec := range recs {
		if rec.IsDeployed() {
			deployed++
		}
		if size, ok := rec.Size(); ok {
			bytes += size
		}
	}

	EntriesTotal.Set(float64(len(recs)))
	EntriesDeployed.Set(float64(deployed))
	ArchiveBytes.Set(float64(bytes))
	return nil
}
