package health

import (
	"context"
	"fmt"
	"os"
	"time"
)

// StoreProbe is the part of the library store a health check needs
type StoreProbe interface {
	WarmUp() error
	Count() (int, error)
}

// StoreChecker verifies the store accepts a write transaction
type StoreChecker struct {
	Store StoreProbe
}

// NewStoreChecker creates a new store health checker
func NewStoreChecker(store StoreProbe) *StoreChecker {
	return &StoreChecker{Store: store}
}

// Check performs the store health check
func (s *StoreChecker) Check(ctx context.Context) Result {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return failed(start, err.Error())
	}
	if err := s.Store.WarmUp(); err != nil {
		return failed(start, fmt.Sprintf("warm-up failed: %v", err))
	}
	n, err := s.Store.Count()
	if err != nil {
		return failed(start, fmt.Sprintf("count failed: %v", err))
	}

	return passed(start, fmt.Sprintf("%d entries", n))
}

// Type returns the health check type
func (s *StoreChecker) Type() CheckType {
	return CheckTypeStore
}

// DataDirChecker verifies a directory exists and is writable
type DataDirChecker struct {
	Dir string
}

// NewDataDirChecker creates a new data directory checker
func NewDataDirChecker(dir string) *DataDirChecker {
	return &DataDirChecker{Dir: dir}
}

// Check performs the data directory health check
func (d *DataDirChecker) Check(ctx context.Context) Result {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return failed(start, err.Error())
	}

	info, err := os.Stat(d.Dir)
	if err != nil {
		return failed(start, err.Error())
	}
	if !info.IsDir() {
		return failed(start, fmt.Sprintf("%s is not a directory", d.Dir))
	}

	f, err := os.CreateTemp(d.Dir, ".probe-*")
	if err != nil {
		return failed(start, fmt.Sprintf("not writable: %v", err))
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	return passed(start, d.Dir)
}

// Type returns the health check type
func (d *DataDirChecker) Type() CheckType {
	return CheckTypeDataDir
}
