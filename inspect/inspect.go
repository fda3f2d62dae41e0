// Package inspect implements offline inspection of RBF files: listing
// frames, verifying every payload checksum and summarising frame sizes.
package inspect

import (
	"cmp"
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/caio/go-tdigest/v4"
	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sync/errgroup"

	"github.com/INLOpen/rbf/frame"
	"github.com/INLOpen/rbf/rbf"
)

// Listing is the result of a reverse scan: the frames found, newest first,
// and the reason the scan stopped early, if it did.
type Listing struct {
	Frames []rbf.FrameInfo
	// StopOffset is the fence-end position the scan ended at. It equals
	// frame.HeaderFenceSize after a clean scan.
	StopOffset int64
	ScanErr    error
}

// List scans f from its tail and collects every frame the scan yields.
func List(f *rbf.File, opts ...rbf.ScanOption) Listing {
	s := f.ScanReverse(opts...)
	var l Listing
	for info := range s.All() {
		l.Frames = append(l.Frames, info)
	}
	l.StopOffset = s.Offset()
	l.ScanErr = s.Err()
	return l
}

// Failure is one frame that failed full verification.
type Failure struct {
	Ticket frame.Ticket
	Tag    uint32
	Err    error
}

// VerifyReport summarises a Verify run.
type VerifyReport struct {
	Checked    int
	Failures   []Failure
	StopOffset int64
	// ScanErr is why the structural scan stopped before the header, if it
	// did. Frames below StopOffset were not checked.
	ScanErr error
}

// OK reports whether every frame verified and the scan reached the header.
func (r *VerifyReport) OK() bool { return len(r.Failures) == 0 && r.ScanErr == nil }

// Verify fully reads every frame the reverse scan finds, tombstones
// included, with up to concurrency reads in flight. Frame-level failures
// are collected in the report; the returned error is only set when ctx is
// cancelled. f must not be written to while Verify runs.
func Verify(ctx context.Context, f *rbf.File, concurrency int) (*VerifyReport, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	listing := List(f, rbf.WithTombstones())
	report := &VerifyReport{
		Checked:    len(listing.Frames),
		StopOffset: listing.StopOffset,
		ScanErr:    listing.ScanErr,
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, info := range listing.Frames {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pf, err := info.ReadPooledFrame()
			if err != nil {
				mu.Lock()
				report.Failures = append(report.Failures, Failure{Ticket: info.Ticket, Tag: info.Tag, Err: err})
				mu.Unlock()
				return nil
			}
			pf.Release()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("verify interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("verify interrupted: %w", err)
	}
	// Newest first, the order the scan yields.
	slices.SortFunc(report.Failures, func(a, b Failure) int {
		return cmp.Compare(b.Ticket.Offset(), a.Ticket.Offset())
	})
	return report, nil
}

// Stats describes the frames of one file.
type Stats struct {
	Frames        int
	Tombstones    int
	PayloadBytes  int64
	TailMetaBytes int64
	FrameBytes    int64
	FileBytes     int64
	// Overhead is FrameBytes / (PayloadBytes + TailMetaBytes); zero when the
	// file carries no data.
	Overhead float64
	// Frame length quantiles.
	P50, P90, P99 float64

	// Free and total space of the volume holding the file, when known.
	DiskFree  uint64
	DiskTotal uint64

	StopOffset int64
	ScanErr    error
}

// ComputeStats scans f with tombstones included and summarises frame sizes.
func ComputeStats(f *rbf.File) (*Stats, error) {
	td, err := tdigest.New()
	if err != nil {
		return nil, fmt.Errorf("tdigest.New failed: %w", err)
	}

	listing := List(f, rbf.WithTombstones())
	st := &Stats{
		FileBytes:  f.TailOffset(),
		StopOffset: listing.StopOffset,
		ScanErr:    listing.ScanErr,
	}
	for _, info := range listing.Frames {
		st.Frames++
		if info.Tombstone {
			st.Tombstones++
		}
		st.PayloadBytes += int64(info.PayloadLength)
		st.TailMetaBytes += int64(info.TailMetaLength)
		st.FrameBytes += int64(info.FrameLength())
		if err := td.Add(float64(info.FrameLength())); err != nil {
			return nil, fmt.Errorf("tdigest Add failed: %w", err)
		}
	}
	if data := st.PayloadBytes + st.TailMetaBytes; data > 0 {
		st.Overhead = float64(st.FrameBytes) / float64(data)
	}
	if td.Count() > 0 {
		st.P50 = td.Quantile(0.5)
		st.P90 = td.Quantile(0.9)
		st.P99 = td.Quantile(0.99)
	}

	if du, err := disk.Usage(filepath.Dir(f.Path())); err == nil {
		st.DiskFree = du.Free
		st.DiskTotal = du.Total
	}
	return st, nil
}
