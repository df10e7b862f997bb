// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package blockdevice

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// sectorFetcher is implemented by Device: fetching one logical sector from
// the remote page server, landing it in the local cache file, and
// registering the logical→physical mapping with the cache manager.
type sectorFetcher interface {
	fetchSector(logical uint64) error
}

// fetcher is the Front-End's background fetch worker pool: a
// bounded queue of pending logical sectors, deduplicated so a sector with a
// fetch already in flight is never queued twice, with every waiter for that
// sector woken by the single fetch that satisfies all of them.
type fetcher struct {
	target sectorFetcher

	mu      sync.Mutex
	pending map[uint64][]chan error
	queue   chan uint64

	group  *errgroup.Group
	cancel context.CancelFunc
}

// newFetcher starts workers background goroutines draining a queue of
// capacity queueDepth. Call stop to cancel and terminate them; fetches still
// queued at that point are dropped without completing.
func newFetcher(target sectorFetcher, workers, queueDepth int) *fetcher {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	f := &fetcher{
		target:  target,
		pending: make(map[uint64][]chan error),
		queue:   make(chan uint64, queueDepth),
		group:   group,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			f.run(ctx)
			return nil
		})
	}
	return f
}

func (f *fetcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case logical := <-f.queue:
			err := f.target.fetchSector(logical)
			f.complete(logical, err)
		}
	}
}

// request enqueues a fetch for logical if one is not already pending, and
// returns a channel that receives exactly one value (nil or the fetch
// error) once some fetch for logical completes.
func (f *fetcher) request(logical uint64) <-chan error {
	f.mu.Lock()
	defer f.mu.Unlock()

	done := make(chan error, 1)
	waiters, alreadyPending := f.pending[logical]
	f.pending[logical] = append(waiters, done)
	if !alreadyPending {
		f.queue <- logical
	}
	return done
}

func (f *fetcher) complete(logical uint64, err error) {
	f.mu.Lock()
	waiters := f.pending[logical]
	delete(f.pending, logical)
	f.mu.Unlock()

	for _, w := range waiters {
		w <- err
		close(w)
	}
}

// stop cancels outstanding work and waits for workers to exit. Fetches
// still queued when stop is called never complete; any waiter blocked on
// one of them must already be selecting on ctx or will block forever, so
// callers must stop only after quiescing new requests.
func (f *fetcher) stop() {
	f.cancel()
	f.group.Wait()
}
