package mpi

import (
	"sync"
	"time"
)

// LocalWorld runs every rank in this process. Ranks share nothing but
// the router; each one should be driven by its own goroutine.
type LocalWorld struct {
	boxes []*mailbox
	comms []*comm

	mu        sync.Mutex
	abortCode int
	aborted   bool
}

func NewLocalWorld(n int) *LocalWorld {
	w := &LocalWorld{}
	epoch := time.Now()
	for i := 0; i < n; i++ {
		w.boxes = append(w.boxes, newMailbox())
	}
	for i := 0; i < n; i++ {
		w.comms = append(w.comms, newComm(i, n, w.boxes[i], w, epoch))
	}
	return w
}

func (w *LocalWorld) Size() int {
	return len(w.comms)
}

func (w *LocalWorld) Comm(rank int) Comm {
	return w.comms[rank]
}

// Run calls fn once per rank, concurrently, and returns the per-rank
// errors in rank order.
func (w *LocalWorld) Run(fn func(Comm) error) []error {
	errs := make([]error, len(w.comms))
	var wg sync.WaitGroup
	wg.Add(len(w.comms))
	for i, c := range w.comms {
		go func(i int, c Comm) {
			defer wg.Done()
			errs[i] = fn(c)
		}(i, c)
	}
	wg.Wait()
	return errs
}

// Aborted returns the code passed to the first Abort.
func (w *LocalWorld) Aborted() (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.abortCode, w.aborted
}

func (w *LocalWorld) send(src, dest int, tag int, payload []byte) error {
	return w.boxes[dest].put(src, tag, append([]byte(nil), payload...))
}

func (w *LocalWorld) abort(code int) {
	w.mu.Lock()
	if !w.aborted {
		w.aborted, w.abortCode = true, code
	}
	w.mu.Unlock()
	for _, b := range w.boxes {
		b.abort()
	}
}

func (w *LocalWorld) close() error {
	return nil
}
