package mpi

import "sync"

type mailKey struct {
	src, tag int
}

// mailbox holds messages delivered to one rank, FIFO per (src, tag).
type mailbox struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queues  map[mailKey][][]byte
	aborted bool
}

func newMailbox() *mailbox {
	m := &mailbox{queues: map[mailKey][][]byte{}}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *mailbox) put(src, tag int, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.aborted {
		return ErrAborted
	}
	k := mailKey{src, tag}
	m.queues[k] = append(m.queues[k], payload)
	m.cond.Broadcast()
	return nil
}

func (m *mailbox) get(src, tag int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := mailKey{src, tag}
	for len(m.queues[k]) == 0 {
		if m.aborted {
			return nil, ErrAborted
		}
		m.cond.Wait()
	}
	q := m.queues[k]
	payload := q[0]
	q[0] = nil
	if len(q) == 1 {
		delete(m.queues, k)
	} else {
		m.queues[k] = q[1:]
	}
	return payload, nil
}

func (m *mailbox) abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted = true
	m.cond.Broadcast()
}
