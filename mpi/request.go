package mpi

type request struct {
	done chan struct{}
	err  error
}

func newRequest() *request {
	return &request{done: make(chan struct{})}
}

func completed(err error) *request {
	r := newRequest()
	r.finish(err)
	return r
}

func (r *request) finish(err error) {
	r.err = err
	close(r.done)
}

func (r *request) Wait() error {
	<-r.done
	return r.err
}

func (r *request) Test() (bool, error) {
	select {
	case <-r.done:
		return true, r.err
	default:
		return false, nil
	}
}
