package mpi

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/golang/glog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	transportService = "commbench.Transport"
	deliverMethod    = "/" + transportService + "/Deliver"
	abortMethod      = "/" + transportService + "/Abort"

	abortTimeout = 2 * time.Second
	stopTimeout  = 5 * time.Second
)

type transportServer interface {
	Deliver(ctx context.Context, e *envelope) (*ack, error)
	Abort(ctx context.Context, e *envelope) (*ack, error)
}

func transportHandler(method string, call func(transportServer, context.Context, *envelope) (*ack, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(envelope)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(transportServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(transportServer), ctx, req.(*envelope))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var transportDesc = grpc.ServiceDesc{
	ServiceName: transportService,
	HandlerType: (*transportServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deliver",
			Handler:    transportHandler(deliverMethod, transportServer.Deliver),
		},
		{
			MethodName: "Abort",
			Handler:    transportHandler(abortMethod, transportServer.Abort),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "commbench/transport",
}

// grpcRouter connects one rank process to its peers. Every rank serves
// Deliver on its own address and calls Deliver on the others in order,
// one call at a time, which keeps per-sender FIFO ordering.
type grpcRouter struct {
	rank    int
	box     *mailbox
	server  *grpc.Server
	conns   []*grpc.ClientConn
	timeout time.Duration

	closeOnce sync.Once
}

// DialGRPC starts rank's server on peers[rank] and prepares lazy client
// connections to every other peer. timeout bounds each delivery.
func DialGRPC(rank int, peers []string, timeout time.Duration) (Comm, error) {
	if rank < 0 || rank >= len(peers) {
		return nil, commErr("dial", fmt.Errorf("%w: %d of %d", ErrInvalidRank, rank, len(peers)))
	}
	lis, err := net.Listen("tcp", peers[rank])
	if err != nil {
		return nil, commErr("listen", err)
	}
	r := &grpcRouter{
		rank:    rank,
		box:     newMailbox(),
		server:  grpc.NewServer(grpc.ForceServerCodec(jsonCodec{})),
		conns:   make([]*grpc.ClientConn, len(peers)),
		timeout: timeout,
	}
	r.server.RegisterService(&transportDesc, r)
	go func() {
		if err := r.server.Serve(lis); err != nil {
			glog.Errorf("rank %d: transport server: %v", rank, err)
		}
	}()
	for i, addr := range peers {
		if i == rank {
			continue
		}
		conn, err := grpc.NewClient(addr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.WaitForReady(true)))
		if err != nil {
			r.close()
			return nil, commErr("dial", err)
		}
		r.conns[i] = conn
	}
	return newComm(rank, len(peers), r.box, r, time.Now()), nil
}

func (r *grpcRouter) Deliver(_ context.Context, e *envelope) (*ack, error) {
	if err := r.box.put(e.Src, e.Tag, e.Payload); err != nil {
		return nil, err
	}
	return &ack{}, nil
}

func (r *grpcRouter) Abort(_ context.Context, e *envelope) (*ack, error) {
	glog.Errorf("rank %d: aborted by rank %d with code %d", r.rank, e.Src, e.Code)
	r.box.abort()
	return &ack{}, nil
}

func (r *grpcRouter) send(src, dest, tag int, payload []byte) error {
	if dest == r.rank {
		return r.box.put(src, tag, append([]byte(nil), payload...))
	}
	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.conns[dest].Invoke(ctx, deliverMethod, &envelope{Src: src, Tag: tag, Payload: payload}, &ack{})
}

func (r *grpcRouter) abort(code int) {
	r.box.abort()
	var wg sync.WaitGroup
	for i, conn := range r.conns {
		if conn == nil {
			continue
		}
		wg.Add(1)
		go func(i int, conn *grpc.ClientConn) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
			defer cancel()
			if err := conn.Invoke(ctx, abortMethod, &envelope{Src: r.rank, Code: code}, &ack{}); err != nil {
				glog.Warningf("rank %d: could not abort rank %d: %v", r.rank, i, err)
			}
		}(i, conn)
	}
	wg.Wait()
}

func (r *grpcRouter) close() error {
	var first error
	r.closeOnce.Do(func() {
		for _, conn := range r.conns {
			if conn == nil {
				continue
			}
			if err := conn.Close(); err != nil && first == nil {
				first = err
			}
		}
		r.stop()
	})
	return first
}

// stop lets in-flight deliveries, such as the release of the final
// barrier, send their acknowledgement before the server goes away.
func (r *grpcRouter) stop() {
	done := make(chan struct{})
	go func() {
		r.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		glog.Warningf("rank %d: transport server did not drain in %v", r.rank, stopTimeout)
		r.server.Stop()
	}
}
