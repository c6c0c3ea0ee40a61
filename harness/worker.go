// Package harness distributes matrix-exponent inputs to remote workers and
// checks their hash traces against the local reference.
package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogo/protobuf/proto"

	"github.com/ppopth/gf2-exponent/host"
	"github.com/ppopth/gf2-exponent/mexp"
	"github.com/ppopth/gf2-exponent/pb"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/peer"
)

var log = logging.Logger("harness")

const (
	// DedupCacheDuration is how long a worker remembers served request IDs
	DedupCacheDuration = 120 * time.Second
)

// ErrClosed is returned by operations on a closed worker or verifier
var ErrClosed = errors.New("harness has been closed")

// WorkerOption configures a Worker during construction
type WorkerOption func(*Worker) error

// WithExecutor sets the implementation the worker runs (default is the reference)
func WithExecutor(exec mexp.Executor) WorkerOption {
	return func(w *Worker) error {
		if exec == nil {
			return fmt.Errorf("executor is required")
		}
		w.executor = exec
		return nil
	}
}

// WithDedupTTL sets how long served request IDs are remembered
func WithDedupTTL(ttl time.Duration) WorkerOption {
	return func(w *Worker) error {
		if ttl <= 0 {
			return fmt.Errorf("dedup TTL must be positive, got %s", ttl)
		}
		w.dedupTTL = ttl
		return nil
	}
}

// Worker serves execution requests arriving on a host's connections
type Worker struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	host     *host.Host
	executor mexp.Executor
	dedupTTL time.Duration
	seen     *TimeCache // Request IDs already served

	served  atomic.Uint64
	dropped atomic.Uint64
}

// NewWorker creates a worker and attaches it to the host
func NewWorker(h *host.Host, opts ...WorkerOption) (*Worker, error) {
	if h == nil {
		return nil, fmt.Errorf("host is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		ctx:    ctx,
		cancel: cancel,

		host:     h,
		executor: mexp.Reference{},
		dedupTTL: DedupCacheDuration,
	}

	for _, opt := range opts {
		if err := opt(w); err != nil {
			cancel()
			return nil, err
		}
	}
	w.seen = NewTimeCache(w.dedupTTL)

	h.SetPeerHandlers(w.handleAddPeer, w.handleRemovePeer)
	log.Infof("worker %s serving executor %q", h.ID(), w.executor.Name())
	return w, nil
}

// Served returns the number of responses delivered to the transport
func (w *Worker) Served() uint64 {
	return w.served.Load()
}

// Dropped returns the number of duplicate or malformed messages ignored and
// responses that could not be sent
func (w *Worker) Dropped() uint64 {
	return w.dropped.Load()
}

// Close stops serving. The host stays open and must be closed by its owner.
func (w *Worker) Close() error {
	w.cancel()
	w.wg.Wait()
	return w.seen.Close()
}

func (w *Worker) handleAddPeer(peerID peer.ID, conn host.Connection) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			messageBytes, err := conn.Receive(w.ctx)
			if err != nil {
				log.Debugf("stopped receiving from %s: %v", peerID, err)
				return
			}

			rpc := &pb.RPC{}
			if err := proto.Unmarshal(messageBytes, rpc); err != nil {
				log.Warnf("invalid packet received from %s: %v", peerID, err)
				w.dropped.Add(1)
				continue
			}
			if req := rpc.GetRequest(); req != nil {
				w.handleRequest(peerID, conn, req)
			}
		}
	}()
}

func (w *Worker) handleRemovePeer(peerID peer.ID) {
	log.Debugf("peer %s disconnected", peerID)
}

// handleRequest runs one request and sends the response back on conn
func (w *Worker) handleRequest(peerID peer.ID, conn host.Sender, req *pb.Request) {
	if !w.seen.AddIfAbsent(req.GetId()) {
		log.Debugf("dropping duplicate request %s from %s", req.GetId(), peerID)
		w.dropped.Add(1)
		return
	}

	resp := &pb.Response{
		Id:       req.GetId(),
		Executor: w.executor.Name(),
	}

	in := mexp.InputFromProto(req.GetInput())
	log.Infof("executing request %s from %s (n=%d steps=%d)", req.GetId(), peerID, in.N, in.Steps)
	start := time.Now()
	out, err := w.executor.Execute(in)
	if err != nil {
		log.Warnf("request %s failed: %v", req.GetId(), err)
		resp.Error = err.Error()
	} else {
		resp.Output = out.ToProto()
		log.Infof("request %s finished in %s", req.GetId(), time.Since(start))
	}

	if err := sendRPC(&pb.RPC{Response: resp}, conn); err != nil {
		w.dropped.Add(1)
		return
	}
	w.served.Add(1)
}

// sendRPC marshals and sends an RPC message to a connection
func sendRPC(rpc *pb.RPC, conn host.Sender) error {
	if rpc == nil || conn == nil {
		return fmt.Errorf("nothing to send")
	}

	buffer, err := proto.Marshal(rpc)
	if err != nil {
		log.Errorf("failed to marshal RPC: %v", err)
		return err
	}
	if err := conn.Send(buffer); err != nil {
		log.Errorf("failed to send RPC to %s: %v", conn.RemoteAddr(), err)
		return err
	}
	return nil
}
