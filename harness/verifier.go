package harness

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogo/protobuf/proto"

	"github.com/ppopth/gf2-exponent/host"
	"github.com/ppopth/gf2-exponent/mexp"
	"github.com/ppopth/gf2-exponent/pb"

	"github.com/libp2p/go-libp2p/core/peer"
)

// VerifierOption configures a Verifier during construction
type VerifierOption func(*Verifier) error

// WithTimeout bounds how long Verify waits for a worker's response
func WithTimeout(timeout time.Duration) VerifierOption {
	return func(v *Verifier) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", timeout)
		}
		v.timeout = timeout
		return nil
	}
}

// Report is the outcome of checking one worker against the reference
type Report struct {
	Peer          peer.ID
	RequestID     string
	Executor      string        // Executor name reported by the worker
	Match         bool          // Whether the candidate trace equals the reference
	FirstMismatch int           // First differing index, -1 on match or worker error
	WorkerError   string        // Non-empty when the worker failed to execute
	Reference     *mexp.Output  // Trace computed locally
	Candidate     *mexp.Output  // Trace returned by the worker
	Elapsed       time.Duration // Round trip including the worker's execution
}

type pendingRequest struct {
	peer peer.ID
	ch   chan *pb.Response // Receives the response, or nil if the peer disconnects
}

// Verifier sends inputs to workers and compares their traces with the reference
type Verifier struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	host    *host.Host
	timeout time.Duration
	nextID  atomic.Uint64

	mutex   sync.Mutex // Protects the maps below
	cond    *sync.Cond // Signals peer arrivals
	conns   map[peer.ID]host.Connection
	pending map[string]*pendingRequest
}

// NewVerifier creates a verifier and attaches it to the host
func NewVerifier(h *host.Host, opts ...VerifierOption) (*Verifier, error) {
	if h == nil {
		return nil, fmt.Errorf("host is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	v := &Verifier{
		ctx:    ctx,
		cancel: cancel,

		host:    h,
		timeout: 10 * time.Minute,
		conns:   make(map[peer.ID]host.Connection),
		pending: make(map[string]*pendingRequest),
	}
	v.cond = sync.NewCond(&v.mutex)

	for _, opt := range opts {
		if err := opt(v); err != nil {
			cancel()
			return nil, err
		}
	}

	h.SetPeerHandlers(v.handleAddPeer, v.handleRemovePeer)
	return v, nil
}

// Close stops the verifier and fails pending requests
func (v *Verifier) Close() error {
	v.cancel()
	v.mutex.Lock()
	v.cond.Broadcast()
	v.mutex.Unlock()
	v.wg.Wait()
	return nil
}

// Peers returns the currently connected workers
func (v *Verifier) Peers() []peer.ID {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	peers := make([]peer.ID, 0, len(v.conns))
	for p := range v.conns {
		peers = append(peers, p)
	}
	slices.Sort(peers)
	return peers
}

// WaitForPeer blocks until at least one worker is connected and returns one
func (v *Verifier) WaitForPeer(ctx context.Context) (peer.ID, error) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	unregisterAfterFunc := context.AfterFunc(ctx, func() {
		// Wake up all waiting routines when context is cancelled
		v.mutex.Lock()
		v.cond.Broadcast()
		v.mutex.Unlock()
	})
	defer unregisterAfterFunc()

	for len(v.conns) == 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-v.ctx.Done():
			return "", ErrClosed
		default:
		}
		v.cond.Wait()
	}
	for p := range v.conns {
		return p, nil
	}
	return "", ErrClosed
}

// Verify executes in on the worker identified by peerID and compares the
// returned trace with the reference trace computed locally
func (v *Verifier) Verify(ctx context.Context, peerID peer.ID, in *mexp.Input) (*Report, error) {
	if v.ctx.Err() != nil {
		return nil, ErrClosed
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	v.mutex.Lock()
	conn, ok := v.conns[peerID]
	v.mutex.Unlock()
	if !ok {
		return nil, fmt.Errorf("not connected to peer %s", peerID)
	}

	log.Infof("computing reference trace (n=%d steps=%d seed=%d)", in.N, in.Steps, in.Seed)
	reference := mexp.ReferenceExecute(in)

	requestID := fmt.Sprintf("%s-%d", v.host.ID(), v.nextID.Add(1))
	pending := &pendingRequest{peer: peerID, ch: make(chan *pb.Response, 1)}

	v.mutex.Lock()
	v.pending[requestID] = pending
	v.mutex.Unlock()
	defer func() {
		v.mutex.Lock()
		delete(v.pending, requestID)
		v.mutex.Unlock()
	}()

	start := time.Now()
	rpc := &pb.RPC{Request: &pb.Request{Id: requestID, Input: in.ToProto()}}
	if err := sendRPC(rpc, conn); err != nil {
		return nil, fmt.Errorf("failed to send request %s: %w", requestID, err)
	}

	timer := time.NewTimer(v.timeout)
	defer timer.Stop()

	var resp *pb.Response
	select {
	case resp = <-pending.ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-v.ctx.Done():
		return nil, ErrClosed
	case <-timer.C:
		return nil, fmt.Errorf("request %s to %s timed out after %s", requestID, peerID, v.timeout)
	}
	if resp == nil {
		return nil, fmt.Errorf("peer %s disconnected before answering request %s", peerID, requestID)
	}

	report := &Report{
		Peer:          peerID,
		RequestID:     requestID,
		Executor:      resp.GetExecutor(),
		FirstMismatch: -1,
		WorkerError:   resp.GetError(),
		Reference:     reference,
		Elapsed:       time.Since(start),
	}
	if report.WorkerError == "" {
		report.Candidate = mexp.OutputFromProto(resp.GetOutput())
		report.Match = reference.Equals(report.Candidate)
		report.FirstMismatch = mexp.FirstMismatch(reference, report.Candidate)
	}

	if report.Match {
		log.Infof("peer %s (%s) matches the reference over %d steps", peerID, report.Executor, len(reference.Hashes))
	} else {
		log.Warnf("peer %s (%s) rejected: first mismatch at %d, worker error %q", peerID, report.Executor, report.FirstMismatch, report.WorkerError)
	}
	return report, nil
}

func (v *Verifier) handleAddPeer(peerID peer.ID, conn host.Connection) {
	v.mutex.Lock()
	v.conns[peerID] = conn
	v.cond.Broadcast()
	v.mutex.Unlock()

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		for {
			messageBytes, err := conn.Receive(v.ctx)
			if err != nil {
				log.Debugf("stopped receiving from %s: %v", peerID, err)
				return
			}

			rpc := &pb.RPC{}
			if err := proto.Unmarshal(messageBytes, rpc); err != nil {
				log.Warnf("invalid packet received from %s: %v", peerID, err)
				continue
			}
			if resp := rpc.GetResponse(); resp != nil {
				v.handleResponse(peerID, resp)
			}
		}
	}()
}

func (v *Verifier) handleResponse(peerID peer.ID, resp *pb.Response) {
	v.mutex.Lock()
	pending, ok := v.pending[resp.GetId()]
	v.mutex.Unlock()

	if !ok || pending.peer != peerID {
		log.Debugf("unexpected response %s from %s", resp.GetId(), peerID)
		return
	}
	select {
	case pending.ch <- resp:
	default:
	}
}

func (v *Verifier) handleRemovePeer(peerID peer.ID) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	delete(v.conns, peerID)
	for _, pending := range v.pending {
		if pending.peer == peerID {
			select {
			case pending.ch <- nil:
			default:
			}
		}
	}
}
