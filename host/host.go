package host

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"time"

	quic "github.com/quic-go/quic-go"

	logging "github.com/ipfs/go-log/v2"
	ic "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

var log = logging.Logger("host")

const (
	DefaultPort = 7001

	// ALPN is the application protocol negotiated on every connection
	ALPN = "gf2-exponent/1"

	// MaxMessageSize bounds one length-prefixed message. A 4096×4096 input
	// encodes to roughly this size.
	MaxMessageSize = 64 << 20
)

// ErrMessageTooLarge is returned when a message exceeds MaxMessageSize
var ErrMessageTooLarge = errors.New("message exceeds maximum size")

// HostOption configures a Host during construction
type HostOption func(*Host) error

// NewHost creates a new Host for peer-to-peer QUIC connections
func NewHost(opts ...HostOption) (*Host, error) {
	ctx, cancel := context.WithCancel(context.Background())

	host := &Host{
		ctx:    ctx,
		cancel: cancel,

		endpoint:    net.UDPAddrFromAddrPort(netip.AddrPortFrom(netip.IPv4Unspecified(), DefaultPort)),
		connections: make(map[peer.ID]Connection),
	}

	for _, opt := range opts {
		err := opt(host)
		if err != nil {
			cancel()
			return nil, err
		}
	}

	// Generate identity if not provided
	if host.privateKey == nil {
		_, privateKey, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			cancel()
			return nil, err
		}
		err = WithIdentity(privateKey)(host)
		if err != nil {
			cancel()
			return nil, err
		}
	}

	udpConn, err := net.ListenUDP("udp", host.endpoint)
	if err != nil {
		cancel()
		return nil, err
	}
	host.transport = &quic.Transport{
		Conn: udpConn,
	}

	// Create self-signed certificate from identity
	if host.certificate, err = createTLSCertFromKey(host.privateKey); err != nil {
		host.transport.Close()
		cancel()
		return nil, err
	}
	// Configure TLS with mutual authentication
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*host.certificate},
		ClientAuth:   tls.RequireAnyClientCert,
		NextProtos:   []string{ALPN},
	}
	host.listener, err = host.transport.Listen(tlsConfig, quicConfig())
	if err != nil {
		host.transport.Close()
		cancel()
		return nil, err
	}

	host.waitGroup.Add(1)
	go host.acceptLoop()

	return host, nil
}

func quicConfig() *quic.Config {
	return &quic.Config{
		// Large inputs take a while to execute before the reply is sent.
		MaxIdleTimeout:  30 * time.Minute,
		KeepAlivePeriod: 15 * time.Second,
	}
}

// Connect establishes an outgoing connection to a peer and returns its ID
func (h *Host) Connect(ctx context.Context, addr net.Addr) (peer.ID, error) {
	// Create context that cancels when either host or request context is done
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(h.ctx, cancel)
	defer stop()

	tlsConfig := &tls.Config{
		Certificates:       []tls.Certificate{*h.certificate}, // Put a certificate to do client authentication
		InsecureSkipVerify: true,                              // Peers are identified by the key in their certificate, not by a CA
		NextProtos:         []string{ALPN},
	}
	conn, err := h.transport.Dial(dialCtx, addr, tlsConfig, quicConfig())
	if err != nil {
		return "", err
	}

	peerID, err := h.handleConnection(conn)
	if err != nil {
		conn.CloseWithError(0, err.Error())
		return "", err
	}
	log.Infof("connected to %s at %s", peerID, addr)
	return peerID, nil
}

func (h *Host) LocalAddr() net.Addr {
	return h.transport.Conn.LocalAddr()
}

func (h *Host) ID() peer.ID {
	return h.peerID
}

// Peers returns the IDs of all connected peers
func (h *Host) Peers() []peer.ID {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	peers := make([]peer.ID, 0, len(h.connections))
	for peerID := range h.connections {
		peers = append(peers, peerID)
	}
	return peers
}

func (h *Host) Close() error {
	h.cancel()
	if err := h.listener.Close(); err != nil {
		log.Debugf("closing listener: %v", err)
	}
	err := h.transport.Close()
	h.waitGroup.Wait()
	return err
}

type Sender interface {
	Send([]byte) error

	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}
type Receiver interface {
	Receive(context.Context) ([]byte, error)

	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}
type Connection interface {
	Sender
	Receiver

	// Close closes the underlying connection
	Close() error
}

// streamConnection carries length-prefixed messages over one QUIC stream in
// each direction. Each side opens its send stream on first write and accepts
// the peer's stream for receiving.
type streamConnection struct {
	conn       quic.Connection
	sendStream quic.Stream
	recvStream quic.Stream
	sendMutex  sync.Mutex
	recvMutex  sync.Mutex
	recvReady  chan struct{} // Closed when recvStream is available
	traffic    *traffic
}

func newStreamConnection(conn quic.Connection, t *traffic) *streamConnection {
	sc := &streamConnection{
		conn:      conn,
		recvReady: make(chan struct{}),
		traffic:   t,
	}
	go sc.acceptStream()
	return sc
}

func (sc *streamConnection) acceptStream() {
	stream, err := sc.conn.AcceptStream(sc.conn.Context())
	if err != nil {
		return
	}
	sc.recvStream = stream
	close(sc.recvReady)
}

func (sc *streamConnection) Send(buf []byte) error {
	if len(buf) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(buf))
	}

	sc.sendMutex.Lock()
	defer sc.sendMutex.Unlock()

	// Open stream on first write if not already open
	if sc.sendStream == nil {
		stream, err := sc.conn.OpenStreamSync(sc.conn.Context())
		if err != nil {
			return err
		}
		sc.sendStream = stream
	}

	var lengthBuf [4]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(buf)))
	if _, err := sc.sendStream.Write(lengthBuf[:]); err != nil {
		return err
	}
	_, err := sc.sendStream.Write(buf)
	if err == nil && sc.traffic != nil {
		sc.traffic.sent.Add(uint64(len(lengthBuf) + len(buf)))
	}
	return err
}

// Receive blocks until a whole message arrives, ctx is done or the
// connection closes. A cancellation in the middle of a message resets the
// receive side.
func (sc *streamConnection) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-sc.recvReady:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-sc.conn.Context().Done():
		return nil, context.Cause(sc.conn.Context())
	}

	sc.recvMutex.Lock()
	defer sc.recvMutex.Unlock()

	// Unblock pending reads when ctx is done by expiring the read deadline.
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		sc.recvStream.SetReadDeadline(time.Now())
		close(fired)
	})
	defer func() {
		if !stop() {
			<-fired
			sc.recvStream.SetReadDeadline(time.Time{})
		}
	}()

	var lengthBuf [4]byte
	if n, err := io.ReadFull(sc.recvStream, lengthBuf[:]); err != nil {
		return nil, sc.readError(ctx, err, n == 0)
	}
	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length > MaxMessageSize {
		return nil, fmt.Errorf("%w: peer announced %d bytes", ErrMessageTooLarge, length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(sc.recvStream, buf); err != nil {
		return nil, sc.readError(ctx, err, false)
	}
	if sc.traffic != nil {
		sc.traffic.received.Add(uint64(len(lengthBuf) + len(buf)))
	}
	return buf, nil
}

// readError maps a failed read to ctx.Err() when ctx caused it. Reads that
// fail partway through a frame leave the stream unusable.
func (sc *streamConnection) readError(ctx context.Context, err error, atBoundary bool) error {
	if ctx.Err() == nil {
		return err
	}
	if !atBoundary || !errors.Is(err, os.ErrDeadlineExceeded) {
		sc.recvStream.CancelRead(0)
	}
	return ctx.Err()
}

func (sc *streamConnection) LocalAddr() net.Addr {
	return sc.conn.LocalAddr()
}

func (sc *streamConnection) RemoteAddr() net.Addr {
	return sc.conn.RemoteAddr()
}

func (sc *streamConnection) Close() error {
	return sc.conn.CloseWithError(0, "")
}

// AddPeerHandler is called when a new peer connects
type AddPeerHandler func(peer.ID, Connection)

// RemovePeerHandler is called when a peer disconnects
type RemovePeerHandler func(peer.ID)

// SetPeerHandlers registers callbacks for peer connection events
func (h *Host) SetPeerHandlers(addHandler AddPeerHandler, removeHandler RemovePeerHandler) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.addHandler = addHandler
	h.removeHandler = removeHandler

	// Notify about existing connections
	for peerID, conn := range h.connections {
		h.addHandler(peerID, conn)
	}
}

// handleConnection processes a new connection (incoming or outgoing)
func (h *Host) handleConnection(conn quic.Connection) (peer.ID, error) {
	peerCerts := conn.ConnectionState().TLS.PeerCertificates
	if len(peerCerts) == 0 {
		return "", fmt.Errorf("peer presented no certificate")
	}
	peerID, err := parsePeerIDFromCertificate(peerCerts[0])
	if err != nil {
		return "", fmt.Errorf("failed parsing for a peer ID from the TLS certificate: %w", err)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	// Prevent duplicate connections
	if _, exists := h.connections[peerID]; exists {
		return "", fmt.Errorf("already connected to peer %s", peerID)
	}

	wrappedConn := newStreamConnection(conn, &h.traffic)
	h.connections[peerID] = wrappedConn
	if h.addHandler != nil {
		h.addHandler(peerID, wrappedConn)
	}

	h.waitGroup.Add(1)
	go func() {
		defer h.waitGroup.Done()
		// Clean up when connection closes
		<-conn.Context().Done()

		h.mutex.Lock()
		delete(h.connections, peerID)
		if h.removeHandler != nil {
			h.removeHandler(peerID)
		}
		h.mutex.Unlock()
		log.Debugf("connection to %s closed", peerID)
	}()
	return peerID, nil
}

// acceptLoop handles incoming connections
func (h *Host) acceptLoop() {
	defer h.waitGroup.Done()

	log.Infof("listening on %s", h.LocalAddr())
	log.Infof("peer ID: %s", h.peerID)

	for {
		conn, err := h.listener.Accept(h.ctx)
		if err != nil {
			if h.ctx.Err() == nil {
				log.Warnf("listener accept error: %v", err)
			}
			return
		}

		peerID, err := h.handleConnection(conn)
		if err != nil {
			log.Warnf("failed to handle connection: %v", err)
			conn.CloseWithError(0, err.Error())
			continue
		}
		log.Infof("accepted connection from %s at %s", peerID, conn.RemoteAddr())
	}
}

func WithAddrPort(ep netip.AddrPort) HostOption {
	return func(h *Host) error {
		h.endpoint = net.UDPAddrFromAddrPort(ep)
		return nil
	}
}

// WithIdentity sets the host's identity from an ed25519 private key
func WithIdentity(privateKey crypto.PrivateKey) HostOption {
	return func(h *Host) error {
		key, ok := privateKey.(ed25519.PrivateKey)
		if !ok {
			return fmt.Errorf("unsupported key type: %T", privateKey)
		}
		_, pub, err := ic.KeyPairFromStdKey(&key)
		if err != nil {
			return err
		}
		if h.peerID, err = peer.IDFromPublicKey(pub); err != nil {
			return err
		}
		h.privateKey = key
		return nil
	}
}

// Host manages peer-to-peer QUIC connections
type Host struct {
	ctx       context.Context
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup

	mutex sync.Mutex // Protects connections map and handlers

	connections map[peer.ID]Connection // Active wrapped connections

	certificate *tls.Certificate   // Self-signed TLS certificate
	endpoint    *net.UDPAddr       // Local UDP endpoint
	peerID      peer.ID            // This host's peer ID
	privateKey  ed25519.PrivateKey // Identity private key

	transport *quic.Transport // QUIC transport layer
	listener  *quic.Listener  // Incoming connection listener

	traffic traffic // Framed bytes over all connections

	addHandler    AddPeerHandler    // Called when peer connects
	removeHandler RemovePeerHandler // Called when peer disconnects
}

// traffic counts framed bytes, length prefixes included
type traffic struct {
	sent     atomic.Uint64
	received atomic.Uint64
}

// BytesSent returns the number of bytes written to all connections
func (h *Host) BytesSent() uint64 {
	return h.traffic.sent.Load()
}

// BytesReceived returns the number of bytes read from all connections
func (h *Host) BytesReceived() uint64 {
	return h.traffic.received.Load()
}

// createTLSCertFromKey creates a self-signed certificate carrying the
// identity's public key. Peers derive each other's IDs from it.
func createTLSCertFromKey(key ed25519.PrivateKey) (*tls.Certificate, error) {
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(now.UnixNano()),
		Subject:      pkix.Name{CommonName: ALPN},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		return nil, err
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

// parsePeerIDFromCertificate derives the peer ID from an ed25519 certificate
func parsePeerIDFromCertificate(cert *x509.Certificate) (peer.ID, error) {
	key, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return "", fmt.Errorf("unsupported public key type: %T", cert.PublicKey)
	}
	pub, err := ic.UnmarshalEd25519PublicKey(key)
	if err != nil {
		return "", err
	}
	return peer.IDFromPublicKey(pub)
}
