package host

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"errors"
	"net/netip"
	"testing"
	"time"

	ic "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

func newLoopbackHost(t *testing.T, opts ...HostOption) *Host {
	t.Helper()
	opts = append([]HostOption{WithAddrPort(netip.MustParseAddrPort("127.0.0.1:0"))}, opts...)
	h, err := NewHost(opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestCertificate(t *testing.T) {
	pk, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	crt, err := createTLSCertFromKey(sk)
	if err != nil {
		t.Fatal(err)
	}
	leaf, err := x509.ParseCertificate(crt.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	crtPid, err := parsePeerIDFromCertificate(leaf)
	if err != nil {
		t.Fatal(err)
	}

	pubkey, err := ic.UnmarshalEd25519PublicKey(pk)
	if err != nil {
		t.Fatal(err)
	}
	p, err := peer.IDFromPublicKey(pubkey)
	if err != nil {
		t.Fatal(err)
	}

	if crtPid != p {
		t.Fatal("peer id in the created certificate is not correct")
	}
}

func TestUnsupportedIdentity(t *testing.T) {
	if _, err := NewHost(WithIdentity("not a key")); err == nil {
		t.Fatal("expected an error for an unsupported key type")
	}
}

func TestSendReceive(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	server := newLoopbackHost(t)
	client := newLoopbackHost(t)

	serverConns := make(chan Connection, 1)
	server.SetPeerHandlers(func(p peer.ID, conn Connection) {
		serverConns <- conn
	}, nil)

	clientConns := make(chan Connection, 1)
	client.SetPeerHandlers(func(p peer.ID, conn Connection) {
		clientConns <- conn
	}, nil)

	pid, err := client.Connect(ctx, server.LocalAddr())
	if err != nil {
		t.Fatal(err)
	}
	if pid != server.ID() {
		t.Fatalf("expected peer %s, got %s", server.ID(), pid)
	}

	clientConn := <-clientConns
	var serverConn Connection
	select {
	case serverConn = <-serverConns:
	case <-ctx.Done():
		t.Fatal("server did not see the connection")
	}

	messages := [][]byte{[]byte("hello"), {}, bytes.Repeat([]byte{0xAB}, 200000)}
	for _, msg := range messages {
		if err := clientConn.Send(msg); err != nil {
			t.Fatal(err)
		}
	}
	for i, msg := range messages {
		got, err := serverConn.Receive(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, msg) {
			t.Fatalf("message %d differs: %d bytes instead of %d", i, len(got), len(msg))
		}
	}

	// Reply in the other direction
	if err := serverConn.Send([]byte("world")); err != nil {
		t.Fatal(err)
	}
	got, err := clientConn.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "world" {
		t.Fatalf("expected %q, got %q", "world", got)
	}

	// Every message carries a 4-byte length prefix
	if sent, recv := client.BytesSent(), server.BytesReceived(); sent != 200017 || recv != 200017 {
		t.Fatalf("expected 200017 bytes each way, sent %d received %d", sent, recv)
	}
	if sent, recv := server.BytesSent(), client.BytesReceived(); sent != 9 || recv != 9 {
		t.Fatalf("expected 9 bytes back, sent %d received %d", sent, recv)
	}
}

func TestUniqueConnection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	s := newLoopbackHost(t)
	// Two client hosts with the same identity
	h1 := newLoopbackHost(t, WithIdentity(sk))
	h2 := newLoopbackHost(t, WithIdentity(sk))

	if _, err := h1.Connect(ctx, s.LocalAddr()); err != nil {
		t.Fatal(err)
	}
	// The server rejects the second connection from the same peer ID. The
	// handshake itself may succeed before the server closes the connection,
	// so wait until the server's peer set settles.
	h2.Connect(ctx, s.LocalAddr())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.Peers()) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if peers := s.Peers(); len(peers) != 1 || peers[0] != h1.ID() {
		t.Fatalf("expected exactly one peer %s, got %v", h1.ID(), peers)
	}
}

func TestReceiveCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	server := newLoopbackHost(t)
	client := newLoopbackHost(t)

	clientConns := make(chan Connection, 1)
	client.SetPeerHandlers(func(p peer.ID, conn Connection) {
		clientConns <- conn
	}, nil)
	if _, err := client.Connect(ctx, server.LocalAddr()); err != nil {
		t.Fatal(err)
	}

	recvCtx, recvCancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer recvCancel()
	if _, err := (<-clientConns).Receive(recvCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestReceiveCancelledWhileReading(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	server := newLoopbackHost(t)
	client := newLoopbackHost(t)

	serverConns := make(chan Connection, 1)
	server.SetPeerHandlers(func(p peer.ID, conn Connection) {
		serverConns <- conn
	}, nil)
	clientConns := make(chan Connection, 1)
	client.SetPeerHandlers(func(p peer.ID, conn Connection) {
		clientConns <- conn
	}, nil)
	if _, err := client.Connect(ctx, server.LocalAddr()); err != nil {
		t.Fatal(err)
	}
	clientConn, serverConn := <-clientConns, <-serverConns

	// The first message opens the stream, so the next Receive blocks on the
	// stream itself rather than on the stream being accepted.
	if err := clientConn.Send([]byte("first")); err != nil {
		t.Fatal(err)
	}
	if _, err := serverConn.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	recvCtx, recvCancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		_, err := serverConn.Receive(recvCtx)
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	recvCancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Receive did not return after its context was cancelled")
	}

	// Cancelling between messages keeps the stream usable
	if err := clientConn.Send([]byte("second")); err != nil {
		t.Fatal(err)
	}
	got, err := serverConn.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Fatalf("expected %q, got %q", "second", got)
	}
}

func TestSendTooLarge(t *testing.T) {
	sc := &streamConnection{}
	if err := sc.Send(make([]byte, MaxMessageSize+1)); !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
}
