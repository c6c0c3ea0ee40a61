package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ppopth/gf2-exponent/harness"
	"github.com/ppopth/gf2-exponent/host"
	"github.com/ppopth/gf2-exponent/mexp"

	logging "github.com/ipfs/go-log/v2"
)

func main() {
	var (
		role     = flag.String("role", "worker", "Node role (worker, verifier)")
		listen   = flag.String("listen", "0.0.0.0:7001", "UDP address to listen on")
		connect  = flag.String("connect", "", "Comma-separated worker addresses (verifier only)")
		impl     = flag.String("impl", mexp.ReferenceName, "Executor served by a worker ("+strings.Join(mexp.ExecutorNames(), ", ")+")")
		scale    = flag.Int("scale", 64, "Problem scale for generated inputs (verifier only)")
		rounds   = flag.Int("rounds", 1, "Number of fresh inputs sent to every worker (verifier only)")
		timeout  = flag.Duration("timeout", 10*time.Minute, "Maximum wait for one response (verifier only)")
		logLevel = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	log.SetPrefix("[mexp-" + *role + "] ")
	log.SetFlags(log.LstdFlags | log.Lshortfile | log.Lmicroseconds)

	// Set log level for all subsystems
	level, err := logging.LevelFromString(*logLevel)
	if err != nil {
		log.Printf("Invalid log level %q, using info", *logLevel)
		level = logging.LevelInfo
	}
	logging.SetAllLoggers(level)

	listenAddr, err := netip.ParseAddrPort(*listen)
	if err != nil {
		log.Fatalf("Invalid listen address %q: %v", *listen, err)
	}
	h, err := host.NewHost(host.WithAddrPort(listenAddr))
	if err != nil {
		log.Fatalf("Failed to create host: %v", err)
	}
	defer h.Close()
	log.Printf("Host %s listening on %s", h.ID(), h.LocalAddr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *role {
	case "worker":
		runWorker(ctx, h, *impl)
	case "verifier":
		ok := runVerifier(ctx, h, *connect, *scale, *rounds, *timeout)
		logTraffic(h)
		if !ok {
			h.Close()
			os.Exit(1)
		}
	default:
		log.Fatalf("Unknown role %q", *role)
	}
}

func logTraffic(h *host.Host) {
	log.Printf("Traffic: %d bytes sent, %d bytes received", h.BytesSent(), h.BytesReceived())
}

func runWorker(ctx context.Context, h *host.Host, impl string) {
	exec, err := mexp.LookupExecutor(impl)
	if err != nil {
		log.Fatalf("%v", err)
	}
	w, err := harness.NewWorker(h, harness.WithExecutor(exec))
	if err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}
	defer w.Close()

	<-ctx.Done()
	log.Printf("Shutting down after serving %d requests (%d dropped)", w.Served(), w.Dropped())
	logTraffic(h)
}

// runVerifier checks every worker against fresh inputs and reports whether all matched
func runVerifier(ctx context.Context, h *host.Host, connect string, scale, rounds int, timeout time.Duration) bool {
	v, err := harness.NewVerifier(h, harness.WithTimeout(timeout))
	if err != nil {
		log.Fatalf("Failed to start verifier: %v", err)
	}
	defer v.Close()

	for _, addr := range strings.Split(connect, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			log.Fatalf("Invalid worker address %q: %v", addr, err)
		}
		if _, err := h.Connect(ctx, udpAddr); err != nil {
			log.Fatalf("Failed to connect to %s: %v", addr, err)
		}
	}

	if _, err := v.WaitForPeer(ctx); err != nil {
		log.Fatalf("No worker available: %v", err)
	}

	allMatch := true
	for round := 0; round < rounds; round++ {
		in, err := mexp.CreateInput(scale)
		if err != nil {
			log.Fatalf("Failed to create input: %v", err)
		}
		for _, p := range v.Peers() {
			report, err := v.Verify(ctx, p, in)
			if err != nil {
				log.Printf("Round %d: peer %s: %v", round, p, err)
				allMatch = false
				continue
			}
			if report.Match {
				log.Printf("Round %d: peer %s (%s) ACCEPTED in %v", round, p, report.Executor, report.Elapsed)
			} else {
				log.Printf("Round %d: peer %s (%s) REJECTED: mismatch at %d, error %q",
					round, p, report.Executor, report.FirstMismatch, report.WorkerError)
				allMatch = false
			}
		}
	}
	return allMatch
}
