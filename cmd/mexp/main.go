package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ppopth/gf2-exponent/mexp"
	"github.com/ppopth/gf2-exponent/persist"

	logging "github.com/ipfs/go-log/v2"
)

// RunResult is the JSON report written with -report
type RunResult struct {
	Puzzle        string        `json:"puzzle"`
	Executor      string        `json:"executor"`
	N             uint32        `json:"n"`
	Steps         uint32        `json:"steps"`
	Seed          uint32        `json:"seed"`
	Elapsed       time.Duration `json:"elapsed_ns"`
	Hashes        []uint32      `json:"hashes"`
	Verified      bool          `json:"verified"`
	Match         bool          `json:"match"`          // Meaningful only when verified
	FirstMismatch int           `json:"first_mismatch"` // -1 on match or when not verified
}

func main() {
	var (
		scale     = flag.Int("scale", 32, "Problem scale: matrix dimension and number of steps")
		seed      = flag.Int64("seed", -1, "Generator seed (negative draws a random seed)")
		inputFile = flag.String("input", "", "Read the input from this file instead of creating one")
		saveInput = flag.String("save-input", "", "Write the input to this file")
		output    = flag.String("output", "", "Write the output trace to this file")
		impl      = flag.String("impl", mexp.ReferenceName, "Executor to run ("+strings.Join(mexp.ExecutorNames(), ", ")+")")
		verify    = flag.Bool("verify", false, "Compare the executor's trace with the reference")
		report    = flag.String("report", "", "Write a JSON report to this file")
		logLevel  = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// Set log level for all subsystems
	level, err := logging.LevelFromString(*logLevel)
	if err != nil {
		log.Printf("Invalid log level %q, using info", *logLevel)
		level = logging.LevelInfo
	}
	logging.SetAllLoggers(level)

	in, err := loadOrCreateInput(*inputFile, *scale, *seed)
	if err != nil {
		log.Fatalf("Failed to prepare input: %v", err)
	}
	log.Printf("Input: n=%d steps=%d seed=%d", in.N, in.Steps, in.Seed)

	if *saveInput != "" {
		if err := persist.SaveInput(*saveInput, in); err != nil {
			log.Fatalf("Failed to write input: %v", err)
		}
		log.Printf("Input written to %s", *saveInput)
	}

	exec, err := mexp.LookupExecutor(*impl)
	if err != nil {
		log.Fatalf("%v", err)
	}

	start := time.Now()
	out, err := exec.Execute(in)
	if err != nil {
		log.Fatalf("Executor %s failed: %v", exec.Name(), err)
	}
	elapsed := time.Since(start)
	log.Printf("Executor %s finished in %v", exec.Name(), elapsed)

	if *output != "" {
		if err := persist.SaveOutput(*output, out); err != nil {
			log.Fatalf("Failed to write output: %v", err)
		}
		log.Printf("Output written to %s", *output)
	}

	result := newRunResult(in, exec.Name(), out, elapsed, *verify)
	if *verify {
		if result.Match {
			log.Printf("Trace matches the reference")
		} else {
			log.Printf("Trace differs from the reference at index %d", result.FirstMismatch)
		}
	}

	if *report != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal report: %v", err)
		}
		if err := os.WriteFile(*report, data, 0644); err != nil {
			log.Fatalf("Failed to write report: %v", err)
		}
		log.Printf("Report written to %s", *report)
	} else if *output == "" {
		fmt.Println(formatHashes(out.Hashes))
	}

	if *verify && !result.Match {
		os.Exit(1)
	}
}

// newRunResult summarizes one run, comparing out with the reference when verify is set
func newRunResult(in *mexp.Input, executor string, out *mexp.Output, elapsed time.Duration, verify bool) RunResult {
	result := RunResult{
		Puzzle:        mexp.Name,
		Executor:      executor,
		N:             in.N,
		Steps:         in.Steps,
		Seed:          in.Seed,
		Elapsed:       elapsed,
		Hashes:        out.Hashes,
		Verified:      verify,
		FirstMismatch: -1,
	}
	if verify {
		reference := mexp.ReferenceExecute(in)
		result.Match = reference.Equals(out)
		result.FirstMismatch = mexp.FirstMismatch(reference, out)
	}
	return result
}

func loadOrCreateInput(path string, scale int, seed int64) (*mexp.Input, error) {
	if path != "" {
		return persist.LoadInput(path)
	}
	if seed < 0 {
		return mexp.CreateInput(scale)
	}
	if scale < 0 || uint64(scale) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d", mexp.ErrInvalidScale, scale)
	}
	if seed > math.MaxUint32 {
		return nil, fmt.Errorf("seed %d does not fit in 32 bits", seed)
	}
	return mexp.NewInput(uint32(scale), uint32(scale), uint32(seed)), nil
}

func formatHashes(hashes []uint32) string {
	parts := make([]string, len(hashes))
	for i, h := range hashes {
		parts[i] = fmt.Sprint(h)
	}
	return strings.Join(parts, " ")
}
