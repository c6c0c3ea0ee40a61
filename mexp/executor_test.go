package mexp

import (
	"slices"
	"testing"
)

func TestRegistryDefaults(t *testing.T) {
	names := ExecutorNames()
	for _, name := range []string{ReferenceName, ParallelName} {
		if !slices.Contains(names, name) {
			t.Fatalf("executor %q not registered: %v", name, names)
		}
		exec, err := LookupExecutor(name)
		if err != nil {
			t.Fatal(err)
		}
		if exec.Name() != name {
			t.Fatalf("expected executor %q, got %q", name, exec.Name())
		}
	}
	if !slices.IsSorted(names) {
		t.Fatalf("names are not sorted: %v", names)
	}
}

// flipLast is a deliberately wrong executor
type flipLast struct{}

func (flipLast) Name() string { return "flip-last" }

func (flipLast) Execute(in *Input) (*Output, error) {
	out := ReferenceExecute(in)
	if len(out.Hashes) > 0 {
		out.Hashes[len(out.Hashes)-1]++
	}
	return out, nil
}

func TestRegistryCustomExecutor(t *testing.T) {
	RegisterExecutor("flip-last", func() Executor { return flipLast{} })

	exec, err := LookupExecutor("flip-last")
	if err != nil {
		t.Fatal(err)
	}
	in := NewInput(4, 4, 9)
	out, err := exec.Execute(in)
	if err != nil {
		t.Fatal(err)
	}
	if FirstMismatch(ReferenceExecute(in), out) != 3 {
		t.Fatalf("expected a mismatch at the last entry, got %v", out.Hashes)
	}
}

func TestLookupUnknownExecutor(t *testing.T) {
	if _, err := LookupExecutor("does-not-exist"); err == nil {
		t.Fatal("expected an error for an unknown executor")
	}
}
