package supervisor

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSpawnAndKillAll(t *testing.T) {
	set := &Set{Logger: zerolog.Nop()}
	specs := []Spec{
		{ServiceName: "sleeper", StartupCmd: "sleep 5", WorkingDir: "."},
	}

	if err := set.Spawn(specs); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if len(set.children) != 1 {
		t.Fatalf("children = %d, want 1", len(set.children))
	}

	set.KillAll()
	if len(set.children) != 0 {
		t.Fatalf("children after KillAll = %d, want 0", len(set.children))
	}
}

func TestSpawnFailureAbortsGeneration(t *testing.T) {
	set := &Set{Logger: zerolog.Nop()}
	specs := []Spec{
		{ServiceName: "bad", StartupCmd: "/nonexistent/binary-that-does-not-exist", WorkingDir: "."},
	}

	if err := set.Spawn(specs); err == nil {
		t.Fatal("expected spawn error for a nonexistent binary")
	}
}

func TestSpawnWaitsAfterEachSpec(t *testing.T) {
	set := &Set{Logger: zerolog.Nop()}
	specs := []Spec{
		{ServiceName: "quick", StartupCmd: "true", WorkingDir: ".", WaitAfter: 50 * time.Millisecond},
	}

	start := time.Now()
	if err := set.Spawn(specs); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("Spawn returned after %v, want at least the configured wait_after", elapsed)
	}
	set.KillAll()
}
