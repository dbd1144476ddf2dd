package correlation

import (
	"testing"

	"github.com/smartvideo/ytdlp-bridge/bridge/internal/protocol"
)

func TestResolveInvokesHandlerExactlyOnce(t *testing.T) {
	r := NewRegistry()

	calls := 0
	r.Register("job-1", func(m protocol.Message) { calls++ })

	if !r.Resolve("job-1", protocol.Message{JobID: "job-1"}) {
		t.Fatal("first resolve should find the handler")
	}
	if r.Resolve("job-1", protocol.Message{JobID: "job-1"}) {
		t.Fatal("second resolve must report no handler")
	}

	if calls != 1 {
		t.Fatalf("handler invoked %d times, want 1", calls)
	}
}

func TestResolveUnregistered(t *testing.T) {
	r := NewRegistry()

	if r.Resolve("nope", protocol.Message{JobID: "nope"}) {
		t.Fatal("resolve of an unknown id must return false")
	}
}

func TestDiscardPreventsInvocation(t *testing.T) {
	r := NewRegistry()

	r.Register("job-1", func(m protocol.Message) {
		t.Fatal("discarded handler must never run")
	})
	r.Discard("job-1")

	if r.Resolve("job-1", protocol.Message{JobID: "job-1"}) {
		t.Fatal("discarded id should resolve to nothing")
	}
}

func TestDiscardAll(t *testing.T) {
	r := NewRegistry()

	r.Register("a", func(protocol.Message) { t.Fatal("must not run") })
	r.Register("b", func(protocol.Message) { t.Fatal("must not run") })
	r.DiscardAll()

	if r.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", r.Pending())
	}
}

func TestNewJobIDUnique(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		id := NewJobID()
		if id == "" || seen[id] {
			t.Fatalf("job id %q empty or reused", id)
		}
		seen[id] = true
	}
}
