// Package jobs tracks the lifecycle of the two download slots. Each
// slot owns at most one in-flight job and ignores events carrying a
// stale or foreign job id.
package jobs

import (
	"fmt"
	"math"
	"sync"
)

// Slot is one of the two independent download intents.
type Slot string

const (
	SlotFull    Slot = "full"
	SlotTrimmed Slot = "trimmed"
)

// Slots lists every slot identity, in a fixed order.
var Slots = []Slot{SlotFull, SlotTrimmed}

func ParseSlot(s string) (Slot, error) {
	switch Slot(s) {
	case SlotFull, SlotTrimmed:
		return Slot(s), nil
	default:
		return "", fmt.Errorf("unknown download slot %q", s)
	}
}

// Phase of a slot. Done and Error are terminal display states; both
// accept a new start, so they behave as idle for admission purposes.
type Phase string

const (
	PhaseIdle  Phase = "idle"
	PhaseBusy  Phase = "busy"
	PhaseDone  Phase = "done"
	PhaseError Phase = "error"
)

// Snapshot is a point-in-time copy of a slot's state.
type Snapshot struct {
	Slot     Slot   `json:"slot"`
	Phase    Phase  `json:"phase"`
	JobID    string `json:"jobId,omitempty"`
	Percent  int    `json:"percent"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Machine is the per-slot state machine.
type Machine struct {
	mu       sync.Mutex
	slot     Slot
	phase    Phase
	jobID    string
	percent  int
	filename string
	errMsg   string
}

func NewMachine(slot Slot) *Machine {
	return &Machine{slot: slot, phase: PhaseIdle}
}

func (m *Machine) Slot() Slot { return m.slot }

// Start arms the slot with a job id at 0%. It fails while a job is
// already in flight; callers must not allow concurrent starts on the
// same slot.
func (m *Machine) Start(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == PhaseBusy {
		return fmt.Errorf("slot %s already has job %s in flight", m.slot, m.jobID)
	}

	m.phase = PhaseBusy
	m.jobID = jobID
	m.percent = 0
	m.filename = ""
	m.errMsg = ""
	return nil
}

// OnProgress records a progress update. Percent is clamped to [0,100],
// non-finite input counts as 0. Reports whether the event was accepted;
// a mismatched job id leaves the state unchanged.
func (m *Machine) OnProgress(jobID string, percent float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if jobID == "" || jobID != m.jobID {
		return false
	}

	m.percent = clampPercent(percent)
	return true
}

// OnComplete finishes the job: the id is cleared and the slot shows
// done until reset or restarted.
func (m *Machine) OnComplete(jobID, filename string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if jobID == "" || jobID != m.jobID {
		return false
	}

	m.phase = PhaseDone
	m.jobID = ""
	m.percent = 100
	m.filename = filename
	return true
}

// OnError fails the job: the id is cleared and the slot shows a
// retryable error state.
func (m *Machine) OnError(jobID, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if jobID == "" || jobID != m.jobID {
		return false
	}

	m.phase = PhaseError
	m.jobID = ""
	m.errMsg = message
	return true
}

// Reset force-clears the slot regardless of current state. A still
// running helper job is not cancelled, its further events are simply no
// longer reflected.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.phase = PhaseIdle
	m.jobID = ""
	m.percent = 0
	m.filename = ""
	m.errMsg = ""
}

func (m *Machine) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase == PhaseBusy
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		Slot:     m.slot,
		Phase:    m.phase,
		JobID:    m.jobID,
		Percent:  m.percent,
		Filename: m.filename,
		Error:    m.errMsg,
	}
}

func clampPercent(p float64) int {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, p))))
}
