package lifecycle

import (
	"sync"

	"docsign/pkg/domain"
)

// DraftHandle tracks one document creation attempt. The view layer edits
// Draft directly; CreateDocument never modifies it, so a failed submit keeps
// everything the user entered.
type DraftHandle struct {
	Draft domain.Draft

	mu      sync.Mutex
	state   State
	lastErr error
	id      int64
}

// State returns DRAFTING, GENERATING, GENERATED or ERROR.
func (h *DraftHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err returns the error of the last failed submit, or nil.
func (h *DraftHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

// DocumentID returns the id assigned by the service once GENERATED.
func (h *DraftHandle) DocumentID() (int64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id, h.state == StateGenerated
}

func (h *DraftHandle) begin() (State, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	from := h.state
	if from != StateDrafting && from != StateError {
		return from, false
	}
	h.state = StateGenerating
	h.lastErr = nil
	return from, true
}

func (h *DraftHandle) settle(state State, id int64, err error) {
	h.mu.Lock()
	h.state = state
	h.id = id
	h.lastErr = err
	h.mu.Unlock()
}
