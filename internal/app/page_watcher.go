package app

import (
	"sync"

	"vpatient/internal/domain"
)

// PageSnapshot is what the bridge script reads from the page: the
// identifier inputs, the page's get_state() and validate() results.
type PageSnapshot struct {
	PageID    string `json:"pageId"`
	PatientID string `json:"patientId"`
	State     string `json:"state"`
	// HasState is false when the page defines no get_state().
	HasState bool `json:"hasState"`
	Valid    bool `json:"valid"`
}

// pageWatcher holds the latest snapshot pushed by the bridge and serves it
// to the page controller as its domain.PageHost.
type pageWatcher struct {
	mu     sync.Mutex
	loaded bool
	snap   PageSnapshot
}

func newPageWatcher() *pageWatcher {
	return &pageWatcher{}
}

// Set replaces the tracked snapshot.
func (w *pageWatcher) Set(s PageSnapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loaded = true
	w.snap = s
}

// Snapshot returns the tracked snapshot and whether any page reported yet.
func (w *pageWatcher) Snapshot() (PageSnapshot, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap, w.loaded
}

func (w *pageWatcher) GetState() (domain.PageState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.loaded || !w.snap.HasState {
		return "", false
	}
	return domain.PageState(w.snap.State), true
}

func (w *pageWatcher) IsValid() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loaded && w.snap.Valid
}

func (w *pageWatcher) Identity() domain.PageIdentity {
	w.mu.Lock()
	defer w.mu.Unlock()
	return domain.PageIdentity{PageID: w.snap.PageID, PatientID: w.snap.PatientID}
}
