package domain

import "time"

// PageState is the serialized state of a virtual patient page.
// It is produced by the page and transported as-is; nothing in this
// module inspects its structure.
type PageState string

// PageIdentity names the page and patient the state belongs to.
type PageIdentity struct {
	PageID    string `json:"pageId"`
	PatientID string `json:"patientId"`
}

// NavigateResponse is the navigate endpoint's reply.
type NavigateResponse struct {
	Redirect string `json:"redirect"`
}

// PageHost is implemented by whatever hosts the page. It replaces the
// page-level globals the activity pages define.
type PageHost interface {
	// GetState returns the current serialized state. ok is false when
	// the page has no state capability.
	GetState() (state PageState, ok bool)
	// IsValid reports whether the page's input is currently valid.
	IsValid() bool
	// Identity returns the page and patient identifiers read from the page.
	Identity() PageIdentity
}

// ActivityState is the saved state of one user's work on one patient.
type ActivityState struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	PatientID string    `json:"patientId"`
	StateJSON string    `json:"json"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ActivityStateStore keeps page states per user and patient.
type ActivityStateStore interface {
	Upsert(userID, patientID, stateJSON string) (*ActivityState, error)
	Get(userID, patientID string) (*ActivityState, error)
	Delete(userID, patientID string) error
	// DeleteUser clears everything a user has saved.
	DeleteUser(userID string) error
	List(userID string) ([]ActivityState, error)
	// IsComplete reports whether the user has recorded results for patientID.
	IsComplete(userID, patientID string) (bool, error)
}
