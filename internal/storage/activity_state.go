package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"vpatient/internal/domain"
)

var ErrNotFound = errors.New("activity state not found")

const stateColumns = `id, user_id, patient_id, state_json, updated_at`

// ActivityStateStore implements domain.ActivityStateStore: one saved
// state row per user and patient.
type ActivityStateStore struct {
	db    *DB
	clock clockwork.Clock
}

func NewActivityStateStore(db *DB, clock clockwork.Clock) *ActivityStateStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ActivityStateStore{db: db, clock: clock}
}

func (s *ActivityStateStore) Upsert(userID, patientID, stateJSON string) (*domain.ActivityState, error) {
	now := s.clock.Now().UTC()
	_, err := s.db.conn.Exec(s.db.dialect.rebind(s.db.dialect.upsert), uuid.NewString(), userID, patientID, stateJSON, now)
	if err != nil {
		return nil, fmt.Errorf("upsert activity state: %w", err)
	}
	// The row keeps its original id on conflict.
	return s.Get(userID, patientID)
}

func (s *ActivityStateStore) Get(userID, patientID string) (*domain.ActivityState, error) {
	st := &domain.ActivityState{}
	err := s.db.conn.QueryRow(
		s.db.dialect.rebind(`SELECT `+stateColumns+` FROM activity_states WHERE user_id = ? AND patient_id = ?`),
		userID, patientID,
	).Scan(&st.ID, &st.UserID, &st.PatientID, &st.StateJSON, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get activity state: %w", err)
	}
	return st, nil
}

func (s *ActivityStateStore) Delete(userID, patientID string) error {
	_, err := s.db.conn.Exec(
		s.db.dialect.rebind(`DELETE FROM activity_states WHERE user_id = ? AND patient_id = ?`),
		userID, patientID,
	)
	if err != nil {
		return fmt.Errorf("delete activity state: %w", err)
	}
	return nil
}

func (s *ActivityStateStore) DeleteUser(userID string) error {
	_, err := s.db.conn.Exec(s.db.dialect.rebind(`DELETE FROM activity_states WHERE user_id = ?`), userID)
	if err != nil {
		return fmt.Errorf("clear activity states: %w", err)
	}
	return nil
}

// List returns the user's saved states, most recently updated first.
func (s *ActivityStateStore) List(userID string) ([]domain.ActivityState, error) {
	rows, err := s.db.conn.Query(
		s.db.dialect.rebind(`SELECT `+stateColumns+` FROM activity_states WHERE user_id = ? ORDER BY updated_at DESC`),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list activity states: %w", err)
	}
	defer rows.Close()

	var states []domain.ActivityState
	for rows.Next() {
		var st domain.ActivityState
		if err := rows.Scan(&st.ID, &st.UserID, &st.PatientID, &st.StateJSON, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list activity states: %w", err)
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list activity states: %w", err)
	}
	return states, nil
}

// IsComplete reports whether the user's saved state for patientID carries
// results. Unparseable state counts as incomplete.
func (s *ActivityStateStore) IsComplete(userID, patientID string) (bool, error) {
	st, err := s.Get(userID, patientID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return hasResults(st.StateJSON, patientID), nil
}

// hasResults looks for a non-empty "results" member, either in the
// patient's entry of a whole-activity document ({"patients": {id: ...}})
// or at the top level of a single-patient document.
func hasResults(stateJSON, patientID string) bool {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stateJSON), &doc); err != nil {
		return false
	}
	if raw, ok := doc["patients"]; ok {
		var patients map[string]map[string]json.RawMessage
		if err := json.Unmarshal(raw, &patients); err == nil {
			if p, ok := patients[patientID]; ok {
				return nonEmpty(p["results"])
			}
		}
	}
	return nonEmpty(doc["results"])
}

func nonEmpty(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	case string:
		return x != ""
	default:
		return false
	}
}
