// Package interest drives the optimistic protocol for changing which
// carpark the user is interested in. Local state is never mutated
// speculatively: the registry only moves once the drivers backend has
// answered, and a failed round trip leaves everything untouched.
package interest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"parkwhere_backend/internal/carpark"
	"parkwhere_backend/internal/geo"
)

// State of the current (or last) mutation attempt.
type State int

const (
	StateIdle State = iota
	StatePending
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled-back"
	default:
		return "idle"
	}
}

var (
	// ErrMutationPending rejects a second mutation while one is in flight.
	// The triggering control is supposed to be disabled during Pending, so
	// hitting this means the UI let one through; there is no queueing.
	ErrMutationPending = errors.New("interest mutation already pending")
	// ErrMutationRejected means the backend answered but refused the
	// mutation (success=false).
	ErrMutationRejected = errors.New("backend rejected interest mutation")
	// ErrNotInterested is returned by Clear when nothing is set.
	ErrNotInterested = errors.New("no interested carpark to clear")
)

// Hooks are the external UI collaborators poked after every attempt
// settles, committed or rolled back: the interested-carpark panel, the
// "I have parked" affordance, and the route recompute. Nil hooks are
// skipped.
type Hooks struct {
	RefreshInterested func()
	RefreshParked     func()
	// RecomputeRoute receives the interested carpark's coordinates, or nil
	// when no carpark is interested anymore.
	RecomputeRoute func(dest *geo.Point)
}

const intentUpdateInterested = "update_interested_carpark"

// opBecameInterested is the backend's op_type for "became interested";
// anything else means "no longer interested".
const opBecameInterested = 1

type request struct {
	Intent         string `json:"intent"`
	CarparkAddress string `json:"carpark_address"`
}

type response struct {
	Success            bool             `json:"success"`
	UpdatedGeoJSONData []carpark.Record `json:"updatedgeojsondata"`
	OpType             int              `json:"op_type"`
}

// Sync owns the mutation state machine: Idle → Pending → Committed or
// RolledBack. At most one attempt is in flight per session.
type Sync struct {
	backendURL string
	client     *http.Client
	reg        *carpark.Registry
	hooks      Hooks

	stateMu sync.Mutex
	state   State
}

// New returns a Sync talking to the drivers endpoint at backendURL.
func New(backendURL string, reg *carpark.Registry, hooks Hooks) *Sync {
	return &Sync{
		backendURL: backendURL,
		client:     &http.Client{Timeout: 15 * time.Second},
		reg:        reg,
		hooks:      hooks,
		state:      StateIdle,
	}
}

// State reports the state of the current or most recent attempt.
func (s *Sync) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Toggle flips interest in the carpark with the given number. The backend
// decides the direction and answers with an op_type discriminator; the
// registry follows the answer.
func (s *Sync) Toggle(ctx context.Context, carparkNo string) error {
	c := s.reg.FindByNo(carparkNo)
	if c == nil {
		return fmt.Errorf("interest toggle: %w: %s", carpark.ErrUnknownID, carparkNo)
	}
	return s.mutate(ctx, c)
}

// Clear toggles off the currently interested carpark.
func (s *Sync) Clear(ctx context.Context) error {
	c := s.reg.Interested()
	if c == nil {
		return ErrNotInterested
	}
	return s.mutate(ctx, c)
}

func (s *Sync) mutate(ctx context.Context, c *carpark.Carpark) error {
	s.stateMu.Lock()
	if s.state == StatePending {
		s.stateMu.Unlock()
		return ErrMutationPending
	}
	s.state = StatePending
	s.stateMu.Unlock()

	// Address and number come from a locked snapshot; the feeds may be
	// patching the live carpark at the same time.
	rec := s.reg.SnapshotRecord(c)

	// Exactly one request per attempt, settled no matter what comes back.
	resp, err := s.send(ctx, rec.Address)
	if err != nil || !resp.Success {
		if err == nil {
			err = ErrMutationRejected
		}
		s.settle(StateRolledBack)
		log.Printf("interest: mutation for %s rolled back: %v", rec.CarParkNo, err)
		return err
	}

	// The response snapshot is authoritative; unknown numbers in it are
	// skipped and logged, the rest still apply.
	if err := s.reg.ApplyPatchSnapshot(resp.UpdatedGeoJSONData); err != nil {
		log.Printf("interest: patch snapshot partially failed: %v", err)
	}

	if resp.OpType == opBecameInterested {
		if err := s.reg.SetInterested(rec.CarParkNo); err != nil {
			// Cannot happen: c came out of the registry moments ago.
			log.Printf("interest: %v", err)
		}
	} else {
		s.reg.ClearInterested()
	}
	s.settle(StateCommitted)
	return nil
}

func (s *Sync) send(ctx context.Context, address string) (*response, error) {
	body, err := json.Marshal(request{Intent: intentUpdateInterested, CarparkAddress: address})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.backendURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("drivers request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("drivers request: unexpected status %d", res.StatusCode)
	}

	// Same strictness as the snapshot decoder: an unknown attribute
	// anywhere in the payload rejects the whole response, and the attempt
	// rolls back.
	dec := json.NewDecoder(res.Body)
	dec.DisallowUnknownFields()
	var parsed response
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("drivers response: %w", err)
	}
	return &parsed, nil
}

// settle records the outcome and runs the after-settle hooks. They run on
// both outcomes: the panel and the parked affordance must reflect whatever
// the registry now says, and the route follows the (possibly nil)
// interested carpark.
func (s *Sync) settle(outcome State) {
	s.stateMu.Lock()
	s.state = outcome
	s.stateMu.Unlock()

	if s.hooks.RefreshInterested != nil {
		s.hooks.RefreshInterested()
	}
	if s.hooks.RefreshParked != nil {
		s.hooks.RefreshParked()
	}
	if s.hooks.RecomputeRoute != nil {
		var dest *geo.Point
		if c := s.reg.Interested(); c != nil {
			pt := s.reg.SnapshotRecord(c).Point()
			dest = &pt
		}
		s.hooks.RecomputeRoute(dest)
	}
}
