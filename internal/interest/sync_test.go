package interest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"parkwhere_backend/internal/carpark"
	"parkwhere_backend/internal/geo"
)

func record(no string, interested int, vacancy float64) carpark.Record {
	return carpark.Record{
		Coordinates:           []float64{103.81, 1.35},
		CarParkNo:             no,
		Address:               "BLK 1 " + no,
		TotalLots:             100,
		LotsAvailable:         int(vacancy),
		VacancyPercentage:     vacancy,
		CarParkType:           "SURFACE CAR PARK",
		TypeOfParkingSystem:   "ELECTRONIC PARKING",
		NoOfInterestedDrivers: interested,
	}
}

func seeded(t *testing.T) *carpark.Registry {
	t.Helper()
	reg := carpark.NewRegistry()
	if err := reg.Seed([]carpark.Record{record("A1", 0, 40), record("B2", 0, 70)}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return reg
}

// fakeBackend answers the drivers endpoint with a canned response and
// captures the request body.
func fakeBackend(t *testing.T, resp response, gotReq *request) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if gotReq != nil {
			if err := json.NewDecoder(r.Body).Decode(gotReq); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestToggleCommitsBecameInterested(t *testing.T) {
	reg := seeded(t)
	var gotReq request
	backend := fakeBackend(t, response{
		Success:            true,
		UpdatedGeoJSONData: []carpark.Record{record("A1", 1, 40)},
		OpType:             opBecameInterested,
	}, &gotReq)
	defer backend.Close()

	settled := 0
	var routeDest *geo.Point
	s := New(backend.URL, reg, Hooks{
		RefreshInterested: func() { settled++ },
		RecomputeRoute:    func(dest *geo.Point) { routeDest = dest },
	})

	if err := s.Toggle(context.Background(), "A1"); err != nil {
		t.Fatalf("Toggle: %v", err)
	}

	if gotReq.Intent != "update_interested_carpark" || gotReq.CarparkAddress != "BLK 1 A1" {
		t.Fatalf("request = %+v, want the intent discriminator and A1's address", gotReq)
	}
	if got := reg.Interested(); got == nil || got.CarParkNo != "A1" {
		t.Fatalf("interested = %v, want A1", got)
	}
	if got := reg.FindByNo("A1").NoOfInterestedDrivers; got != 1 {
		t.Fatalf("interested drivers = %d, want 1 from the response snapshot", got)
	}
	if s.State() != StateCommitted {
		t.Fatalf("state = %v, want committed", s.State())
	}
	if settled != 1 {
		t.Fatalf("RefreshInterested calls = %d, want 1", settled)
	}
	if routeDest == nil {
		t.Fatal("RecomputeRoute must receive the interested carpark's coordinates")
	}
}

func TestToggleCommitsNoLongerInterested(t *testing.T) {
	reg := seeded(t)
	if err := reg.SetInterested("A1"); err != nil {
		t.Fatalf("SetInterested: %v", err)
	}
	backend := fakeBackend(t, response{
		Success:            true,
		UpdatedGeoJSONData: []carpark.Record{record("A1", 0, 40)},
		OpType:             0,
	}, nil)
	defer backend.Close()

	var routeDest *geo.Point
	routeCalled := false
	s := New(backend.URL, reg, Hooks{
		RecomputeRoute: func(dest *geo.Point) { routeCalled = true; routeDest = dest },
	})

	if err := s.Toggle(context.Background(), "A1"); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if reg.Interested() != nil {
		t.Fatal("interested must be cleared on op_type != 1")
	}
	if s.State() != StateCommitted {
		t.Fatalf("state = %v, want committed", s.State())
	}
	if !routeCalled || routeDest != nil {
		t.Fatalf("RecomputeRoute called=%v dest=%v, want called with nil dest", routeCalled, routeDest)
	}
}

func TestBackendRejectionRollsBack(t *testing.T) {
	reg := seeded(t)
	if err := reg.SetInterested("B2"); err != nil {
		t.Fatalf("SetInterested: %v", err)
	}
	backend := fakeBackend(t, response{Success: false}, nil)
	defer backend.Close()

	settled := false
	s := New(backend.URL, reg, Hooks{RefreshParked: func() { settled = true }})

	err := s.Toggle(context.Background(), "A1")
	if !errors.Is(err, ErrMutationRejected) {
		t.Fatalf("error = %v, want ErrMutationRejected", err)
	}
	if got := reg.Interested(); got == nil || got.CarParkNo != "B2" {
		t.Fatalf("interested = %v, want B2 unchanged after rollback", got)
	}
	if got := reg.FindByNo("A1").NoOfInterestedDrivers; got != 0 {
		t.Fatalf("A1 interested drivers = %d, want 0 (registry untouched)", got)
	}
	if s.State() != StateRolledBack {
		t.Fatalf("state = %v, want rolled-back", s.State())
	}
	if !settled {
		t.Fatal("after-settle hooks must run on rollback too")
	}
}

func TestTransportFailureRollsBack(t *testing.T) {
	reg := seeded(t)
	backend := fakeBackend(t, response{}, nil)
	backend.Close() // connection refused

	s := New(backend.URL, reg, Hooks{})
	if err := s.Toggle(context.Background(), "A1"); err == nil {
		t.Fatal("expected a transport error")
	}
	if reg.Interested() != nil {
		t.Fatal("registry must stay untouched on transport failure")
	}
	if s.State() != StateRolledBack {
		t.Fatalf("state = %v, want rolled-back", s.State())
	}
}

func TestUnknownResponseFieldRollsBack(t *testing.T) {
	reg := seeded(t)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"updatedgeojsondata":[],"op_type":1,"server_build":"v2"}`))
	}))
	defer backend.Close()

	s := New(backend.URL, reg, Hooks{})
	if err := s.Toggle(context.Background(), "A1"); err == nil {
		t.Fatal("expected a decode error for the unknown attribute")
	}
	if reg.Interested() != nil {
		t.Fatal("registry must stay untouched when the response fails strict decoding")
	}
	if s.State() != StateRolledBack {
		t.Fatalf("state = %v, want rolled-back", s.State())
	}
}

func TestSecondMutationWhilePendingIsRejected(t *testing.T) {
	reg := seeded(t)

	release := make(chan struct{})
	entered := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		json.NewEncoder(w).Encode(response{Success: true, OpType: opBecameInterested})
	}))
	defer backend.Close()

	s := New(backend.URL, reg, Hooks{})

	done := make(chan error, 1)
	go func() { done <- s.Toggle(context.Background(), "A1") }()
	<-entered

	if err := s.Toggle(context.Background(), "B2"); !errors.Is(err, ErrMutationPending) {
		t.Fatalf("second toggle error = %v, want ErrMutationPending", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if got := reg.Interested(); got == nil || got.CarParkNo != "A1" {
		t.Fatalf("interested = %v, want A1", got)
	}
}

func TestToggleUnknownCarpark(t *testing.T) {
	reg := seeded(t)
	s := New("http://unused", reg, Hooks{})
	if err := s.Toggle(context.Background(), "NOPE"); !errors.Is(err, carpark.ErrUnknownID) {
		t.Fatalf("error = %v, want ErrUnknownID", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state = %v, want idle (attempt never started)", s.State())
	}
}

func TestClearWithoutInterested(t *testing.T) {
	reg := seeded(t)
	s := New("http://unused", reg, Hooks{})
	if err := s.Clear(context.Background()); !errors.Is(err, ErrNotInterested) {
		t.Fatalf("error = %v, want ErrNotInterested", err)
	}
}
