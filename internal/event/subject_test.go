package event

import (
	"reflect"
	"testing"
)

func TestNotifyDeliversInRegistrationOrder(t *testing.T) {
	var s Subject
	var got []string

	s.Attach("a", CarparkUpdate, func(any) { got = append(got, "first") })
	s.Attach("b", CarparkUpdate, func(any) { got = append(got, "second") })
	s.Attach("c", CarparkUpdate, func(any) { got = append(got, "third") })

	s.Notify(nil, CarparkUpdate)

	want := []string{"first", "second", "third"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("delivery order = %v, want %v", got, want)
	}
}

func TestNotifyFiltersByKind(t *testing.T) {
	var s Subject
	updates, lists := 0, 0

	observer := struct{ name string }{"popup"}
	s.Attach(&observer, CarparkUpdate, func(any) { updates++ })
	s.Attach(&observer, NearbyListUpdate, func(any) { lists++ })

	s.Notify(nil, CarparkUpdate)
	s.Notify(nil, CarparkUpdate)
	s.Notify(nil, NearbyListUpdate)

	if updates != 2 || lists != 1 {
		t.Fatalf("updates = %d, lists = %d, want 2 and 1", updates, lists)
	}
}

func TestNotifyPassesPayload(t *testing.T) {
	var s Subject
	var got any
	s.Attach("o", NearbyListUpdate, func(payload any) { got = payload })

	s.Notify("the-list", NearbyListUpdate)

	if got != "the-list" {
		t.Fatalf("payload = %v, want the-list", got)
	}
}

func TestDetachRemovesAllRegistrationsOfObserver(t *testing.T) {
	var s Subject
	calls := 0
	s.Attach("gone", CarparkUpdate, func(any) { calls++ })
	s.Attach("gone", NearbyListUpdate, func(any) { calls++ })
	s.Attach("kept", CarparkUpdate, func(any) { calls++ })

	s.Detach("gone")
	s.Notify(nil, CarparkUpdate)
	s.Notify(nil, NearbyListUpdate)

	if calls != 1 {
		t.Fatalf("calls after detach = %d, want 1", calls)
	}
}

func TestDetachUnknownObserverIsNoOp(t *testing.T) {
	var s Subject
	s.Detach("never-attached") // must not panic

	calls := 0
	s.Attach("o", CarparkUpdate, func(any) { calls++ })
	s.Detach("someone-else")
	s.Notify(nil, CarparkUpdate)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestPanickingObserverDoesNotStopDelivery(t *testing.T) {
	var s Subject
	reached := false
	s.Attach("bad", CarparkUpdate, func(any) { panic("observer blew up") })
	s.Attach("good", CarparkUpdate, func(any) { reached = true })

	s.Notify(nil, CarparkUpdate)

	if !reached {
		t.Fatal("observer after the panicking one was not called")
	}
}

func TestObserverMayDetachDuringNotify(t *testing.T) {
	var s Subject
	calls := 0
	s.Attach("self", CarparkUpdate, func(any) {
		calls++
		s.Detach("self")
	})

	s.Notify(nil, CarparkUpdate)
	s.Notify(nil, CarparkUpdate)

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
