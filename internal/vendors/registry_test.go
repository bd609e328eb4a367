package vendors

import (
	"testing"
)

func testConn(id, service string, state ConnectionState) *Connection {
	return &Connection{
		ID:          id,
		ServiceName: service,
		state:       state,
		closed:      make(chan struct{}),
	}
}

func TestRegistryAdmitEvictsSameService(t *testing.T) {
	r := NewRegistry()

	old := testConn("conn-1", "yealink", StateAvailable)
	if evicted := r.Admit(old); evicted != nil {
		t.Fatalf("first admit evicted %s", evicted.ID)
	}

	replacement := testConn("conn-2", "yealink", StateWaitingForProvision)
	evicted := r.Admit(replacement)
	if evicted == nil || evicted.ID != "conn-1" {
		t.Fatalf("expected conn-1 evicted, got %v", evicted)
	}

	got, ok := r.ByService("yealink")
	if !ok || got.ID != "conn-2" {
		t.Errorf("service index should point at the replacement")
	}
	if _, ok := r.Get("conn-1"); ok {
		t.Errorf("evicted connection should be gone from the ID index")
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}

func TestRegistryRemoveDoesNotUnregisterReplacement(t *testing.T) {
	r := NewRegistry()

	old := testConn("conn-1", "yealink", StateAvailable)
	r.Admit(old)
	replacement := testConn("conn-2", "yealink", StateWaitingForProvision)
	r.Admit(replacement)

	// The evicted connection's read pump tears down after the replacement
	// was admitted. Its removal must not clear the service index.
	r.Remove(old)

	got, ok := r.ByService("yealink")
	if !ok || got.ID != "conn-2" {
		t.Fatalf("replacement lost after removing the evicted connection")
	}

	r.Remove(replacement)
	if _, ok := r.ByService("yealink"); ok {
		t.Errorf("service index should be empty after removing the current holder")
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}

func TestRegistryAvailable(t *testing.T) {
	r := NewRegistry()

	waiting := testConn("conn-1", "fanvil", StateWaitingForProvision)
	r.Admit(waiting)
	if _, ok := r.Available("fanvil"); ok {
		t.Error("connection in waiting_for_provision must not be available")
	}

	waiting.setState(StateAvailable)
	if conn, ok := r.Available("fanvil"); !ok || conn.ID != "conn-1" {
		t.Error("provisioned connection should be available")
	}

	if _, ok := r.Available("unknown"); ok {
		t.Error("unknown service must not be available")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Admit(testConn("conn-1", "yealink", StateAvailable))
	r.Admit(testConn("conn-2", "fanvil", StateAvailable))

	if got := len(r.List()); got != 2 {
		t.Errorf("List() returned %d connections, want 2", got)
	}
}
