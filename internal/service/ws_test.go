package service

import (
	"errors"
	"sync"
	"testing"

	"chatbot-backend/internal/model"
)

func TestRegistryConnectResolveDisconnect(t *testing.T) {
	r := NewRegistry()
	first := NewClient(userBob)
	second := NewClient(userBob)
	r.Connect(first)
	r.Connect(second)

	if first.ID == "" || first.ID == second.ID {
		t.Fatalf("connection ids must be unique: %q %q", first.ID, second.ID)
	}
	identity, err := r.Resolve(second.ID)
	if err != nil || identity.ID != userBob.ID {
		t.Fatalf("resolve: %+v %v", identity, err)
	}
	if got := len(r.AllConnectionsFor(userBob.ID)); got != 2 {
		t.Fatalf("connections = %d, want 2", got)
	}
	if sent := r.EmitTo(userBob.ID, model.EventPong, nil); sent != 2 {
		t.Fatalf("EmitTo reached %d connections, want 2", sent)
	}

	gone, remaining, ok := r.Disconnect(first.ID)
	if !ok || gone.ID != userBob.ID || remaining != 1 {
		t.Fatalf("disconnect: %+v %d %v", gone, remaining, ok)
	}
	drain(first)
	if _, open := <-first.Send; open {
		t.Fatal("send channel must be closed on disconnect")
	}
	if !r.IsOnline(userBob.ID) {
		t.Fatal("identity with a remaining connection is online")
	}

	_, remaining, _ = r.Disconnect(second.ID)
	if remaining != 0 || r.IsOnline(userBob.ID) {
		t.Fatalf("remaining = %d, online = %v", remaining, r.IsOnline(userBob.ID))
	}
	if _, _, ok := r.Disconnect(second.ID); ok {
		t.Fatal("second disconnect of the same id must report false")
	}
}

func TestRegistryResolveUnknown(t *testing.T) {
	_, err := NewRegistry().Resolve("nope")
	if !errors.Is(err, ErrConnectionNotFound) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected connection not found, got %v", err)
	}
}

func TestRegistryEmitToOffline(t *testing.T) {
	if sent := NewRegistry().EmitTo("ghost", model.EventPong, nil); sent != 0 {
		t.Fatalf("sent = %d", sent)
	}
}

func TestRegistrySetRole(t *testing.T) {
	r := NewRegistry()
	a := NewClient(userBob)
	b := NewClient(userBob)
	r.Connect(a)
	r.Connect(b)

	if touched := r.SetRole(userBob.ID, model.RoleStaff); touched != 2 {
		t.Fatalf("touched = %d", touched)
	}
	for _, c := range []*Client{a, b} {
		identity, _ := r.Resolve(c.ID)
		if !identity.IsStaff() {
			t.Fatalf("%s not promoted", c.ID)
		}
	}
	if touched := r.SetRole("ghost", model.RoleStaff); touched != 0 {
		t.Fatalf("offline identity touched %d", touched)
	}
}

func TestRegistryOnlineIdentities(t *testing.T) {
	r := NewRegistry()
	r.Connect(NewClient(userBob))
	r.Connect(NewClient(userBob))
	r.Connect(NewClient(staffAnna))
	r.Connect(NewClient(model.Identity{ID: "x", BusinessID: "other"}))

	if got := len(r.OnlineIdentities("biz")); got != 2 {
		t.Fatalf("biz identities = %d, want 2", got)
	}
	if got := len(r.OnlineIdentities("")); got != 3 {
		t.Fatalf("all identities = %d, want 3", got)
	}
	if got := r.OnlineCount(); got != 4 {
		t.Fatalf("connections = %d, want 4", got)
	}
}

func TestRegistryDropsWhenBufferFull(t *testing.T) {
	r := NewRegistry()
	c := NewClient(userBob)
	r.Connect(c)
	for i := 0; i < sendBufferSize; i++ {
		r.Emit(c.ID, model.EventPong, nil)
	}
	if r.Emit(c.ID, model.EventPong, nil) {
		t.Fatal("emit into a full buffer must not block or succeed")
	}
}

func TestRegistryConcurrentUse(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewClient(userBob)
			id := r.Connect(c)
			for j := 0; j < 20; j++ {
				r.EmitTo(userBob.ID, model.EventPong, nil)
				r.Broadcast(model.EventPong, nil)
				drain(c)
			}
			r.Disconnect(id)
		}()
	}
	wg.Wait()
	if r.OnlineCount() != 0 || r.IsOnline(userBob.ID) {
		t.Fatalf("registry not empty: %d", r.OnlineCount())
	}
}

func TestRegistryShutdown(t *testing.T) {
	r := NewRegistry()
	c := NewClient(userBob)
	r.Connect(c)
	r.Shutdown()
	r.Shutdown()

	if _, open := <-c.Send; open {
		t.Fatal("shutdown must close send channels")
	}
	if _, _, ok := r.Disconnect(c.ID); ok {
		t.Fatal("connections are gone after shutdown")
	}
}

func TestRegistryRejectsAfterShutdown(t *testing.T) {
	r := NewRegistry()
	r.Shutdown()

	late := NewClient(userBob)
	r.Connect(late)
	if _, open := <-late.Send; open {
		t.Fatal("late connection must get a closed send channel")
	}
	if r.OnlineCount() != 0 || r.IsOnline(userBob.ID) {
		t.Fatal("late connection must not be registered")
	}
	if _, _, ok := r.Disconnect(late.ID); ok {
		t.Fatal("late connection is unknown to the registry")
	}
}
