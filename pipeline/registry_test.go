package pipeline

import (
	"errors"
	"testing"

	"github.com/saiset-co/sai-pipeline/types"
)

func TestRegistryPrependsNewUnits(t *testing.T) {
	registry := NewRegistry(nil)

	first := &testUnit{name: "first"}
	second := &testUnit{name: "second"}

	if err := registry.Register(unitFactory(first), nil); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := registry.Register(unitFactory(second), nil); err != nil {
		t.Fatalf("register second: %v", err)
	}

	snapshot := registry.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 units, got %d", len(snapshot))
	}
	if snapshot[0].Name() != "second" || snapshot[1].Name() != "first" {
		t.Fatalf("expected [second first], got [%s %s]", snapshot[0].Name(), snapshot[1].Name())
	}
}

func TestRegistryRejectsNilFactory(t *testing.T) {
	registry := NewRegistry(nil)

	err := registry.Register(nil, nil)
	if !errors.Is(err, types.ErrMiddlewareRegistration) {
		t.Fatalf("expected registration error, got %v", err)
	}
	if registry.Len() != 0 {
		t.Fatalf("registry should be empty, has %d", registry.Len())
	}
}

func TestRegistryRejectsFailingFactory(t *testing.T) {
	registry := NewRegistry(nil)

	factory := func(options types.Options) (types.Middleware, error) {
		return nil, errors.New("bad options")
	}

	err := registry.Register(factory, nil)
	if !errors.Is(err, types.ErrMiddlewareRegistration) {
		t.Fatalf("expected registration error, got %v", err)
	}
}

func TestRegistryRejectsTypedNilUnit(t *testing.T) {
	registry := NewRegistry(nil)

	factory := func(options types.Options) (types.Middleware, error) {
		var unit *testUnit
		return unit, nil
	}

	err := registry.Register(factory, nil)
	if !errors.Is(err, types.ErrMiddlewareRegistration) {
		t.Fatalf("expected registration error, got %v", err)
	}
	if registry.Len() != 0 {
		t.Fatalf("registry should be empty, has %d", registry.Len())
	}
}

func TestRegistryRejectsUnnamedUnit(t *testing.T) {
	registry := NewRegistry(nil)

	err := registry.Register(unitFactory(&testUnit{name: ""}), nil)
	if !errors.Is(err, types.ErrMiddlewareRegistration) {
		t.Fatalf("expected registration error, got %v", err)
	}
}

func TestRegistryEnforcesMaximum(t *testing.T) {
	registry := NewRegistry(nil)

	for i := 0; i < MaxMiddlewares; i++ {
		if err := registry.Register(unitFactory(&testUnit{name: "unit"}), nil); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}

	err := registry.Register(unitFactory(&testUnit{name: "overflow"}), nil)
	if !errors.Is(err, types.ErrMiddlewareRegistration) {
		t.Fatalf("expected registration error, got %v", err)
	}
	if registry.Len() != MaxMiddlewares {
		t.Fatalf("expected %d units, got %d", MaxMiddlewares, registry.Len())
	}
}

func TestRegistrySnapshotIsDetached(t *testing.T) {
	registry := NewRegistry(nil)

	if err := registry.Register(unitFactory(&testUnit{name: "only"}), nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	snapshot := registry.Snapshot()
	snapshot[0] = &testUnit{name: "replaced"}

	if registry.Snapshot()[0].Name() != "only" {
		t.Fatal("mutating a snapshot must not reach the registry")
	}
}
