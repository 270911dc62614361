package generic_test

import (
	"testing"

	"github.com/warp/allocation-engine/generic"
)

func TestRegistry_RoundTripsRegisteredKinds(t *testing.T) {
	salt := generic.StringResource{ID: "test_salt", Domain: "test", Unit: generic.UnitGoods}
	generic.RegisterResource(salt)
	generic.RegisterResource(salt)

	if got := generic.GetOrCreateResource("test_salt"); got != generic.ResourceKind(salt) {
		t.Errorf("GetOrCreateResource = %v, want %v", got, salt)
	}
	found := false
	for _, r := range generic.ListResources() {
		if r.ResourceID() == "test_salt" {
			found = true
		}
	}
	if !found {
		t.Error("registered kind missing from ListResources")
	}
}

func TestRegistry_UnknownIDFallsBackToGoods(t *testing.T) {
	if generic.LookupResource("test_never_registered") != nil {
		t.Fatal("unexpected registration")
	}
	got := generic.GetOrCreateResource("test_never_registered")
	if got.ResourceID() != "test_never_registered" || got.ResourceUnit() != generic.UnitGoods {
		t.Errorf("fallback = %+v", got)
	}
}

func TestRegistry_ConflictingUnitPanics(t *testing.T) {
	generic.RegisterResource(generic.StringResource{ID: "test_ore", Domain: "test", Unit: generic.UnitGoods})
	defer func() {
		if recover() == nil {
			t.Error("expected panic on unit conflict")
		}
	}()
	generic.RegisterResource(generic.StringResource{ID: "test_ore", Domain: "test", Unit: generic.UnitCash})
}
