package hospital

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/fault"
)

func validState(id string) *types.HospitalState {
	return &types.HospitalState{
		HospitalID:     id,
		ICUTotal:       100,
		ICUOccupied:    82,
		DailyPatients:  400,
		StaffOnDuty:    40,
		OxygenStatus:   types.SupplyNormal,
		MedicineStatus: types.SupplyNormal,
	}
}

func TestMemory_PutGet(t *testing.T) {
	m := NewMemory()
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }
	ctx := context.Background()

	in := validState("h1")
	stored, err := m.Put(ctx, in)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !stored.UpdatedAt.Equal(fixed) {
		t.Errorf("UpdatedAt: got %v, want %v", stored.UpdatedAt, fixed)
	}
	if !in.UpdatedAt.IsZero() {
		t.Error("Put must not modify the caller's value")
	}

	got, err := m.Get(ctx, "h1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(got, stored) {
		t.Errorf("got %+v, want %+v", got, stored)
	}

	got.ICUOccupied = 1
	again, _ := m.Get(ctx, "h1")
	if again.ICUOccupied != 82 {
		t.Error("Get must return a copy")
	}
}

func TestMemory_PutUpserts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Put(ctx, validState("h1"))
	upd := validState("h1")
	upd.StaffOnDuty = 12
	m.Put(ctx, upd)

	got, _ := m.Get(ctx, "h1")
	if got.StaffOnDuty != 12 {
		t.Errorf("StaffOnDuty: got %d, want 12", got.StaffOnDuty)
	}
	ids, _ := m.List(ctx)
	if len(ids) != 1 {
		t.Errorf("List: got %v, want one id", ids)
	}
}

func TestMemory_GetMissing(t *testing.T) {
	_, err := NewMemory().Get(context.Background(), "nope")
	if !errors.Is(err, fault.ErrMissingState) {
		t.Errorf("got %v, want ErrMissingState", err)
	}
}

func TestMemory_ListSorted(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		if _, err := m.Put(ctx, validState(id)); err != nil {
			t.Fatalf("Put(%s): %v", id, err)
		}
	}
	ids, _ := m.List(ctx)
	if !reflect.DeepEqual(ids, []string{"a", "b", "c"}) {
		t.Errorf("got %v, want [a b c]", ids)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.HospitalState)
		kind   fault.Kind
	}{
		{"missing id", func(s *types.HospitalState) { s.HospitalID = " " }, fault.KindInvalidArgument},
		{"zero total", func(s *types.HospitalState) { s.ICUTotal = 0 }, fault.KindOutOfRange},
		{"negative occupied", func(s *types.HospitalState) { s.ICUOccupied = -1 }, fault.KindOutOfRange},
		{"occupied over total", func(s *types.HospitalState) { s.ICUOccupied = 101 }, fault.KindOutOfRange},
		{"negative patients", func(s *types.HospitalState) { s.DailyPatients = -1 }, fault.KindOutOfRange},
		{"negative staff", func(s *types.HospitalState) { s.StaffOnDuty = -5 }, fault.KindOutOfRange},
		{"unknown oxygen", func(s *types.HospitalState) { s.OxygenStatus = "plenty" }, fault.KindOutOfRange},
		{"empty medicine", func(s *types.HospitalState) { s.MedicineStatus = "" }, fault.KindOutOfRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := validState("h1")
			tc.mutate(s)
			err := Validate(s)
			if fault.KindOf(err) != tc.kind {
				t.Errorf("got %v, want kind %s", err, tc.kind)
			}
		})
	}
	if err := Validate(validState("h1")); err != nil {
		t.Errorf("valid state rejected: %v", err)
	}
}
