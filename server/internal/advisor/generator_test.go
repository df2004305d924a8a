package advisor

import (
	"reflect"
	"strings"
	"testing"

	"github.com/surgecast/surgecast/pkg/types"
)

func TestGenerate_SupplyBeforeCapacity(t *testing.T) {
	got := Generate(Input{
		RiskLevel:         types.RiskNormal,
		AdditionalICUBeds: 3,
		Oxygen:            types.SupplyCritical,
		Medicine:          types.SupplyNormal,
	})
	if len(got) != 2 {
		t.Fatalf("got %d items %q, want 2", len(got), got)
	}
	if !strings.Contains(got[0], "oxygen") {
		t.Errorf("first item: got %q, want oxygen supply", got[0])
	}
	if !strings.Contains(got[1], "3 additional ICU beds") {
		t.Errorf("second item: got %q, want bed capacity", got[1])
	}
}

func TestGenerate_Order(t *testing.T) {
	got := Generate(Input{
		RiskLevel:         types.RiskCritical,
		AdditionalICUBeds: 1,
		AdditionalStaff:   4,
		Oxygen:            types.SupplyLow,
		Medicine:          types.SupplyCritical,
	})
	want := []string{
		"Restock oxygen before the expected surge",
		"Urgent: medicine supply critical, restock immediately and arrange emergency transfer",
		"Prepare 1 additional ICU bed",
		"Schedule 4 additional staff members",
	}
	want = append(want, guidance[types.RiskCritical]...)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	in := Input{RiskLevel: types.RiskHigh, AdditionalStaff: 2, Oxygen: types.SupplyLow, Medicine: types.SupplyLow}
	a, b := Generate(in), Generate(in)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("outputs differ:\n%q\n%q", a, b)
	}
}

func TestGenerate_NoAction(t *testing.T) {
	got := Generate(Input{RiskLevel: types.RiskNormal, Oxygen: types.SupplyNormal, Medicine: types.SupplyNormal})
	if !reflect.DeepEqual(got, []string{NoAction}) {
		t.Errorf("got %q, want [%q]", got, NoAction)
	}
}

func TestGenerate_Escalation(t *testing.T) {
	tests := []struct {
		level    types.RiskLevel
		escalate bool
	}{
		{types.RiskNormal, false},
		{types.RiskElevated, false},
		{types.RiskHigh, true},
		{types.RiskCritical, true},
	}
	for _, tc := range tests {
		t.Run(string(tc.level), func(t *testing.T) {
			got := Generate(Input{RiskLevel: tc.level})
			found := false
			for _, rec := range got {
				if IsEscalation(rec) {
					found = true
				}
			}
			if found != tc.escalate {
				t.Errorf("escalation present: got %v, want %v (%q)", found, tc.escalate, got)
			}
		})
	}
}

func TestGenerate_NoDuplicates(t *testing.T) {
	got := Generate(Input{
		RiskLevel:         types.RiskCritical,
		AdditionalICUBeds: 5,
		AdditionalStaff:   5,
		Oxygen:            types.SupplyCritical,
		Medicine:          types.SupplyCritical,
	})
	seen := map[string]bool{}
	for _, rec := range got {
		if seen[rec] {
			t.Errorf("duplicate item %q", rec)
		}
		seen[rec] = true
	}
}
