package store

import "testing"

func TestDisplayName(t *testing.T) {
	m := MemberIdentity{FirstName: "Luis", LastName: "Hernandez"}
	if got := m.DisplayName(); got != "Luis Hernandez" {
		t.Errorf("DisplayName = %q", got)
	}

	m.LastName = ""
	if got := m.DisplayName(); got != "Luis" {
		t.Errorf("DisplayName without last name = %q", got)
	}
}

func TestRestriction_AllowsDay(t *testing.T) {
	r := Restriction{AllowedDays: []string{"monday", "wednesday"}}
	if !r.AllowsDay("monday") {
		t.Error("monday should be allowed")
	}
	if r.AllowsDay("sunday") {
		t.Error("sunday should be denied")
	}

	// No day list means every day.
	if !(Restriction{}).AllowsDay("sunday") {
		t.Error("an empty set allows every day")
	}
}
