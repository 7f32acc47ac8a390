package utils

import "testing"

func TestNameFilter(t *testing.T) {
	filter := NewNameFilter(nil)
	if !filter.Allows("SB/20140207SB0000000_____DT_MEDALS__x.xml") {
		t.Fatal("expected allow by default")
	}
	filter = NewNameFilter([]string{"*DT_PARTIC_UPDATE*"})
	if filter.Allows("AL/20140207AL0000000_____DT_PARTIC_UPDATE__x.xml") {
		t.Fatal("glob on base name should exclude")
	}
	if !filter.Allows("AL/20140207AL0000000_____DT_PARTIC__x.xml") {
		t.Fatal("non-matching name should be allowed")
	}
	filter = NewNameFilter([]string{`^TEST/`})
	if filter.Allows("TEST/20140207AL0000000_____DT_PARTIC__x.xml") {
		t.Fatal("regex on relative name should exclude")
	}
	var nilFilter *NameFilter
	if !nilFilter.Allows("anything") {
		t.Fatal("nil filter allows everything")
	}
}
