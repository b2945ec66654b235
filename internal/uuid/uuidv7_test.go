package uuid

import "testing"

func TestNew(t *testing.T) {
	a := New()
	b := New()
	if !IsValid(a) || !IsValid(b) {
		t.Fatalf("expected valid uuids, got %q %q", a, b)
	}
	if a == b {
		t.Error("expected distinct ids")
	}
	if a[14] != '7' {
		t.Errorf("expected version 7, got %q", a)
	}
}

func TestParse(t *testing.T) {
	got, err := Parse("0190C3A1-2B3C-7D4E-8F90-123456789ABC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0190c3a1-2b3c-7d4e-8f90-123456789abc" {
		t.Errorf("expected lower-cased id, got %s", got)
	}
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Error("expected error for invalid id")
	}
}
