package main

import "testing"

func TestParseSamples(t *testing.T) {
	got, err := parseSamples("1, 2.5,-3")
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1, 2.5, -3}
	if len(got) != len(want) {
		t.Fatalf("parseSamples() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}

	if _, err := parseSamples("1,x"); err == nil {
		t.Error("parseSamples should reject non-numeric input")
	}
}
