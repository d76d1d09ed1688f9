package archset

import (
	"reflect"
	"testing"
)

func TestExpandMainline(t *testing.T) {
	got := Expand([]string{Mainline, "amd64"})
	want := append([]string{}, All...)
	// amd64 is already in All, expansion must not duplicate it.
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expand(mainline,amd64) = %v, want %v", got, want)
	}
}

func TestExpandIdempotent(t *testing.T) {
	in := []string{Mainline, "amd64", "noarch"}
	once := Expand(in)
	twice := Expand(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("Expand not idempotent: once=%v twice=%v", once, twice)
	}
}

func TestExpandDedupSorted(t *testing.T) {
	got := Expand([]string{"riscv64", "amd64", "amd64", "arm64"})
	want := []string{"amd64", "arm64", "riscv64"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expand = %v, want %v", got, want)
	}
}

func TestUnknown(t *testing.T) {
	bad := Unknown([]string{"amd64", "mainline", "sparc64"})
	if !reflect.DeepEqual(bad, []string{"sparc64"}) {
		t.Fatalf("Unknown = %v", bad)
	}
}

func TestEligibleForWorker(t *testing.T) {
	cases := []struct {
		jobArch, workerArch string
		want                bool
	}{
		{"amd64", "amd64", true},
		{"noarch", "amd64", true},
		{"noarch", "arm64", false},
		{"arm64", "amd64", false},
		{"arm64", "arm64", true},
	}
	for _, c := range cases {
		if got := EligibleForWorker(c.jobArch, c.workerArch); got != c.want {
			t.Errorf("EligibleForWorker(%q, %q) = %v, want %v", c.jobArch, c.workerArch, got, c.want)
		}
	}
}
