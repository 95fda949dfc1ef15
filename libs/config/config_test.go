package config

import (
	"testing"
	"time"
)

type testSpec struct {
	Port    string        `envconfig:"PORT" default:"8080"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s"`
	Driver  string        `envconfig:"DRIVER" required:"true"`
}

func TestProcessDefaultsAndRequired(t *testing.T) {
	t.Setenv("BOOKSLOT_TEST_DRIVER", "memory")

	var spec testSpec
	if err := Process("BOOKSLOT_TEST", &spec); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if spec.Port != "8080" || spec.Timeout != 5*time.Second || spec.Driver != "memory" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}

func TestProcessMissingRequired(t *testing.T) {
	var spec testSpec
	if err := Process("BOOKSLOT_MISSING", &spec); err == nil {
		t.Fatal("expected error for missing required variable")
	}
}

func TestValidatePort(t *testing.T) {
	if err := ValidatePort("PORT", "8083"); err != nil {
		t.Fatalf("expected valid port, got %v", err)
	}
	for _, bad := range []string{"", "0", "70000", "http"} {
		if err := ValidatePort("PORT", bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" a, ,b ,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected split: %#v", got)
	}
}
