package config

import (
	"testing"
	"time"
	_ "time/tzdata"
)

func TestMinutes(t *testing.T) {
	got, err := Minutes(" 1440, 60 ,")
	if err != nil {
		t.Fatalf("Minutes: %v", err)
	}
	if len(got) != 2 || got[0] != 24*time.Hour || got[1] != time.Hour {
		t.Fatalf("unexpected offsets: %v", got)
	}
	if _, err := Minutes("60,abc"); err == nil {
		t.Fatal("expected error for non-numeric entry")
	}
	if _, err := Minutes("-5"); err == nil {
		t.Fatal("expected error for negative entry")
	}
}

func TestTypedHelpers(t *testing.T) {
	t.Setenv("CFG_INT", "50")
	t.Setenv("CFG_DUR", "5m")
	t.Setenv("CFG_BOOL", "false")
	t.Setenv("CFG_LIST", "a, b,,c")
	t.Setenv("CFG_PORT", "70000")

	if n, err := Int("CFG_INT", 1); err != nil || n != 50 {
		t.Fatalf("Int = %d, %v", n, err)
	}
	if n, err := Int("CFG_MISSING", 7); err != nil || n != 7 {
		t.Fatalf("Int fallback = %d, %v", n, err)
	}
	if d, err := Duration("CFG_DUR", time.Second); err != nil || d != 5*time.Minute {
		t.Fatalf("Duration = %s, %v", d, err)
	}
	if Bool("CFG_BOOL", true) {
		t.Fatal("expected false")
	}
	if got := List("CFG_LIST"); len(got) != 3 {
		t.Fatalf("List = %v", got)
	}
	if _, err := Port("CFG_PORT", "8080"); err == nil {
		t.Fatal("expected port range error")
	}
}

func TestLocation(t *testing.T) {
	t.Setenv("CFG_TZ", "America/Guyana")
	loc, err := Location("CFG_TZ")
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc.String() != "America/Guyana" {
		t.Fatalf("unexpected location %s", loc)
	}
	t.Setenv("CFG_TZ", "Nowhere/Special")
	if _, err := Location("CFG_TZ"); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}
