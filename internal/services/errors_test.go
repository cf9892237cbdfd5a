package services_test

import (
	"errors"
	"strings"
	"testing"

	"gamecatalog/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrUpstream, "fetch", "batch", "all hosts exhausted", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"fetch", "batch", "all hosts exhausted"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected default detail, got %q", err.Error())
	}
}

func TestFatalAndExitCodeMapping(t *testing.T) {
	cold := services.Wrap(services.ErrColdStart, "guard", "", "yield 3 below 50", nil)
	if !services.IsFatal(cold) {
		t.Fatal("expected cold start to be fatal")
	}
	if code := services.ExitCode(cold); code != 3 {
		t.Fatalf("expected exit 3 for cold start, got %d", code)
	}

	transient := services.Wrap(services.ErrTransient, "fetch", "batch", "throttled", nil)
	if services.IsFatal(transient) {
		t.Fatal("expected transient failure to be absorbed")
	}

	cfgErr := services.Wrap(services.ErrConfiguration, "config", "load", "bad", nil)
	if code := services.ExitCode(cfgErr); code != 2 {
		t.Fatalf("expected exit 2 for configuration error, got %d", code)
	}
	if code := services.ExitCode(nil); code != 0 {
		t.Fatalf("expected exit 0 for nil, got %d", code)
	}
}
