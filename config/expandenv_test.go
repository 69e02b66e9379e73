package config

import (
	"errors"
	"strings"
	"testing"
)

func TestExpandEnvStrict_MissingVarErrors(t *testing.T) {
	t.Setenv("PRESENT", "ok")

	_, err := ExpandEnvStrict("a=${PRESENT} b=${MISSING}")
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("ExpandEnvStrict() error = %v, want ErrInvalidConfig", err)
	}
	if !strings.Contains(err.Error(), "MISSING") {
		t.Fatalf("expected missing var name in error, got: %v", err)
	}
}

func TestExpandEnvStrict_DollarEscape(t *testing.T) {
	t.Setenv("X", "y")

	out, err := ExpandEnvStrict("$$${X}")
	if err != nil {
		t.Fatalf("ExpandEnvStrict() error = %v", err)
	}
	if out != "$y" {
		t.Fatalf("ExpandEnvStrict() = %q, want %q", out, "$y")
	}
}

func TestExpandEnvStrict_LeavesWorkflowReferences(t *testing.T) {
	t.Setenv("REGION", "eu-west")

	in := "region: ${REGION}\nprompt: ${steps.caption.text}\nstyle: ${params.style}\nbare: $HOME"
	out, err := ExpandEnvStrict(in)
	if err != nil {
		t.Fatalf("ExpandEnvStrict() error = %v", err)
	}

	want := "region: eu-west\nprompt: ${steps.caption.text}\nstyle: ${params.style}\nbare: $HOME"
	if out != want {
		t.Errorf("ExpandEnvStrict() = %q, want %q", out, want)
	}
}
