package classifier

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"

	"github.com/mtlprog/fundfee/internal/domain"
)

func TestRegisterPrimitiveAndClassify(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterPrimitive(domain.Asset{ID: "MTL:GISSUER", Precision: 7}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	kind, comps, precision := r.Classify("MTL:GISSUER")
	if kind != Primitive {
		t.Errorf("kind = %v, want primitive", kind)
	}
	if comps != nil {
		t.Errorf("components = %v, want nil", comps)
	}
	if precision != 7 {
		t.Errorf("precision = %d, want 7", precision)
	}
}

func TestClassifyUnknownIsUnsupported(t *testing.T) {
	r := NewRegistry()
	kind, _, _ := r.Classify("UNKNOWN")
	if kind != Unsupported {
		t.Errorf("kind = %v, want unsupported", kind)
	}
}

func TestPrecisionIsImmutable(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterPrimitive(domain.Asset{ID: "A", Precision: 7}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := r.RegisterPrimitive(domain.Asset{ID: "A", Precision: 8})
	if !errors.Is(err, ErrPrecisionChanged) {
		t.Errorf("error = %v, want ErrPrecisionChanged", err)
	}
	// Same precision may change the kind.
	if err := r.MarkUnsupported(domain.Asset{ID: "A", Precision: 7}); err != nil {
		t.Errorf("unexpected error re-registering with same precision: %v", err)
	}
}

func TestRegisterDerivativeValidation(t *testing.T) {
	tests := []struct {
		name       string
		components []Component
	}{
		{"empty", nil},
		{"self reference", []Component{{Asset: "LP", AmountPerUnit: sdkmath.NewInt(1)}}},
		{"missing asset", []Component{{AmountPerUnit: sdkmath.NewInt(1)}}},
		{"negative amount", []Component{{Asset: "A", AmountPerUnit: sdkmath.NewInt(-1)}}},
		{"nil amount", []Component{{Asset: "A"}}},
		{"duplicate", []Component{
			{Asset: "A", AmountPerUnit: sdkmath.NewInt(1)},
			{Asset: "A", AmountPerUnit: sdkmath.NewInt(2)},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.RegisterDerivative(domain.Asset{ID: "LP", Precision: 7}, tt.components)
			if !errors.Is(err, ErrInvalidDecomposition) {
				t.Errorf("error = %v, want ErrInvalidDecomposition", err)
			}
		})
	}
}

func TestRegisterDerivativeCopiesComponents(t *testing.T) {
	r := NewRegistry()
	comps := []Component{
		{Asset: "A", AmountPerUnit: sdkmath.NewInt(3)},
		{Asset: "B", AmountPerUnit: sdkmath.NewInt(4)},
	}
	if err := r.RegisterDerivative(domain.Asset{ID: "LP", Precision: 7}, comps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	comps[0].Asset = "MUTATED"

	kind, got, _ := r.Classify("LP")
	if kind != Derivative {
		t.Errorf("kind = %v, want derivative", kind)
	}
	if len(got) != 2 || got[0].Asset != "A" {
		t.Errorf("components = %v, want registry-owned copy", got)
	}
}

func TestClassifyReturnsCopy(t *testing.T) {
	r := NewRegistry()
	comps := []Component{{Asset: "A", AmountPerUnit: sdkmath.NewInt(3)}}
	if err := r.RegisterDerivative(domain.Asset{ID: "LP", Precision: 7}, comps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, got, _ := r.Classify("LP")
	got[0].Asset = "MUTATED"
	got[0].AmountPerUnit = sdkmath.NewInt(999)

	_, again, _ := r.Classify("LP")
	if again[0].Asset != "A" || !again[0].AmountPerUnit.Equal(sdkmath.NewInt(3)) {
		t.Errorf("components = %v, caller mutation leaked into the registry", again)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{Unsupported, Primitive, Derivative} {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseKind("nope"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
