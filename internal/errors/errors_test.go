package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("add lot: %w", NewValidationError("quantity", 0, "must be positive"))

	if !Is(err, ErrInputValidation) {
		t.Fatalf("expected %v to match ErrInputValidation", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatal("expected As to find ValidationError")
	}
	if ve.Field != "quantity" {
		t.Errorf("Field = %q, want quantity", ve.Field)
	}
}

func TestInsufficientInventoryError(t *testing.T) {
	err := NewInsufficientInventoryError("AAPL", 20, 10)

	if !Is(err, ErrInsufficientInventory) {
		t.Fatal("expected match on ErrInsufficientInventory")
	}
	if Is(err, ErrInputValidation) {
		t.Fatal("inventory error must not match validation sentinel")
	}
	want := "insufficient inventory for AAPL: requested 20, available 10"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}

func TestWrapKeepsSentinel(t *testing.T) {
	err := Wrapf(ErrDatabaseError, "failed to load lots for %s", "AAPL")
	if !Is(err, ErrDatabaseError) {
		t.Errorf("%v should match ErrDatabaseError", err)
	}
	if err.Error() != "failed to load lots for AAPL: database error" {
		t.Errorf("Error() = %q", err.Error())
	}
}
