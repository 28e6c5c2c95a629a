package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

type testPayload struct {
	Name     string `json:"name" validate:"notblank,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := testPayload{
		Name:     "Alice",
		Email:    "alice@example.com",
		Password: "password",
	}

	if err := ValidateStruct(payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	payload := testPayload{
		Name:     "   ",
		Email:    "invalid",
		Password: "short",
	}

	err := ValidateStruct(payload)
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	if len(vErrs) != 3 {
		t.Fatalf("expected 3 validation errors, got %d", len(vErrs))
	}

	fields := vErrs.Fields()
	if fields["email"] != "The email must be a valid email address." {
		t.Fatalf("unexpected email message: %q", fields["email"])
	}
	if fields["name"] != "The name field is required." {
		t.Fatalf("unexpected name message: %q", fields["name"])
	}
	if fields["password"] != "The password must be at least 8 characters." {
		t.Fatalf("unexpected password message: %q", fields["password"])
	}
}

func TestNestedFieldPath(t *testing.T) {
	type payload struct {
		Roles []string `json:"roles" validate:"omitempty,dive,uuid"`
	}

	err := ValidateStruct(payload{Roles: []string{"not-a-uuid"}})
	vErrs, ok := err.(ValidationErrors)
	if !ok || len(vErrs) != 1 {
		t.Fatalf("expected one validation error, got %v", err)
	}
	if vErrs[0].Field != "roles[0]" {
		t.Fatalf("expected nested field path, got %q", vErrs[0].Field)
	}
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("fileadmin", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "fileadmin"
	})
	if err != nil {
		t.Fatalf("register validation: %v", err)
	}

	type custom struct {
		Value string `validate:"fileadmin"`
	}

	if err := ValidateStruct(custom{Value: "fileadmin"}); err != nil {
		t.Fatalf("expected validation to pass, got %v", err)
	}
	if err := ValidateStruct(custom{Value: "other"}); err == nil {
		t.Fatal("expected validation to fail for non-matching value")
	}
}
