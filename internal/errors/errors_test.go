package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestProtocolErrorFormatting(t *testing.T) {
	err := NewProtocolError(ErrorTypeValidation, "create_entitlement", "yealink", ErrSiteNotFound)
	if !errors.Is(err, ErrSiteNotFound) {
		t.Error("ProtocolError should unwrap to its cause")
	}
	if got := err.Error(); got != "create_entitlement failed for yealink: site does not exist" {
		t.Errorf("unexpected message: %q", got)
	}

	withEnt := NewProtocolError(ErrorTypeProtocol, "grant", "yealink", ErrAckTimeout).WithEntitlement("ent-1")
	if got := withEnt.Error(); got != "grant failed for yealink/ent-1: acknowledgement timeout" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestIsMappingError(t *testing.T) {
	me := &FieldMappingError{Side: SideVendor, Field: "fax", Reason: ReasonUnknownVendorField}
	if !IsMappingError(me) {
		t.Error("direct FieldMappingError not recognized")
	}
	if !IsMappingError(fmt.Errorf("validate: %w", me)) {
		t.Error("wrapped FieldMappingError not recognized")
	}
	if IsMappingError(ErrSiteNotFound) {
		t.Error("unrelated error recognized as mapping error")
	}
}

func TestReadErrorCode(t *testing.T) {
	cases := map[error]string{
		ErrInvalidAccessKey:             "invalid_access_key",
		ErrEntitlementNotAvailable:      "entitlement_not_available",
		ErrPhonebookNotFound:            "phonebook_not_found",
		ErrEntitlementNotFound:          "entitlement_does_not_exist",
		errors.New("something unexpected"): "internal_error",
	}
	for err, want := range cases {
		if got := ReadErrorCode(err); got != want {
			t.Errorf("ReadErrorCode(%v) = %q, want %q", err, got, want)
		}
	}
}
