package vendors

import (
	"errors"
	"testing"

	verrors "github.com/triarom/voip-phonebook-go/internal/errors"
	"github.com/triarom/voip-phonebook-go/internal/models"
)

func TestValidateFieldMapping(t *testing.T) {
	siteFields := []models.PhonebookField{
		{ID: "sf-name", Name: "Name", Required: true},
		{ID: "sf-number", Name: "Number", Required: true},
		{ID: "sf-remark", Name: "Remark", Required: false},
	}
	vendorFields := []models.FieldDescriptor{
		{Name: "display_name", Required: true},
		{Name: "phone", Required: true},
		{Name: "note", Required: false},
	}

	tests := []struct {
		name       string
		mapping    map[string]string
		wantReason string
	}{
		{
			name: "complete mapping",
			mapping: map[string]string{
				"display_name": "sf-name",
				"phone":        "sf-number",
				"note":         "sf-remark",
			},
		},
		{
			name: "optional fields may stay unmapped",
			mapping: map[string]string{
				"display_name": "sf-name",
				"phone":        "sf-number",
			},
		},
		{
			name: "required site field unmapped",
			mapping: map[string]string{
				"display_name": "sf-name",
				"phone":        "sf-remark",
			},
			wantReason: verrors.ReasonRequiredSiteFieldUnmapped,
		},
		{
			name: "required vendor field unmapped",
			mapping: map[string]string{
				"display_name": "sf-name",
				"note":         "sf-number",
			},
			wantReason: verrors.ReasonRequiredVendorFieldUnmapped,
		},
		{
			name: "mapping references unknown site field",
			mapping: map[string]string{
				"display_name": "sf-name",
				"phone":        "sf-number",
				"note":         "sf-missing",
			},
			wantReason: verrors.ReasonUnknownSiteField,
		},
		{
			name: "mapping references undeclared vendor field",
			mapping: map[string]string{
				"display_name": "sf-name",
				"phone":        "sf-number",
				"extension":    "sf-remark",
			},
			wantReason: verrors.ReasonUnknownVendorField,
		},
		{
			name:       "empty mapping misses required site fields",
			mapping:    map[string]string{},
			wantReason: verrors.ReasonRequiredSiteFieldUnmapped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFieldMapping(tt.mapping, siteFields, vendorFields)
			if tt.wantReason == "" {
				if err != nil {
					t.Fatalf("expected valid mapping, got %v", err)
				}
				return
			}
			var me *verrors.FieldMappingError
			if !errors.As(err, &me) {
				t.Fatalf("expected FieldMappingError, got %v", err)
			}
			if me.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", me.Reason, tt.wantReason)
			}
		})
	}
}

func TestMappingSurvives(t *testing.T) {
	mapping := map[string]string{
		"display_name": "sf-name",
		"phone":        "sf-number",
	}

	declared := []models.FieldDescriptor{
		{Name: "display_name", Required: true},
		{Name: "phone", Required: true},
		{Name: "note"},
	}
	if !mappingSurvives(mapping, declared) {
		t.Error("mapping should survive when every referenced vendor field is still declared")
	}

	shrunk := []models.FieldDescriptor{
		{Name: "display_name", Required: true},
	}
	if mappingSurvives(mapping, shrunk) {
		t.Error("mapping should not survive when a referenced vendor field was removed")
	}

	if !mappingSurvives(map[string]string{}, nil) {
		t.Error("empty mapping always survives")
	}
}

func TestFieldSetsEqual(t *testing.T) {
	a := []models.FieldDescriptor{
		{Name: "display_name", Required: true},
		{Name: "phone", Required: true, Remark: "E.164"},
	}
	b := []models.FieldDescriptor{
		{Name: "display_name", Required: true},
		{Name: "phone", Required: true, Remark: "E.164"},
	}
	if !fieldSetsEqual(a, b) {
		t.Error("identical field sets should compare equal")
	}

	// Order matters: the manifest is declared as an ordered list.
	reordered := []models.FieldDescriptor{b[1], b[0]}
	if fieldSetsEqual(a, reordered) {
		t.Error("reordered field sets should not compare equal")
	}

	requiredFlipped := []models.FieldDescriptor{
		{Name: "display_name", Required: true},
		{Name: "phone", Required: false, Remark: "E.164"},
	}
	if fieldSetsEqual(a, requiredFlipped) {
		t.Error("required flag change should not compare equal")
	}

	if fieldSetsEqual(a, a[:1]) {
		t.Error("different lengths should not compare equal")
	}
}
