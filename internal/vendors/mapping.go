package vendors

import (
	verrors "github.com/triarom/voip-phonebook-go/internal/errors"
	"github.com/triarom/voip-phonebook-go/internal/models"
)

// ValidateFieldMapping checks a vendor-field-name → site-field-id mapping
// against the site's field set and the vendor's declared manifest. All four
// rules must hold:
//
//  1. every required site field is covered by some mapping value,
//  2. every required vendor field appears as a mapping key,
//  3. every mapping value references an existing site field,
//  4. every mapping key references a declared vendor field.
//
// The first violation is returned; no partial mapping is ever persisted by
// callers.
func ValidateFieldMapping(mapping map[string]string, siteFields []models.PhonebookField, vendorFields []models.FieldDescriptor) error {
	siteByID := make(map[string]models.PhonebookField, len(siteFields))
	for _, f := range siteFields {
		siteByID[f.ID] = f
	}
	vendorByName := make(map[string]models.FieldDescriptor, len(vendorFields))
	for _, f := range vendorFields {
		vendorByName[f.Name] = f
	}
	mappedSiteIDs := make(map[string]bool, len(mapping))
	for _, siteID := range mapping {
		mappedSiteIDs[siteID] = true
	}

	for _, f := range siteFields {
		if f.Required && !mappedSiteIDs[f.ID] {
			return &verrors.FieldMappingError{
				Side:   verrors.SideSite,
				Field:  f.Name,
				Reason: verrors.ReasonRequiredSiteFieldUnmapped,
			}
		}
	}

	for _, f := range vendorFields {
		if !f.Required {
			continue
		}
		if _, ok := mapping[f.Name]; !ok {
			return &verrors.FieldMappingError{
				Side:   verrors.SideVendor,
				Field:  f.Name,
				Reason: verrors.ReasonRequiredVendorFieldUnmapped,
			}
		}
	}

	for vendorName, siteID := range mapping {
		if _, ok := siteByID[siteID]; !ok {
			return &verrors.FieldMappingError{
				Side:   verrors.SideSite,
				Field:  siteID,
				Reason: verrors.ReasonUnknownSiteField,
			}
		}
		if _, ok := vendorByName[vendorName]; !ok {
			return &verrors.FieldMappingError{
				Side:   verrors.SideVendor,
				Field:  vendorName,
				Reason: verrors.ReasonUnknownVendorField,
			}
		}
	}

	return nil
}

// mappingSurvives reports whether every vendor field referenced by the
// mapping still exists in the newly declared field set. Used during
// upgrades to decide which entitlements stay valid.
func mappingSurvives(mapping map[string]string, declared []models.FieldDescriptor) bool {
	names := make(map[string]bool, len(declared))
	for _, f := range declared {
		names[f.Name] = true
	}
	for vendorName := range mapping {
		if !names[vendorName] {
			return false
		}
	}
	return true
}

// fieldSetsEqual compares two declared field sets structurally, order
// included. Storage-internal attributes never reach FieldDescriptor, so a
// plain comparison is the whole rule.
func fieldSetsEqual(a, b []models.FieldDescriptor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
