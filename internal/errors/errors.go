// Package errors provides structured errors for the vendor provisioning
// subsystem. ProtocolError carries enough identity (operation, service,
// entitlement, field) for both logging and the typed error payloads sent
// back to vendors.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrServiceNotFound         = errors.New("vendor service does not exist")
	ErrSiteNotFound            = errors.New("site does not exist")
	ErrEntitlementNotFound     = errors.New("entitlement does not exist")
	ErrEntitlementExists       = errors.New("entitlement already exists")
	ErrInvalidAccessKey        = errors.New("invalid access key")
	ErrEntitlementNotAvailable = errors.New("entitlement not available")
	ErrPhonebookNotFound       = errors.New("phonebook not found")
	ErrAckTimeout              = errors.New("acknowledgement timeout")
	ErrNotConnected            = errors.New("vendor service not connected")
)

// ErrorType categorizes a protocol error per the failure taxonomy:
// handshake, negotiation, validation, runtime ack handling and reads.
type ErrorType string

const (
	ErrorTypeHandshake   ErrorType = "handshake"
	ErrorTypeNegotiation ErrorType = "negotiation"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeProtocol    ErrorType = "protocol"
	ErrorTypeRead        ErrorType = "read"
)

// ProtocolError is a structured error for provisioning operations.
type ProtocolError struct {
	Type          ErrorType
	Op            string // operation that failed (e.g. "grant", "provision_request")
	Service       string // vendor service name if applicable
	EntitlementID string
	Err           error
	Timestamp     time.Time
}

func (e *ProtocolError) Error() string {
	switch {
	case e.Service != "" && e.EntitlementID != "":
		return fmt.Sprintf("%s failed for %s/%s: %v", e.Op, e.Service, e.EntitlementID, e.Err)
	case e.Service != "":
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Service, e.Err)
	default:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(errorType ErrorType, op, service string, err error) *ProtocolError {
	return &ProtocolError{
		Type:      errorType,
		Op:        op,
		Service:   service,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// WithEntitlement adds the entitlement identity to the error.
func (e *ProtocolError) WithEntitlement(id string) *ProtocolError {
	e.EntitlementID = id
	return e
}

// MappingSide identifies which side of a field mapping required the
// offending field.
type MappingSide string

const (
	SideSite   MappingSide = "site"
	SideVendor MappingSide = "vendor"
)

// FieldMappingError reports a field mapping that violates one of the
// grant-time coverage or validity rules. Field is the offending field
// (a site field ID or name for SideSite, a vendor field name for
// SideVendor) and Reason is a stable machine-readable code.
type FieldMappingError struct {
	Side   MappingSide
	Field  string
	Reason string
}

func (e *FieldMappingError) Error() string {
	return fmt.Sprintf("field mapping invalid: %s (%s field %q)", e.Reason, e.Side, e.Field)
}

// Mapping rule violation codes.
const (
	ReasonRequiredSiteFieldUnmapped   = "required_site_field_unmapped"
	ReasonRequiredVendorFieldUnmapped = "required_vendor_field_unmapped"
	ReasonUnknownSiteField            = "unknown_site_field"
	ReasonUnknownVendorField          = "unknown_vendor_field"
)

// IsMappingError reports whether err is (or wraps) a FieldMappingError.
func IsMappingError(err error) bool {
	var me *FieldMappingError
	return errors.As(err, &me)
}

// ReadErrorCode translates a read-path error into the stable code returned
// to vendors in reply payloads. Unrecognized errors map to internal_error
// so a vendor never sees an ambiguous empty reply.
func ReadErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAccessKey):
		return "invalid_access_key"
	case errors.Is(err, ErrEntitlementNotAvailable):
		return "entitlement_not_available"
	case errors.Is(err, ErrPhonebookNotFound):
		return "phonebook_not_found"
	case errors.Is(err, ErrEntitlementNotFound):
		return "entitlement_does_not_exist"
	default:
		return "internal_error"
	}
}
