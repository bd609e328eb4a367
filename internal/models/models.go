// Package models holds the shared data types for the phonebook platform:
// sites, phonebooks, typed fields, vendor service descriptors and the
// entitlements that bind a site to a vendor service.
package models

import "time"

// FieldDescriptor is a single capability field declared by a vendor service
// in its manifest.
type FieldDescriptor struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Remark   string `json:"remark,omitempty"`
}

// VendorService is the durable catalog record for a known vendor service
// kind. It is created or updated only by a successful provisioning
// negotiation, never by user action.
type VendorService struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	FriendlyName    string            `json:"friendly_name"`
	Version         string            `json:"version"`
	SupportedFields []FieldDescriptor `json:"supported_fields"`
	CreatedAt       time.Time         `json:"created_at"`
	// ProvisionedAt records the last successful provision_accept for this
	// service. Observability only.
	ProvisionedAt *time.Time `json:"provisioned_at,omitempty"`
}

// SupportsField reports whether the service declares a field with the given
// name.
func (s *VendorService) SupportsField(name string) bool {
	for _, f := range s.SupportedFields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// EntitlementStatus is the lifecycle state of an entitlement. Transitions
// are driven by the provisioning protocol; users may only request pause and
// resume.
type EntitlementStatus string

const (
	EntitlementSetup     EntitlementStatus = "setup"
	EntitlementAvailable EntitlementStatus = "available"
	EntitlementInvalid   EntitlementStatus = "invalid"
	EntitlementPaused    EntitlementStatus = "paused"
)

// Entitlement authorizes one vendor service to read one site's phonebooks.
// FieldMapping maps vendor field names to site field IDs. At most one
// entitlement exists per (site, vendor service) pair.
type Entitlement struct {
	ID                string            `json:"id"`
	SiteID            string            `json:"site_id"`
	VendorServiceName string            `json:"vendor_service_name"`
	Status            EntitlementStatus `json:"status"`
	FieldMapping      map[string]string `json:"field_mapping"`
	Configuration     map[string]any    `json:"configuration"`
	// AccessKey is the bearer credential the vendor presents on phonebook
	// reads.
	AccessKey string         `json:"access_key"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Site is a tenant. Sites own phonebooks and a set of typed fields shared
// by every phonebook in the site.
type Site struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// PhonebookField defines a column available to a site's phonebooks.
type PhonebookField struct {
	ID       string `json:"id"`
	SiteID   string `json:"site_id"`
	Name     string `json:"name"`
	Type     string `json:"type"` // text, number, email or bool
	Required bool   `json:"required"`
	// CreatedBySystem marks the default fields seeded when the site was
	// registered.
	CreatedBySystem bool      `json:"created_by_system"`
	CreatedAt       time.Time `json:"created_at"`
}

// Phonebook is a named contact list owned by a site.
type Phonebook struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// PhonebookEntry is a single contact. Values is keyed by site field ID.
type PhonebookEntry struct {
	ID          string            `json:"id"`
	PhonebookID string            `json:"phonebook_id"`
	Values      map[string]string `json:"values"`
	CreatedAt   time.Time         `json:"created_at"`
}
