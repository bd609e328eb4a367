package vendors

import (
	"time"

	"github.com/triarom/voip-phonebook-go/internal/models"
)

// Catalog is the durable vendor service descriptor registry consumed by the
// provisioning engine.
type Catalog interface {
	GetServiceByName(name string) (*models.VendorService, error)
	CreateService(svc *models.VendorService) error
	UpdateService(name, friendlyName string, fields []models.FieldDescriptor, version string) error
	SetProvisionedAt(name string, t time.Time) error
}

// EntitlementStore is the durable entitlement registry.
type EntitlementStore interface {
	CreateEntitlement(siteID, serviceName string, configuration map[string]any, fieldMapping map[string]string) (*models.Entitlement, error)
	GetEntitlement(id string) (*models.Entitlement, error)
	GetEntitlementByAccessKey(accessKey string) (*models.Entitlement, error)
	ListEntitlementsForService(serviceName string) ([]*models.Entitlement, error)
	UpdateEntitlementStatus(id string, status models.EntitlementStatus) error
	ReplaceEntitlementMetadata(id string, metadata map[string]any) error
	DeleteEntitlement(id string) error
}

// Directory is the read-only site/phonebook collaborator supplied by the
// persistence layer.
type Directory interface {
	GetSite(id string) (*models.Site, error)
	FieldsForSite(siteID string) ([]models.PhonebookField, error)
	GetPhonebook(id string) (*models.Phonebook, error)
	PhonebooksForSite(siteID string) ([]models.Phonebook, error)
	EntriesForPhonebook(phonebookID string) ([]models.PhonebookEntry, error)
}
