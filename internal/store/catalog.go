package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/triarom/voip-phonebook-go/internal/models"
)

// CreateService inserts a new vendor service descriptor. The descriptor is
// stored verbatim from a provisioning manifest.
func (s *Store) CreateService(svc *models.VendorService) error {
	if svc == nil {
		return fmt.Errorf("service is nil")
	}
	if svc.ID == "" {
		svc.ID = newID()
	}
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = time.Now().UTC()
	}

	fields, err := marshalJSON(svc.SupportedFields)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO vendor_services (id, name, friendly_name, version, supported_fields, created_at, provisioned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		svc.ID, svc.Name, svc.FriendlyName, svc.Version, fields,
		svc.CreatedAt.Unix(), nullableTimeUnix(svc.ProvisionedAt),
	)
	if err != nil {
		return fmt.Errorf("create vendor service: %w", err)
	}
	return nil
}

// UpdateService replaces the descriptor for an existing service, keyed by
// name. Used when a vendor provisions with a new version.
func (s *Store) UpdateService(name, friendlyName string, fields []models.FieldDescriptor, version string) error {
	fieldsJSON, err := marshalJSON(fields)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`
		UPDATE vendor_services SET friendly_name = ?, supported_fields = ?, version = ?
		WHERE name = ?`,
		friendlyName, fieldsJSON, version, name,
	)
	if err != nil {
		return fmt.Errorf("update vendor service: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("vendor service %q not found", name)
	}
	return nil
}

// GetServiceByName retrieves a vendor service descriptor by its unique
// name. Returns (nil, nil) when no such service exists.
func (s *Store) GetServiceByName(name string) (*models.VendorService, error) {
	row := s.db.QueryRow(`SELECT id, name, friendly_name, version, supported_fields, created_at, provisioned_at
		FROM vendor_services WHERE name = ?`, name)
	return scanService(row)
}

// ListServices returns all known vendor service descriptors.
func (s *Store) ListServices() ([]*models.VendorService, error) {
	rows, err := s.db.Query(`SELECT id, name, friendly_name, version, supported_fields, created_at, provisioned_at
		FROM vendor_services ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list vendor services: %w", err)
	}
	defer rows.Close()

	var services []*models.VendorService
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

// SetProvisionedAt records the time of the last accepted provisioning for
// the named service.
func (s *Store) SetProvisionedAt(name string, t time.Time) error {
	_, err := s.db.Exec(`UPDATE vendor_services SET provisioned_at = ? WHERE name = ?`, t.Unix(), name)
	if err != nil {
		return fmt.Errorf("set provisioned_at: %w", err)
	}
	return nil
}

func scanService(sc scanner) (*models.VendorService, error) {
	var svc models.VendorService
	var fields string
	var createdAt int64
	var provisionedAt sql.NullInt64

	err := sc.Scan(&svc.ID, &svc.Name, &svc.FriendlyName, &svc.Version, &fields, &createdAt, &provisionedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan vendor service: %w", err)
	}

	if err := unmarshalJSON(fields, &svc.SupportedFields); err != nil {
		return nil, err
	}
	svc.CreatedAt = time.Unix(createdAt, 0).UTC()
	if provisionedAt.Valid {
		ts := time.Unix(provisionedAt.Int64, 0).UTC()
		svc.ProvisionedAt = &ts
	}
	return &svc, nil
}

func nullableTimeUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}
