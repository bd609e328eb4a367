package store

import (
	"database/sql"
	"fmt"
	"time"

	verrors "github.com/triarom/voip-phonebook-go/internal/errors"
	"github.com/triarom/voip-phonebook-go/internal/models"
)

const entitlementColumns = `id, site_id, vendor_service_name, status, field_mapping, configuration, access_key, metadata, created_at, updated_at`

// CreateEntitlement persists a new entitlement in status setup with a fresh
// access key. Returns verrors.ErrEntitlementExists when the (site, service)
// pair already has one.
func (s *Store) CreateEntitlement(siteID, serviceName string, configuration map[string]any, fieldMapping map[string]string) (*models.Entitlement, error) {
	existing, err := s.GetEntitlementForSiteService(siteID, serviceName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, verrors.ErrEntitlementExists
	}

	accessKey, err := newAccessKey()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ent := &models.Entitlement{
		ID:                newID(),
		SiteID:            siteID,
		VendorServiceName: serviceName,
		Status:            models.EntitlementSetup,
		FieldMapping:      fieldMapping,
		Configuration:     configuration,
		AccessKey:         accessKey,
		Metadata:          map[string]any{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	mapping, err := marshalJSON(ent.FieldMapping)
	if err != nil {
		return nil, err
	}
	config, err := marshalJSON(ent.Configuration)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(`
		INSERT INTO entitlements (`+entitlementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, '{}', ?, ?)`,
		ent.ID, ent.SiteID, ent.VendorServiceName, string(ent.Status),
		mapping, config, ent.AccessKey, ent.CreatedAt.Unix(), ent.UpdatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("create entitlement: %w", err)
	}
	return ent, nil
}

// GetEntitlement retrieves an entitlement by ID. Returns (nil, nil) when
// absent.
func (s *Store) GetEntitlement(id string) (*models.Entitlement, error) {
	row := s.db.QueryRow(`SELECT `+entitlementColumns+` FROM entitlements WHERE id = ?`, id)
	return scanEntitlement(row)
}

// GetEntitlementByAccessKey retrieves an entitlement by its bearer access
// key. Returns (nil, nil) when absent.
func (s *Store) GetEntitlementByAccessKey(accessKey string) (*models.Entitlement, error) {
	row := s.db.QueryRow(`SELECT `+entitlementColumns+` FROM entitlements WHERE access_key = ?`, accessKey)
	return scanEntitlement(row)
}

// GetEntitlementForSiteService retrieves the entitlement binding a site to
// a vendor service, if one exists.
func (s *Store) GetEntitlementForSiteService(siteID, serviceName string) (*models.Entitlement, error) {
	row := s.db.QueryRow(`SELECT `+entitlementColumns+` FROM entitlements
		WHERE site_id = ? AND vendor_service_name = ?`, siteID, serviceName)
	return scanEntitlement(row)
}

// ListEntitlementsForService returns all entitlements bound to the named
// vendor service.
func (s *Store) ListEntitlementsForService(serviceName string) ([]*models.Entitlement, error) {
	rows, err := s.db.Query(`SELECT `+entitlementColumns+` FROM entitlements
		WHERE vendor_service_name = ? ORDER BY created_at`, serviceName)
	if err != nil {
		return nil, fmt.Errorf("list entitlements for service: %w", err)
	}
	defer rows.Close()
	return scanEntitlements(rows)
}

// ListEntitlementsForSite returns all entitlements owned by a site.
func (s *Store) ListEntitlementsForSite(siteID string) ([]*models.Entitlement, error) {
	rows, err := s.db.Query(`SELECT `+entitlementColumns+` FROM entitlements
		WHERE site_id = ? ORDER BY created_at`, siteID)
	if err != nil {
		return nil, fmt.Errorf("list entitlements for site: %w", err)
	}
	defer rows.Close()
	return scanEntitlements(rows)
}

// UpdateEntitlementStatus sets the status of a single entitlement.
func (s *Store) UpdateEntitlementStatus(id string, status models.EntitlementStatus) error {
	res, err := s.db.Exec(`UPDATE entitlements SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("update entitlement status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return verrors.ErrEntitlementNotFound
	}
	return nil
}

// ReplaceEntitlementMetadata replaces the metadata bag verbatim.
func (s *Store) ReplaceEntitlementMetadata(id string, metadata map[string]any) error {
	meta, err := marshalJSON(metadata)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE entitlements SET metadata = ?, updated_at = ? WHERE id = ?`,
		meta, time.Now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("replace entitlement metadata: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return verrors.ErrEntitlementNotFound
	}
	return nil
}

// DeleteEntitlement removes an entitlement permanently.
func (s *Store) DeleteEntitlement(id string) error {
	res, err := s.db.Exec(`DELETE FROM entitlements WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entitlement: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return verrors.ErrEntitlementNotFound
	}
	return nil
}

func scanEntitlement(sc scanner) (*models.Entitlement, error) {
	var ent models.Entitlement
	var status, mapping, config, meta string
	var createdAt, updatedAt int64

	err := sc.Scan(&ent.ID, &ent.SiteID, &ent.VendorServiceName, &status,
		&mapping, &config, &ent.AccessKey, &meta, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan entitlement: %w", err)
	}

	ent.Status = models.EntitlementStatus(status)
	if err := unmarshalJSON(mapping, &ent.FieldMapping); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(config, &ent.Configuration); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(meta, &ent.Metadata); err != nil {
		return nil, err
	}
	ent.CreatedAt = time.Unix(createdAt, 0).UTC()
	ent.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &ent, nil
}

func scanEntitlements(rows *sql.Rows) ([]*models.Entitlement, error) {
	var ents []*models.Entitlement
	for rows.Next() {
		ent, err := scanEntitlement(rows)
		if err != nil {
			return nil, err
		}
		ents = append(ents, ent)
	}
	return ents, rows.Err()
}
