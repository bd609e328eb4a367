package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/triarom/voip-phonebook-go/internal/models"
)

// Default fields seeded into every new site. Vendors map their own field
// names onto these (and any user-defined fields) at entitlement time.
var defaultSiteFields = []models.PhonebookField{
	{Name: "Name", Type: "text", Required: true, CreatedBySystem: true},
	{Name: "Number", Type: "number", Required: true, CreatedBySystem: true},
	{Name: "Remark", Type: "text", Required: false, CreatedBySystem: true},
}

// CreateSite registers a new site and seeds its system default fields.
func (s *Store) CreateSite(name string) (*models.Site, error) {
	site := &models.Site{
		ID:        newID(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("create site: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO sites (id, name, created_at) VALUES (?, ?, ?)`,
		site.ID, site.Name, site.CreatedAt.Unix()); err != nil {
		return nil, fmt.Errorf("create site: %w", err)
	}
	for _, f := range defaultSiteFields {
		if _, err := tx.Exec(`
			INSERT INTO phonebook_fields (id, site_id, name, type, required, created_by_system, created_at)
			VALUES (?, ?, ?, ?, ?, 1, ?)`,
			newID(), site.ID, f.Name, f.Type, boolToInt(f.Required), site.CreatedAt.Unix()); err != nil {
			return nil, fmt.Errorf("seed site fields: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create site: %w", err)
	}
	return site, nil
}

// GetSite retrieves a site by ID. Returns (nil, nil) when absent.
func (s *Store) GetSite(id string) (*models.Site, error) {
	var site models.Site
	var createdAt int64
	err := s.db.QueryRow(`SELECT id, name, created_at FROM sites WHERE id = ?`, id).
		Scan(&site.ID, &site.Name, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get site: %w", err)
	}
	site.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &site, nil
}

// CreateField adds a user-defined field to a site.
func (s *Store) CreateField(siteID, name, fieldType string, required bool) (*models.PhonebookField, error) {
	field := &models.PhonebookField{
		ID:        newID(),
		SiteID:    siteID,
		Name:      name,
		Type:      fieldType,
		Required:  required,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(`
		INSERT INTO phonebook_fields (id, site_id, name, type, required, created_by_system, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		field.ID, field.SiteID, field.Name, field.Type, boolToInt(field.Required), field.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("create field: %w", err)
	}
	return field, nil
}

// FieldsForSite returns the site's field definitions.
func (s *Store) FieldsForSite(siteID string) ([]models.PhonebookField, error) {
	rows, err := s.db.Query(`SELECT id, site_id, name, type, required, created_by_system, created_at
		FROM phonebook_fields WHERE site_id = ? ORDER BY created_at`, siteID)
	if err != nil {
		return nil, fmt.Errorf("list site fields: %w", err)
	}
	defer rows.Close()

	var fields []models.PhonebookField
	for rows.Next() {
		var f models.PhonebookField
		var required, system int
		var createdAt int64
		if err := rows.Scan(&f.ID, &f.SiteID, &f.Name, &f.Type, &required, &system, &createdAt); err != nil {
			return nil, fmt.Errorf("scan site field: %w", err)
		}
		f.Required = required != 0
		f.CreatedBySystem = system != 0
		f.CreatedAt = time.Unix(createdAt, 0).UTC()
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// CreatePhonebook adds a phonebook to a site.
func (s *Store) CreatePhonebook(siteID, name string) (*models.Phonebook, error) {
	pb := &models.Phonebook{
		ID:        newID(),
		SiteID:    siteID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(`INSERT INTO phonebooks (id, site_id, name, created_at) VALUES (?, ?, ?, ?)`,
		pb.ID, pb.SiteID, pb.Name, pb.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("create phonebook: %w", err)
	}
	return pb, nil
}

// GetPhonebook retrieves a phonebook by ID. Returns (nil, nil) when absent.
func (s *Store) GetPhonebook(id string) (*models.Phonebook, error) {
	var pb models.Phonebook
	var createdAt int64
	err := s.db.QueryRow(`SELECT id, site_id, name, created_at FROM phonebooks WHERE id = ?`, id).
		Scan(&pb.ID, &pb.SiteID, &pb.Name, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get phonebook: %w", err)
	}
	pb.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &pb, nil
}

// PhonebooksForSite returns all phonebooks owned by a site.
func (s *Store) PhonebooksForSite(siteID string) ([]models.Phonebook, error) {
	rows, err := s.db.Query(`SELECT id, site_id, name, created_at FROM phonebooks
		WHERE site_id = ? ORDER BY created_at`, siteID)
	if err != nil {
		return nil, fmt.Errorf("list phonebooks: %w", err)
	}
	defer rows.Close()

	var books []models.Phonebook
	for rows.Next() {
		var pb models.Phonebook
		var createdAt int64
		if err := rows.Scan(&pb.ID, &pb.SiteID, &pb.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("scan phonebook: %w", err)
		}
		pb.CreatedAt = time.Unix(createdAt, 0).UTC()
		books = append(books, pb)
	}
	return books, rows.Err()
}

// AddEntry appends a contact to a phonebook. Values is keyed by site field
// ID.
func (s *Store) AddEntry(phonebookID string, values map[string]string) (*models.PhonebookEntry, error) {
	entry := &models.PhonebookEntry{
		ID:          newID(),
		PhonebookID: phonebookID,
		Values:      values,
		CreatedAt:   time.Now().UTC(),
	}
	vals, err := marshalJSON(values)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(`INSERT INTO phonebook_entries (id, phonebook_id, field_values, created_at) VALUES (?, ?, ?, ?)`,
		entry.ID, entry.PhonebookID, vals, entry.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("add entry: %w", err)
	}
	return entry, nil
}

// EntriesForPhonebook returns all contacts in a phonebook.
func (s *Store) EntriesForPhonebook(phonebookID string) ([]models.PhonebookEntry, error) {
	rows, err := s.db.Query(`SELECT id, phonebook_id, field_values, created_at FROM phonebook_entries
		WHERE phonebook_id = ? ORDER BY created_at`, phonebookID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []models.PhonebookEntry
	for rows.Next() {
		var e models.PhonebookEntry
		var vals string
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.PhonebookID, &vals, &createdAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if err := unmarshalJSON(vals, &e.Values); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
