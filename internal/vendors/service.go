package vendors

import (
	"context"

	"github.com/rs/zerolog"
	verrors "github.com/triarom/voip-phonebook-go/internal/errors"
	"github.com/triarom/voip-phonebook-go/internal/models"
)

// EntitlementService is the entitlement lifecycle API consumed by the CRUD
// layer. Every mutation drives the live protocol where a connection is
// available: creation pushes the grant, deletion and pause attempt a live
// revocation first, resume re-runs the grant against the vendor's current
// manifest.
type EntitlementService struct {
	entitlements EntitlementStore
	catalog      Catalog
	directory    Directory
	distributor  *Distributor
	logger       zerolog.Logger
}

// NewEntitlementService creates the lifecycle service.
func NewEntitlementService(entitlements EntitlementStore, catalog Catalog, directory Directory, distributor *Distributor, logger zerolog.Logger) *EntitlementService {
	return &EntitlementService{
		entitlements: entitlements,
		catalog:      catalog,
		directory:    directory,
		distributor:  distributor,
		logger:       logger,
	}
}

// Create validates and persists a new entitlement, then attempts the live
// grant. Validation failures are returned synchronously and nothing is
// persisted.
func (s *EntitlementService) Create(ctx context.Context, siteID, serviceName string, configuration map[string]any, fieldMapping map[string]string) (*models.Entitlement, error) {
	svc, err := s.catalog.GetServiceByName(serviceName)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, verrors.NewProtocolError(verrors.ErrorTypeValidation, "create_entitlement", serviceName, verrors.ErrServiceNotFound)
	}

	site, err := s.directory.GetSite(siteID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, verrors.NewProtocolError(verrors.ErrorTypeValidation, "create_entitlement", serviceName, verrors.ErrSiteNotFound)
	}

	siteFields, err := s.directory.FieldsForSite(siteID)
	if err != nil {
		return nil, err
	}
	if err := ValidateFieldMapping(fieldMapping, siteFields, svc.SupportedFields); err != nil {
		return nil, err
	}

	ent, err := s.entitlements.CreateEntitlement(siteID, serviceName, configuration, fieldMapping)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("entitlement", ent.ID).
		Str("site", siteID).
		Str("service", serviceName).
		Msg("Entitlement created")

	status, err := s.distributor.Grant(ctx, ent)
	if err != nil {
		return ent, err
	}
	ent.Status = status
	return ent, nil
}

// Delete revokes the entitlement on the live channel where possible, then
// removes it permanently. The vendor's cleanup never blocks the local
// deletion.
func (s *EntitlementService) Delete(ctx context.Context, id string) error {
	ent, err := s.entitlements.GetEntitlement(id)
	if err != nil {
		return err
	}
	if ent == nil {
		return verrors.ErrEntitlementNotFound
	}

	s.distributor.Revoke(ctx, ent)

	if err := s.entitlements.DeleteEntitlement(id); err != nil {
		return err
	}
	s.logger.Info().
		Str("entitlement", id).
		Str("service", ent.VendorServiceName).
		Msg("Entitlement deleted")
	return nil
}

// Pause revokes the entitlement on the live channel, then marks it paused.
func (s *EntitlementService) Pause(ctx context.Context, id string) error {
	ent, err := s.entitlements.GetEntitlement(id)
	if err != nil {
		return err
	}
	if ent == nil {
		return verrors.ErrEntitlementNotFound
	}

	s.distributor.Revoke(ctx, ent)

	if err := s.entitlements.UpdateEntitlementStatus(id, models.EntitlementPaused); err != nil {
		return err
	}
	s.logger.Info().Str("entitlement", id).Msg("Entitlement paused")
	return nil
}

// Resume returns a paused entitlement to setup and re-runs the grant. The
// grant revalidates against the vendor's current manifest, so a resumed
// entitlement can legitimately come back invalid.
func (s *EntitlementService) Resume(ctx context.Context, id string) (models.EntitlementStatus, error) {
	ent, err := s.entitlements.GetEntitlement(id)
	if err != nil {
		return "", err
	}
	if ent == nil {
		return "", verrors.ErrEntitlementNotFound
	}

	if err := s.entitlements.UpdateEntitlementStatus(id, models.EntitlementSetup); err != nil {
		return "", err
	}
	ent.Status = models.EntitlementSetup
	s.logger.Info().Str("entitlement", id).Msg("Entitlement resumed, re-running grant")

	return s.distributor.Grant(ctx, ent)
}
