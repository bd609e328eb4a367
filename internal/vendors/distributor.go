package vendors

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	verrors "github.com/triarom/voip-phonebook-go/internal/errors"
	"github.com/triarom/voip-phonebook-go/internal/models"
)

// Grant outcome labels reported through the metric hooks.
const (
	GrantOutcomeAccepted       = "accepted"
	GrantOutcomeRejected       = "rejected"
	GrantOutcomeTimeout        = "timeout"
	GrantOutcomeDeferred       = "deferred"
	GrantOutcomeInvalidMapping = "invalid_mapping"
)

// Metric hooks, wired by the server at startup. Nil hooks are skipped.
var (
	grantOutcomeHook func(service, outcome string)
	readResultHook   func(result string)
)

// SetMetricHooks registers callbacks fired on grant outcomes and phonebook
// read results.
func SetMetricHooks(onGrant func(service, outcome string), onRead func(result string)) {
	grantOutcomeHook = onGrant
	readResultHook = onRead
}

func recordGrantOutcome(service, outcome string) {
	if grantOutcomeHook != nil {
		grantOutcomeHook(service, outcome)
	}
}

func recordReadResult(result string) {
	if readResultHook != nil {
		readResultHook(result)
	}
}

// Distributor executes the entitlement push protocol against available
// connections and serves vendor-initiated phonebook reads and metadata
// updates.
type Distributor struct {
	registry     *Registry
	entitlements EntitlementStore
	catalog      Catalog
	directory    Directory
	ackTimeout   time.Duration
	logger       zerolog.Logger
}

// NewDistributor creates an entitlement distributor.
func NewDistributor(registry *Registry, entitlements EntitlementStore, catalog Catalog, directory Directory, ackTimeout time.Duration, logger zerolog.Logger) *Distributor {
	return &Distributor{
		registry:     registry,
		entitlements: entitlements,
		catalog:      catalog,
		directory:    directory,
		ackTimeout:   ackTimeout,
		logger:       logger,
	}
}

// Grant offers an entitlement to its vendor service. When no connection is
// available the entitlement stays in setup and will be re-offered at the
// vendor's next successful negotiation. Otherwise the mapping is
// revalidated against the currently declared manifest and the entitlement
// is pushed with a bounded acknowledgement wait; rejection and timeout both
// resolve to invalid. The resulting status is returned.
func (d *Distributor) Grant(ctx context.Context, ent *models.Entitlement) (models.EntitlementStatus, error) {
	conn, ok := d.registry.Available(ent.VendorServiceName)
	if !ok {
		d.logger.Debug().
			Str("entitlement", ent.ID).
			Str("service", ent.VendorServiceName).
			Msg("No available connection, entitlement stays in setup")
		recordGrantOutcome(ent.VendorServiceName, GrantOutcomeDeferred)
		return models.EntitlementSetup, nil
	}

	// The vendor's schema may have drifted since the mapping was written
	// (paused entitlements especially), so the mapping is rechecked against
	// the live manifest before every push.
	if err := d.validateAgainstCurrent(ent); err != nil {
		if !verrors.IsMappingError(err) {
			return ent.Status, err
		}
		d.logger.Info().
			Err(err).
			Str("entitlement", ent.ID).
			Msg("Field mapping no longer valid, marking entitlement invalid")
		if uerr := d.entitlements.UpdateEntitlementStatus(ent.ID, models.EntitlementInvalid); uerr != nil {
			return ent.Status, uerr
		}
		recordGrantOutcome(ent.VendorServiceName, GrantOutcomeInvalidMapping)
		return models.EntitlementInvalid, nil
	}

	payload, err := conn.Request(ctx, EventNewEntitlement, NewEntitlement{Entitlement: ent}, d.ackTimeout)
	status := models.EntitlementInvalid
	outcome := GrantOutcomeRejected

	switch {
	case err == nil:
		var ack NewEntitlementAck
		if jerr := json.Unmarshal(payload, &ack); jerr != nil {
			d.logger.Warn().Err(jerr).Str("entitlement", ent.ID).Msg("Malformed grant acknowledgement, treating as rejection")
		} else if ack.Accepted {
			status = models.EntitlementAvailable
			outcome = GrantOutcomeAccepted
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ent.Status, err
	default:
		// Timeouts and mid-wait disconnects resolve exactly like an explicit
		// rejection: the entitlement must never linger in setup while the
		// vendor's view disagrees.
		d.logger.Warn().Err(err).
			Str("entitlement", ent.ID).
			Str("service", ent.VendorServiceName).
			Msg("No grant acknowledgement, marking entitlement invalid")
		outcome = GrantOutcomeTimeout
	}

	if err := d.entitlements.UpdateEntitlementStatus(ent.ID, status); err != nil {
		return ent.Status, err
	}
	d.logger.Info().
		Str("entitlement", ent.ID).
		Str("service", ent.VendorServiceName).
		Str("status", string(status)).
		Msg("Grant resolved")
	recordGrantOutcome(ent.VendorServiceName, outcome)
	return status, nil
}

// Revoke tells the vendor to discard an entitlement. Best-effort: the
// acknowledgement outcome is logged only, and a missing connection is a
// no-op — the caller always proceeds with its local state change.
func (d *Distributor) Revoke(ctx context.Context, ent *models.Entitlement) {
	conn, ok := d.registry.Available(ent.VendorServiceName)
	if !ok {
		d.logger.Debug().
			Str("entitlement", ent.ID).
			Str("service", ent.VendorServiceName).
			Msg("No available connection, skipping live revocation")
		return
	}

	payload, err := conn.Request(ctx, EventRevokeEntitlement, RevokeEntitlement{EntitlementID: ent.ID}, d.ackTimeout)
	if err != nil {
		d.logger.Warn().Err(err).
			Str("entitlement", ent.ID).
			Msg("No revocation acknowledgement, proceeding with local removal")
		return
	}
	var ack RevokeEntitlementAck
	if err := json.Unmarshal(payload, &ack); err != nil || !ack.Acknowledged {
		d.logger.Warn().
			Str("entitlement", ent.ID).
			Msg("Vendor did not acknowledge revocation, proceeding anyway")
		return
	}
	d.logger.Debug().Str("entitlement", ent.ID).Msg("Revocation acknowledged by vendor")
}

// validateAgainstCurrent checks the entitlement's mapping against the
// catalog's current manifest and the site's field set.
func (d *Distributor) validateAgainstCurrent(ent *models.Entitlement) error {
	svc, err := d.catalog.GetServiceByName(ent.VendorServiceName)
	if err != nil {
		return err
	}
	if svc == nil {
		return verrors.ErrServiceNotFound
	}
	siteFields, err := d.directory.FieldsForSite(ent.SiteID)
	if err != nil {
		return err
	}
	return ValidateFieldMapping(ent.FieldMapping, siteFields, svc.SupportedFields)
}

// HandleEntitlementUpdate applies a vendor-initiated metadata replacement.
// Accepted in any entitlement status; the bag is replaced verbatim.
func (d *Distributor) HandleEntitlementUpdate(conn *Connection, update EntitlementUpdate) {
	if update.UpdateType != "metadata" {
		conn.logger.Warn().
			Str("update_type", update.UpdateType).
			Msg("Unsupported entitlement update type, dropping")
		return
	}

	ent, err := d.entitlements.GetEntitlement(update.EntitlementID)
	if err != nil {
		conn.logger.Error().Err(err).Str("entitlement", update.EntitlementID).Msg("Entitlement lookup failed")
		return
	}
	if ent == nil || ent.VendorServiceName != conn.ServiceName {
		conn.logger.Warn().
			Str("entitlement", update.EntitlementID).
			Msg("Entitlement update for unknown or foreign entitlement, dropping")
		return
	}

	if err := d.entitlements.ReplaceEntitlementMetadata(ent.ID, update.Update.Metadata); err != nil {
		conn.logger.Error().Err(err).Str("entitlement", ent.ID).Msg("Failed to replace entitlement metadata")
		return
	}
	conn.logger.Debug().Str("entitlement", ent.ID).Msg("Entitlement metadata updated")
}

// AvailablePhonebooks answers a bare listing request: every phonebook of
// the entitled site.
func (d *Distributor) AvailablePhonebooks(req PhonebooksRequest) PhonebooksReply {
	ent, code := d.authorizeRead(req.AccessKey)
	if code != "" {
		return PhonebooksReply{Error: code}
	}

	books, err := d.directory.PhonebooksForSite(ent.SiteID)
	if err != nil {
		d.logger.Error().Err(err).Str("site", ent.SiteID).Msg("Phonebook listing failed")
		recordReadResult(ErrCodeInternal)
		return PhonebooksReply{Error: ErrCodeInternal}
	}
	recordReadResult("ok")
	return PhonebooksReply{Phonebooks: books}
}

// ReadPhonebook answers a specific-phonebook read. The phonebook must
// belong to the entitlement's site; anything else resolves to
// phonebook_not_found so a vendor can never distinguish another tenant's
// phonebook from a nonexistent one.
func (d *Distributor) ReadPhonebook(req PhonebookRequest) PhonebookReply {
	ent, code := d.authorizeRead(req.AccessKey)
	if code != "" {
		return PhonebookReply{Error: code}
	}

	pb, err := d.directory.GetPhonebook(req.PhonebookID)
	if err != nil {
		d.logger.Error().Err(err).Str("phonebook", req.PhonebookID).Msg("Phonebook lookup failed")
		recordReadResult(ErrCodeInternal)
		return PhonebookReply{Error: ErrCodeInternal}
	}
	if pb == nil || pb.SiteID != ent.SiteID {
		recordReadResult(ErrCodePhonebookNotFound)
		return PhonebookReply{Error: ErrCodePhonebookNotFound}
	}

	entries, err := d.directory.EntriesForPhonebook(pb.ID)
	if err != nil {
		d.logger.Error().Err(err).Str("phonebook", pb.ID).Msg("Entry listing failed")
		recordReadResult(ErrCodeInternal)
		return PhonebookReply{Error: ErrCodeInternal}
	}
	recordReadResult("ok")
	return PhonebookReply{Phonebook: pb, Entries: entries}
}

// authorizeRead resolves an access key to its entitlement. A non-empty
// code means the read is rejected.
func (d *Distributor) authorizeRead(accessKey string) (*models.Entitlement, string) {
	ent, err := d.entitlements.GetEntitlementByAccessKey(accessKey)
	if err != nil {
		d.logger.Error().Err(err).Msg("Access key lookup failed")
		recordReadResult(ErrCodeInternal)
		return nil, ErrCodeInternal
	}
	if ent == nil {
		recordReadResult(ErrCodeInvalidAccessKey)
		return nil, ErrCodeInvalidAccessKey
	}
	if ent.Status != models.EntitlementAvailable {
		recordReadResult(ErrCodeNotAvailable)
		return nil, ErrCodeNotAvailable
	}
	return ent, ""
}
