package vendors

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/triarom/voip-phonebook-go/internal/models"
)

// Engine drives the per-connection provisioning state machine: handshake
// admission, manifest reconciliation against the catalog, entitlement
// payload delivery and the provisioning deadline.
type Engine struct {
	catalog          Catalog
	entitlements     EntitlementStore
	registry         *Registry
	distributor      *Distributor
	observers        observerList
	provisionTimeout time.Duration
	logger           zerolog.Logger
}

// NewEngine creates a provisioning engine.
func NewEngine(catalog Catalog, entitlements EntitlementStore, registry *Registry, provisionTimeout time.Duration, logger zerolog.Logger) *Engine {
	return &Engine{
		catalog:          catalog,
		entitlements:     entitlements,
		registry:         registry,
		provisionTimeout: provisionTimeout,
		logger:           logger,
	}
}

// SetDistributor wires the distributor that serves reads and metadata
// updates arriving on provisioned connections.
func (e *Engine) SetDistributor(d *Distributor) {
	e.distributor = d
}

// Subscribe registers an observer for connection state transitions.
func (e *Engine) Subscribe(obs StateObserver) {
	e.observers.subscribe(obs)
}

// Attach admits an authenticated connection into the registry, announces
// waiting_for_provision and arms the provisioning deadline. The connection's
// pumps start here; Attach returns immediately.
func (e *Engine) Attach(conn *Connection) {
	if evicted := e.registry.Admit(conn); evicted != nil {
		e.logger.Info().
			Str("service", conn.ServiceName).
			Str("old_connection", evicted.ID).
			Str("new_connection", conn.ID).
			Msg("Vendor service reconnected, evicting previous connection")
		evicted.Close("superseded by newer connection")
	}

	e.announce(conn, "", StateWaitingForProvision)

	conn.armProvisionTimer(e.provisionTimeout, func() {
		if !conn.transitionFrom(StateWaitingForProvision, StateProvisioningTimeout) {
			return
		}
		e.announce(conn, StateWaitingForProvision, StateProvisioningTimeout)
		conn.logger.Warn().
			Dur("timeout", e.provisionTimeout).
			Msg("Vendor service did not send provision_request in time, disconnecting")
		conn.Close("provisioning timeout")
	})

	go conn.writePump()
	go conn.readPump(e.handleMessage, e.detach)
}

func (e *Engine) detach(conn *Connection) {
	e.registry.Remove(conn)
}

// transition moves the connection to a new state and announces it to the
// vendor and to observers.
func (e *Engine) transition(conn *Connection, to ConnectionState) {
	from := conn.setState(to)
	e.announce(conn, from, to)
}

func (e *Engine) announce(conn *Connection, from, to ConnectionState) {
	conn.logger.Info().
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Vendor service state changed")

	if err := conn.Emit(EventStateUpdate, StateUpdate{State: to}); err != nil {
		conn.logger.Debug().Err(err).Msg("Failed to send state update")
	}
	e.observers.notify(StateChange{
		ConnectionID: conn.ID,
		ServiceName:  conn.ServiceName,
		From:         from,
		To:           to,
		Time:         time.Now(),
	})
}

// fail puts the connection into provision_failed, reports the reason to the
// vendor and closes the channel.
func (e *Engine) fail(conn *Connection, code, field string) {
	e.transition(conn, StateProvisionFailed)
	conn.logger.Warn().
		Str("error", code).
		Str("field", field).
		Msg("Provisioning failed, disconnecting")
	if err := conn.Emit(EventProvisionFailed, ProvisionFailed{Error: code, Field: field}); err != nil {
		conn.logger.Debug().Err(err).Msg("Failed to send provision_failed")
	}
	conn.Close(code)
}

func (e *Engine) handleMessage(conn *Connection, env Envelope) {
	switch env.Event {
	case EventProvisionRequest:
		var req ProvisionRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			conn.logger.Warn().Err(err).Msg("Malformed provision_request")
			e.fail(conn, ErrCodeMissingRequiredField, "")
			return
		}
		e.handleProvisionRequest(conn, req)

	case EventProvisionAccept:
		e.handleProvisionAccept(conn)

	case EventEntitlementUpdate:
		var update EntitlementUpdate
		if err := json.Unmarshal(env.Data, &update); err != nil {
			conn.logger.Warn().Err(err).Msg("Malformed entitlement_update, dropping")
			return
		}
		e.distributor.HandleEntitlementUpdate(conn, update)

	case EventGetAvailablePhonebooks:
		var req PhonebooksRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			conn.logger.Warn().Err(err).Msg("Malformed get_available_phonebooks, dropping")
			return
		}
		reply := e.distributor.AvailablePhonebooks(req)
		if err := conn.reply(EventGetAvailablePhonebooks, env.Seq, reply); err != nil {
			conn.logger.Debug().Err(err).Msg("Failed to send phonebooks reply")
		}

	case EventGetPhonebook:
		var req PhonebookRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			conn.logger.Warn().Err(err).Msg("Malformed get_phonebook, dropping")
			return
		}
		reply := e.distributor.ReadPhonebook(req)
		if err := conn.reply(EventGetPhonebook, env.Seq, reply); err != nil {
			conn.logger.Debug().Err(err).Msg("Failed to send phonebook reply")
		}

	default:
		conn.logger.Debug().Str("event", env.Event).Msg("Unhandled vendor event, dropping")
	}
}

// handleProvisionRequest runs manifest validation and catalog
// reconciliation for the connection's first provision_request.
func (e *Engine) handleProvisionRequest(conn *Connection, req ProvisionRequest) {
	if state := conn.State(); state != StateWaitingForProvision {
		conn.logger.Warn().
			Str("state", string(state)).
			Msg("provision_request received outside waiting_for_provision, ignoring")
		return
	}

	e.transition(conn, StateProvisioning)

	if field, ok := missingManifestField(req); !ok {
		e.fail(conn, ErrCodeMissingRequiredField, field)
		return
	}

	if req.Name != conn.ServiceName {
		conn.logger.Warn().
			Str("handshake_name", conn.ServiceName).
			Str("manifest_name", req.Name).
			Msg("Manifest name does not match handshake service name")
		e.fail(conn, ErrCodeNameMismatch, "")
		return
	}

	svc, err := e.catalog.GetServiceByName(req.Name)
	if err != nil {
		conn.logger.Error().Err(err).Msg("Catalog lookup failed")
		e.fail(conn, ErrCodeInternal, "")
		return
	}

	switch {
	case svc == nil:
		// First check-in for this service kind: store the manifest verbatim.
		e.transition(conn, StateCreating)
		conn.logger.Info().Str("version", req.Version).Msg("New vendor service, creating catalog entry")
		if err := e.catalog.CreateService(&models.VendorService{
			Name:            req.Name,
			FriendlyName:    req.FriendlyName,
			Version:         req.Version,
			SupportedFields: req.SupportedFields,
		}); err != nil {
			conn.logger.Error().Err(err).Msg("Failed to create vendor service")
			e.fail(conn, ErrCodeInternal, "")
			return
		}
		e.transition(conn, StateProvisioning)

	case svc.Version == req.Version:
		// Same version must mean same manifest: field-set changes require a
		// version bump.
		if !fieldSetsEqual(svc.SupportedFields, req.SupportedFields) {
			conn.logger.Warn().
				Str("version", req.Version).
				Msg("supported_fields changed without a version bump")
			e.fail(conn, ErrCodeFieldsChanged, "")
			return
		}

	default:
		e.transition(conn, StateUpgrading)
		conn.logger.Info().
			Str("from_version", svc.Version).
			Str("to_version", req.Version).
			Msg("Vendor service upgrading")

		if !fieldSetsEqual(svc.SupportedFields, req.SupportedFields) {
			if err := e.revalidateEntitlements(conn, req); err != nil {
				e.fail(conn, ErrCodeInternal, "")
				return
			}
		}

		if err := e.catalog.UpdateService(req.Name, req.FriendlyName, req.SupportedFields, req.Version); err != nil {
			conn.logger.Error().Err(err).Msg("Failed to update vendor service")
			e.fail(conn, ErrCodeInternal, "")
			return
		}
		e.transition(conn, StateProvisioning)
	}

	conn.setDeclaredVersion(req.Version)

	ents, err := e.entitlements.ListEntitlementsForService(req.Name)
	if err != nil {
		conn.logger.Error().Err(err).Msg("Failed to list entitlements")
		e.fail(conn, ErrCodeInternal, "")
		return
	}
	active := make([]*models.Entitlement, 0, len(ents))
	for _, ent := range ents {
		if ent.Status == models.EntitlementAvailable {
			active = append(active, ent)
		}
	}

	if err := conn.Emit(EventProvisionEntitlements, ProvisionEntitlements{Entitlements: active}); err != nil {
		conn.logger.Error().Err(err).Msg("Failed to send provisioning payload")
		e.fail(conn, ErrCodeInternal, "")
		return
	}

	conn.logger.Debug().Int("entitlements", len(active)).Msg("Provisioning payload sent, waiting for acceptance")
	e.transition(conn, StateProvisionResponseSent)
}

// revalidateEntitlements marks invalid every entitlement whose mapping
// references a vendor field absent from the newly declared set.
func (e *Engine) revalidateEntitlements(conn *Connection, req ProvisionRequest) error {
	ents, err := e.entitlements.ListEntitlementsForService(req.Name)
	if err != nil {
		conn.logger.Error().Err(err).Msg("Failed to list entitlements for revalidation")
		return err
	}
	for _, ent := range ents {
		if mappingSurvives(ent.FieldMapping, req.SupportedFields) {
			continue
		}
		conn.logger.Info().
			Str("entitlement", ent.ID).
			Str("site", ent.SiteID).
			Msg("Entitlement references removed vendor fields, marking invalid")
		if err := e.entitlements.UpdateEntitlementStatus(ent.ID, models.EntitlementInvalid); err != nil {
			conn.logger.Error().Err(err).Str("entitlement", ent.ID).Msg("Failed to invalidate entitlement")
			return err
		}
	}
	return nil
}

func (e *Engine) handleProvisionAccept(conn *Connection) {
	if state := conn.State(); state != StateProvisionResponseSent {
		conn.logger.Warn().
			Str("state", string(state)).
			Msg("provision_accept received outside provision_response_sent, ignoring")
		return
	}

	if err := e.catalog.SetProvisionedAt(conn.ServiceName, time.Now().UTC()); err != nil {
		conn.logger.Warn().Err(err).Msg("Failed to record provisioning timestamp")
	}

	conn.logger.Info().Msg("Vendor service accepted entitlements, now available")
	e.transition(conn, StateAvailable)
}

// missingManifestField returns the name of the first mandatory manifest
// field that is absent, or ok when the manifest is complete.
func missingManifestField(req ProvisionRequest) (field string, ok bool) {
	switch {
	case req.Name == "":
		return "name", false
	case req.FriendlyName == "":
		return "friendly_name", false
	case req.SupportedFields == nil:
		return "supported_fields", false
	case req.Version == "":
		return "version", false
	}
	return "", true
}
