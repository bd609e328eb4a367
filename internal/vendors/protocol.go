// Package vendors implements the vendor entitlement provisioning protocol:
// the persistent websocket channel vendor connector processes attach to,
// the per-connection negotiation state machine, and the entitlement
// grant/revoke/read exchanges that run over an available channel.
package vendors

import (
	"encoding/json"
	"fmt"

	"github.com/triarom/voip-phonebook-go/internal/models"
)

// Handshake query parameters (also accepted as headers) supplied by the
// vendor at connect time.
const (
	HandshakeSetupKeyParam    = "setup_api_key"
	HandshakeServiceNameParam = "vendor_service_name"

	HandshakeSetupKeyHeader    = "X-Vendor-Setup-Key"
	HandshakeServiceNameHeader = "X-Vendor-Service-Name"
)

// Events sent by the vendor.
const (
	EventProvisionRequest       = "provision_request"
	EventProvisionAccept        = "provision_accept"
	EventEntitlementUpdate      = "entitlement_update"
	EventGetAvailablePhonebooks = "get_available_phonebooks"
	EventGetPhonebook           = "get_phonebook"
)

// Events sent by the platform.
const (
	EventStateUpdate           = "vendor_service_state_update"
	EventProvisionFailed       = "provision_failed"
	EventProvisionEntitlements = "provision_entitlements"
	EventNewEntitlement        = "new_entitlement"
	EventRevokeEntitlement     = "revoke_entitlement"
)

// Error codes carried in provision_failed and read replies.
const (
	ErrCodeMissingRequiredField = "missing_required_field"
	ErrCodeNameMismatch         = "name_mismatch"
	ErrCodeFieldsChanged        = "supported_fields_changed_without_version_change"
	ErrCodeInvalidAccessKey     = "invalid_access_key"
	ErrCodeNotAvailable         = "entitlement_not_available"
	ErrCodePhonebookNotFound    = "phonebook_not_found"
	ErrCodeInternal             = "internal_error"
)

// Envelope is the wire format for every message on the vendor channel, in
// both directions. Seq is set by a sender that expects an acknowledgement;
// the reply carries the same value in Ack. Messages with Ack set resolve a
// pending request and are never dispatched as events.
type Envelope struct {
	Event string          `json:"event,omitempty"`
	Seq   uint64          `json:"seq,omitempty"`
	Ack   uint64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// --- Vendor → platform payloads ---

// ProvisionRequest is the vendor's capability manifest, sent as the first
// message after attach.
type ProvisionRequest struct {
	Name            string                   `json:"name"`
	FriendlyName    string                   `json:"friendly_name"`
	SupportedFields []models.FieldDescriptor `json:"supported_fields"`
	Version         string                   `json:"version"`
}

// EntitlementUpdate is a vendor-initiated mutation of one of its
// entitlements. Only metadata updates are defined.
type EntitlementUpdate struct {
	EntitlementID string `json:"entitlement_id"`
	UpdateType    string `json:"update_type"`
	Update        struct {
		Metadata map[string]any `json:"metadata"`
	} `json:"update"`
}

// PhonebooksRequest asks for every phonebook the access key's entitlement
// can read.
type PhonebooksRequest struct {
	AccessKey string `json:"access_key"`
}

// PhonebookRequest asks for one phonebook's contents.
type PhonebookRequest struct {
	AccessKey   string `json:"access_key"`
	PhonebookID string `json:"phonebook_id"`
}

// --- Platform → vendor payloads ---

// StateUpdate notifies the vendor of a state machine transition.
type StateUpdate struct {
	State ConnectionState `json:"state"`
}

// ProvisionFailed is terminal; the channel closes after it is sent.
type ProvisionFailed struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// ProvisionEntitlements carries every available entitlement for the
// service as part of the provisioning response.
type ProvisionEntitlements struct {
	Entitlements []*models.Entitlement `json:"entitlements"`
}

// NewEntitlement offers a freshly granted entitlement. The vendor must
// acknowledge with NewEntitlementAck.
type NewEntitlement struct {
	Entitlement *models.Entitlement `json:"entitlement"`
}

// NewEntitlementAck is the vendor's decision on an offered entitlement.
type NewEntitlementAck struct {
	Accepted bool `json:"accepted"`
}

// RevokeEntitlement orders the vendor to discard an entitlement.
type RevokeEntitlement struct {
	EntitlementID string `json:"entitlement_id"`
}

// RevokeEntitlementAck confirms the vendor processed a revocation.
type RevokeEntitlementAck struct {
	Acknowledged bool `json:"acknowledged"`
}

// PhonebooksReply answers a PhonebooksRequest. Error is an ErrCode when the
// request was rejected, in which case Phonebooks is empty.
type PhonebooksReply struct {
	Phonebooks []models.Phonebook `json:"phonebooks,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// PhonebookReply answers a PhonebookRequest.
type PhonebookReply struct {
	Phonebook *models.Phonebook       `json:"phonebook,omitempty"`
	Entries   []models.PhonebookEntry `json:"entries,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// encodeEnvelope serializes an envelope with a JSON-encoded payload.
func encodeEnvelope(event string, seq, ack uint64, data any) ([]byte, error) {
	env := Envelope{Event: event, Seq: seq, Ack: ack}
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		env.Data = payload
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return raw, nil
}
