package vendors

// ConnectionState is the provisioning state of an attached vendor
// connection.
type ConnectionState string

const (
	// StateWaitingForProvision is the initial state after a successful
	// handshake. The vendor has 30 seconds to send provision_request.
	StateWaitingForProvision ConnectionState = "waiting_for_provision"
	// StateProvisioning covers manifest validation and catalog
	// reconciliation.
	StateProvisioning ConnectionState = "provisioning"
	// StateCreating is entered while a first-seen service is written to the
	// catalog.
	StateCreating ConnectionState = "creating"
	// StateUpgrading is entered while a version change updates the catalog
	// and revalidates existing entitlements.
	StateUpgrading ConnectionState = "upgrading"
	// StateProvisionResponseSent means the entitlement payload has been
	// pushed and the platform is waiting for provision_accept.
	StateProvisionResponseSent ConnectionState = "provision_response_sent"
	// StateAvailable is the terminal success state. Grants, revocations and
	// reads only run against available connections.
	StateAvailable ConnectionState = "available"
	// StateProvisionFailed is terminal; the channel is closed.
	StateProvisionFailed ConnectionState = "provision_failed"
	// StateProvisioningTimeout is terminal; the vendor never sent
	// provision_request in time.
	StateProvisioningTimeout ConnectionState = "provisioning_timeout"
)

// Terminal reports whether no further transitions can occur from s.
func (s ConnectionState) Terminal() bool {
	return s == StateProvisionFailed || s == StateProvisioningTimeout
}
