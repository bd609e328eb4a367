// Package metrics exposes Prometheus metrics for the vendor provisioning
// subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/triarom/voip-phonebook-go/internal/vendors"
)

var (
	VendorStateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phonebook_vendor_state_transitions_total",
			Help: "Total vendor connection state transitions by service and resulting state",
		},
		[]string{"service", "state"},
	)

	EntitlementGrantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phonebook_entitlement_grants_total",
			Help: "Total entitlement grant attempts by service and outcome",
		},
		[]string{"service", "outcome"},
	)

	PhonebookReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phonebook_vendor_reads_total",
			Help: "Total vendor phonebook read requests by result",
		},
		[]string{"result"},
	)
)

// RegisterConnectionGauge exposes the connection registry's live count as
// a gauge. Call once at startup.
func RegisterConnectionGauge(count func() int) {
	promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "phonebook_vendor_connections",
			Help: "Number of currently attached vendor connections",
		},
		func() float64 { return float64(count()) },
	)
}

// RecordGrantOutcome records one grant attempt.
func RecordGrantOutcome(service, outcome string) {
	EntitlementGrantsTotal.WithLabelValues(service, outcome).Inc()
}

// RecordReadResult records one vendor read request.
func RecordReadResult(result string) {
	PhonebookReadsTotal.WithLabelValues(result).Inc()
}

// VendorStateObserver feeds connection state transitions into the counters
// above. Register it with the provisioning engine.
type VendorStateObserver struct{}

// ConnectionStateChanged implements vendors.StateObserver.
func (VendorStateObserver) ConnectionStateChanged(change vendors.StateChange) {
	VendorStateTransitionsTotal.WithLabelValues(change.ServiceName, string(change.To)).Inc()
}
