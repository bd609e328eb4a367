package vendors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/triarom/voip-phonebook-go/internal/models"
	"github.com/triarom/voip-phonebook-go/internal/store"
)

const (
	testSetupKey = "test-setup-key"
	testReadWait = 3 * time.Second
)

// harness wires a real store, engine, distributor and socket endpoint the
// way the server does at startup.
type harness struct {
	store       *store.Store
	registry    *Registry
	engine      *Engine
	distributor *Distributor
	service     *EntitlementService
	server      *httptest.Server
}

func newHarness(t *testing.T, provisionTimeout, ackTimeout time.Duration) *harness {
	t.Helper()
	logger := zerolog.Nop()

	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	registry := NewRegistry()
	engine := NewEngine(st, st, registry, provisionTimeout, logger)
	distributor := NewDistributor(registry, st, st, st, ackTimeout, logger)
	engine.SetDistributor(distributor)
	service := NewEntitlementService(st, st, st, distributor, logger)

	server := httptest.NewServer(NewSocketServer(engine, testSetupKey, logger))
	t.Cleanup(server.Close)

	return &harness{
		store:       st,
		registry:    registry,
		engine:      engine,
		distributor: distributor,
		service:     service,
		server:      server,
	}
}

// seedSite creates a site and returns it with the IDs of its seeded Name
// and Number fields.
func (h *harness) seedSite(t *testing.T, name string) (site *models.Site, nameFieldID, numberFieldID string) {
	t.Helper()
	site, err := h.store.CreateSite(name)
	if err != nil {
		t.Fatalf("create site: %v", err)
	}
	fields, err := h.store.FieldsForSite(site.ID)
	if err != nil {
		t.Fatalf("list site fields: %v", err)
	}
	for _, f := range fields {
		switch f.Name {
		case "Name":
			nameFieldID = f.ID
		case "Number":
			numberFieldID = f.ID
		}
	}
	if nameFieldID == "" || numberFieldID == "" {
		t.Fatalf("default site fields missing: %+v", fields)
	}
	return site, nameFieldID, numberFieldID
}

func testManifest(service string) ProvisionRequest {
	return ProvisionRequest{
		Name:         service,
		FriendlyName: strings.ToUpper(service[:1]) + service[1:] + " Connector",
		Version:      "1.0.0",
		SupportedFields: []models.FieldDescriptor{
			{Name: "display_name", Required: true},
			{Name: "phone", Required: true},
			{Name: "note", Required: false},
		},
	}
}

// testVendor is a raw websocket client acting as a vendor connector
// process.
type testVendor struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialVendor(t *testing.T, server *httptest.Server, serviceName, setupKey string) *testVendor {
	t.Helper()
	header := http.Header{}
	header.Set(HandshakeSetupKeyHeader, setupKey)
	header.Set(HandshakeServiceNameHeader, serviceName)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial vendor socket: %v (resp %v)", err, resp)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	v := &testVendor{t: t, conn: conn}
	t.Cleanup(v.close)
	return v
}

// tryDialVendor dials without failing the test, for handshake rejection
// cases.
func tryDialVendor(t *testing.T, server *httptest.Server, serviceName, setupKey string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if setupKey != "" {
		header.Set(HandshakeSetupKeyHeader, setupKey)
	}
	if serviceName != "" {
		header.Set(HandshakeServiceNameHeader, serviceName)
	}
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	return websocket.DefaultDialer.Dial(url, header)
}

func dialRaw(url string) (*websocket.Conn, *http.Response, error) {
	return websocket.DefaultDialer.Dial(url, nil)
}

func (v *testVendor) close() {
	v.conn.Close()
}

func (v *testVendor) read() (Envelope, error) {
	v.conn.SetReadDeadline(time.Now().Add(testReadWait))
	_, msg, err := v.conn.ReadMessage()
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope %q: %w", msg, err)
	}
	return env, nil
}

func (v *testVendor) send(event string, seq, ack uint64, data any) {
	v.t.Helper()
	raw, err := encodeEnvelope(event, seq, ack, data)
	if err != nil {
		v.t.Fatalf("encode %s: %v", event, err)
	}
	v.conn.SetWriteDeadline(time.Now().Add(testReadWait))
	if err := v.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		v.t.Fatalf("send %s: %v", event, err)
	}
}

// waitForState reads envelopes until a state update announcing want
// arrives. Other events are discarded.
func (v *testVendor) waitForState(want ConnectionState) {
	v.t.Helper()
	for {
		env, err := v.read()
		if err != nil {
			v.t.Fatalf("waiting for state %s: %v", want, err)
		}
		if env.Event != EventStateUpdate {
			continue
		}
		var update StateUpdate
		if err := json.Unmarshal(env.Data, &update); err != nil {
			v.t.Fatalf("unmarshal state update: %v", err)
		}
		if update.State == want {
			return
		}
		if update.State.Terminal() {
			v.t.Fatalf("reached terminal state %s while waiting for %s", update.State, want)
		}
	}
}

// readUntilEvent reads envelopes until one with the given event arrives,
// skipping state updates along the way.
func (v *testVendor) readUntilEvent(event string) (Envelope, error) {
	for {
		env, err := v.read()
		if err != nil {
			return Envelope{}, err
		}
		if env.Event == event {
			return env, nil
		}
	}
}

// provision drives the vendor through the full negotiation to available
// and returns the entitlements delivered in the provisioning payload.
func (v *testVendor) provision(manifest ProvisionRequest) []*models.Entitlement {
	v.t.Helper()
	v.waitForState(StateWaitingForProvision)
	v.send(EventProvisionRequest, 0, 0, manifest)

	env, err := v.readUntilEvent(EventProvisionEntitlements)
	if err != nil {
		v.t.Fatalf("waiting for provisioning payload: %v", err)
	}
	var payload ProvisionEntitlements
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		v.t.Fatalf("unmarshal provisioning payload: %v", err)
	}

	v.waitForState(StateProvisionResponseSent)
	v.send(EventProvisionAccept, 0, 0, nil)
	v.waitForState(StateAvailable)
	return payload.Entitlements
}

// expectProvisionFailed sends the manifest and asserts the negotiation
// fails with the given error code.
func (v *testVendor) expectProvisionFailed(manifest ProvisionRequest, wantCode string) ProvisionFailed {
	v.t.Helper()
	v.waitForState(StateWaitingForProvision)
	v.send(EventProvisionRequest, 0, 0, manifest)

	env, err := v.readUntilEvent(EventProvisionFailed)
	if err != nil {
		v.t.Fatalf("waiting for provision_failed: %v", err)
	}
	var failed ProvisionFailed
	if err := json.Unmarshal(env.Data, &failed); err != nil {
		v.t.Fatalf("unmarshal provision_failed: %v", err)
	}
	if failed.Error != wantCode {
		v.t.Fatalf("provision_failed code = %q, want %q", failed.Error, wantCode)
	}
	return failed
}

// ackNextRequest answers the next platform request carrying the given
// event with the supplied acknowledgement payload. Run it in a goroutine
// before triggering the request.
func (v *testVendor) ackNextRequest(event string, ack any) error {
	env, err := v.readUntilEvent(event)
	if err != nil {
		return err
	}
	raw, err := encodeEnvelope("", 0, env.Seq, ack)
	if err != nil {
		return err
	}
	v.conn.SetWriteDeadline(time.Now().Add(testReadWait))
	return v.conn.WriteMessage(websocket.TextMessage, raw)
}
