package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/sbergate/internal/device"
	"github.com/nerrad567/sbergate/internal/infrastructure/config"
	"github.com/nerrad567/sbergate/internal/infrastructure/logging"
	"github.com/nerrad567/sbergate/internal/schema"
)

// memStore is an in-memory device.Store for tests.
type memStore struct {
	records map[string]*device.Record
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*device.Record)}
}

func (m *memStore) Load() (map[string]*device.Record, error) { return m.records, nil }

func (m *memStore) Save(records map[string]*device.Record) error {
	m.records = records
	return nil
}

// mockPublisher counts cloud republish requests.
type mockPublisher struct {
	configPublishes int
	statePublishes  [][]string
}

func (m *mockPublisher) PublishConfig() { m.configPublishes++ }

func (m *mockPublisher) PublishStates(ids []string) {
	m.statePublishes = append(m.statePublishes, ids)
}

type serverFixture struct {
	server    *Server
	registry  *device.Registry
	publisher *mockPublisher
	handler   http.Handler
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	registry := device.NewRegistry(newMemStore(), "2.0")
	publisher := &mockPublisher{}

	srv, err := New(Deps{
		Config:    config.APIConfig{StaticDir: ""},
		Storage:   config.StorageConfig{ModelsFile: filepath.Join(t.TempDir(), "models.json")},
		Logger:    logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test"),
		Registry:  registry,
		Publisher: publisher,
		Version:   "2.0",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return &serverFixture{
		server:    srv,
		registry:  registry,
		publisher: publisher,
		handler:   srv.buildRouter(),
	}
}

func (f *serverFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func strPtr(s string) *string { return &s }

func TestNew_Validation(t *testing.T) {
	if _, err := New(Deps{Registry: device.NewRegistry(newMemStore(), "2.0")}); err == nil {
		t.Error("New without logger did not fail")
	}
	logger := logging.New(config.LoggingConfig{Level: "error", Output: "stderr"}, "test")
	if _, err := New(Deps{Logger: logger}); err == nil {
		t.Error("New without registry did not fail")
	}
}

func TestListDevices(t *testing.T) {
	f := newServerFixture(t)

	if err := f.registry.Upsert("relay_01", device.Update{
		Name:     strPtr("Hall switch"),
		Category: strPtr("relay"),
		Room:     strPtr("Hall"),
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/devices", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Devices []deviceSummary `json:"devices"`
	}
	decodeBody(t, rec, &resp)

	if len(resp.Devices) != 1 {
		t.Fatalf("got %d devices, want 1", len(resp.Devices))
	}
	d := resp.Devices[0]
	if d.ID != "relay_01" || d.Name != "Hall switch" || d.Room != "Hall" {
		t.Errorf("unexpected summary: %+v", d)
	}
	if d.Nicknames == nil || d.Groups == nil {
		t.Error("list fields marshalled as null, want []")
	}
	if d.SWVersion != "2.0" {
		t.Errorf("sw_version = %q, want registry version stamp", d.SWVersion)
	}
}

func TestCreateDevice(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/devices",
		`{"category":"relay","name":"Garage door"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &resp)

	if resp.ID != "relay_01" {
		t.Errorf("id = %q, want relay_01", resp.ID)
	}
	if !f.registry.Exists("relay_01") {
		t.Error("device not created in registry")
	}
	if f.publisher.configPublishes != 1 {
		t.Errorf("config published %d times, want 1", f.publisher.configPublishes)
	}
}

func TestCreateDevice_MissingCategory(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/devices", `{"name":"No category"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if f.publisher.configPublishes != 0 {
		t.Error("config republished for rejected create")
	}
}

func TestUpdateDevice(t *testing.T) {
	f := newServerFixture(t)

	if err := f.registry.Upsert("relay_01", device.Update{Category: strPtr("relay")}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rec := f.do(t, http.MethodPut, "/api/v1/devices/relay_01", `{"room":"Kitchen"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	got, _ := f.registry.Get("relay_01")
	if got.Room != "Kitchen" {
		t.Errorf("room = %q, want Kitchen", got.Room)
	}
	if f.publisher.configPublishes != 1 {
		t.Errorf("config published %d times, want 1", f.publisher.configPublishes)
	}
}

func TestUpdateDevice_NotFound(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPut, "/api/v1/devices/ghost", `{"room":"Kitchen"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if f.publisher.configPublishes != 0 {
		t.Error("config republished for missing device")
	}
}

func TestDeleteDevice(t *testing.T) {
	f := newServerFixture(t)

	if err := f.registry.Upsert("relay_01", device.Update{Category: strPtr("relay")}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rec := f.do(t, http.MethodDelete, "/api/v1/devices/relay_01", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if f.registry.Exists("relay_01") {
		t.Error("device still present after delete")
	}

	rec = f.do(t, http.MethodDelete, "/api/v1/devices/relay_01", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestDumpDevices(t *testing.T) {
	f := newServerFixture(t)

	if err := f.registry.Upsert("light_01", device.Update{Category: strPtr("light")}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := f.registry.ChangeState("light_01", "on_off", device.BoolValue(true)); err != nil {
		t.Fatalf("ChangeState: %v", err)
	}

	rec := f.do(t, http.MethodGet, "/api/v2/devices", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Devices map[string]json.RawMessage `json:"devices"`
	}
	decodeBody(t, rec, &resp)

	raw, ok := resp.Devices["light_01"]
	if !ok {
		t.Fatal("light_01 missing from dump")
	}
	if !strings.Contains(string(raw), "on_off") {
		t.Error("dump does not include device states")
	}
}

func TestBulkUpdateDevices(t *testing.T) {
	f := newServerFixture(t)

	if err := f.registry.Upsert("relay_01", device.Update{Category: strPtr("relay")}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rec := f.do(t, http.MethodPost, "/api/v2/devices",
		`{"devices":[{"relay_01":{"enabled":true,"room":"Hall"}},{"relay_02":{"category":"relay"}}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	got, _ := f.registry.Get("relay_01")
	if !got.Enabled || got.Room != "Hall" {
		t.Errorf("relay_01 not updated: %+v", got)
	}
	if !f.registry.Exists("relay_02") {
		t.Error("bulk update did not create relay_02")
	}
	if f.publisher.configPublishes != 1 {
		t.Errorf("config published %d times, want 1", f.publisher.configPublishes)
	}
}

func TestCommand_DBDelete(t *testing.T) {
	f := newServerFixture(t)

	if err := f.registry.Upsert("relay_01", device.Update{Category: strPtr("relay")}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rec := f.do(t, http.MethodPost, "/api/v2/command", `{"command":"DB_delete"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if f.registry.Count() != 0 {
		t.Error("registry not cleared")
	}
	if f.publisher.configPublishes != 1 {
		t.Error("empty device list not pushed to cloud after wipe")
	}
}

func TestCommand_Unknown(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v2/command", `{"command":"exit"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	f := newServerFixture(t)
	f.server.cloudCfg.MQTT.Auth.Login = "user123"
	f.server.cloudCfg.MQTT.Broker.Host = "mqtt.example.com"
	f.server.SetStartupError("schema bootstrap pending")

	rec := f.do(t, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Online      bool              `json:"online"`
		Version     string            `json:"version"`
		Error       string            `json:"error"`
		Credentials map[string]string `json:"credentials"`
	}
	decodeBody(t, rec, &resp)

	if resp.Online {
		t.Error("online = true with no broker client wired")
	}
	if resp.Error != "schema bootstrap pending" {
		t.Errorf("error = %q", resp.Error)
	}
	if resp.Credentials["password"] != "***" {
		t.Error("password not redacted")
	}
	if resp.Credentials["username"] != "user123" || resp.Credentials["broker"] != "mqtt.example.com" {
		t.Errorf("credentials = %v", resp.Credentials)
	}
}

func TestCategories(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/categories", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status before schema load = %d, want 503", rec.Code)
	}

	sch := schema.New(map[string][]schema.Feature{
		"relay": {
			{Name: "online", DataType: schema.TypeBool, Required: true},
			{Name: "on_off", DataType: schema.TypeBool, Required: true},
		},
	})
	f.server.SetSchema(sch, nil)

	rec = f.do(t, http.MethodGet, "/api/v1/categories", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Categories map[string][]schema.Feature `json:"categories"`
	}
	decodeBody(t, rec, &resp)

	if len(resp.Categories["relay"]) != 2 {
		t.Errorf("relay features = %v", resp.Categories["relay"])
	}
}

func TestModels(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/models", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status before fetch = %d, want 503", rec.Code)
	}

	if err := os.WriteFile(f.server.storage.ModelsFile, []byte(`{"models":[]}`), 0o600); err != nil {
		t.Fatalf("writing models cache: %v", err)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "models") {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestCloudProxy(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/homes", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status before endpoint discovery = %d, want 503", rec.Code)
	}

	cloud := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/mqtt-gate/homes" {
			http.NotFound(w, r)
			return
		}
		if _, _, ok := r.BasicAuth(); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"homes":["Dacha"]}`))
	}))
	defer cloud.Close()

	f.server.SetSchema(nil, schema.NewClient(cloud.URL, "login", "pass", 5*time.Second))

	rec = f.do(t, http.MethodGet, "/api/v1/homes", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Dacha") {
		t.Errorf("proxied body = %q", rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/api/v1/homes", "{}")
	if rec.Code != http.StatusNotFound {
		t.Errorf("non-GET proxy status = %d, want 404", rec.Code)
	}
}
