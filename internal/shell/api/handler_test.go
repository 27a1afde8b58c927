package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/canopy-host/canopy/internal/core/domain"
	"github.com/canopy-host/canopy/internal/shell/engine"
	"github.com/canopy-host/canopy/internal/shell/runtime"
	"github.com/canopy-host/canopy/internal/shell/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

// stubGateway implements runtime.Gateway without a daemon.
type stubGateway struct {
	pingErr error
	upErr   error
	logs    []string
}

func (g *stubGateway) Run(ctx context.Context, spec runtime.RunSpec) (string, runtime.Output, error) {
	return "rt-" + spec.Name, runtime.Output{}, nil
}

func (g *stubGateway) Start(ctx context.Context, name string) (runtime.Output, error) {
	return runtime.Output{}, nil
}

func (g *stubGateway) Stop(ctx context.Context, name string) (runtime.Output, error) {
	return runtime.Output{}, nil
}

func (g *stubGateway) Restart(ctx context.Context, name string) (runtime.Output, error) {
	return runtime.Output{}, nil
}

func (g *stubGateway) Remove(ctx context.Context, name string, force bool) (runtime.Output, error) {
	return runtime.Output{}, nil
}

func (g *stubGateway) Logs(ctx context.Context, name string, tail int) ([]string, error) {
	return g.logs, nil
}

func (g *stubGateway) ListImages(ctx context.Context) ([]runtime.ImageRef, error) {
	return []runtime.ImageRef{{ID: "sha256:abc", Tags: []string{"nginx:latest"}}}, nil
}

func (g *stubGateway) ComposeUp(ctx context.Context, file, workdir string) (runtime.Output, error) {
	if g.upErr != nil {
		return runtime.Output{ExitCode: 1, Stderr: []string{g.upErr.Error()}}, g.upErr
	}
	return runtime.Output{}, nil
}

func (g *stubGateway) ComposeDown(ctx context.Context, file, workdir string) (runtime.Output, error) {
	return runtime.Output{}, nil
}

func (g *stubGateway) ComposeCmd(ctx context.Context, file string, args []string, workdir string) (runtime.Output, error) {
	return runtime.Output{Stdout: g.logs}, nil
}

func (g *stubGateway) Ping(ctx context.Context) error { return g.pingErr }
func (g *stubGateway) Close() error                   { return nil }

func setupHandler(t *testing.T) (*Handler, store.Store, *stubGateway) {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	gw := &stubGateway{}
	cfg := engine.DefaultConfig()
	cfg.HomesRoot = t.TempDir()
	cfg.StacksRoot = t.TempDir()
	cfg.OpTimeout = 5 * time.Second

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	eng := engine.New(s, gw, cfg, logger)

	return NewHandler(s, eng, gw, logger, cfg.HomesRoot), s, gw
}

func doRequest(t *testing.T, h *Handler, method, path string, body any, tenant string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if tenant != "" {
		req.Header.Set(HeaderTenantID, tenant)
		req.Header.Set(HeaderTenantName, tenant)
	}

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func seedAllowedTemplate(t *testing.T, s store.Store) *domain.Template {
	t.Helper()
	tpl, err := domain.NewTemplate("Test App", domain.KindCompose, `services:
  web:
    image: nginx:alpine
    ports:
      - "${HOST_PORT}:80"
`)
	require.NoError(t, err)
	tpl.Defaults = map[string]string{"HOST_PORT": "8080"}
	tpl.Allowed = true
	require.NoError(t, s.CreateTemplate(context.Background(), tpl))
	return tpl
}

// =============================================================================
// Identity Tests
// =============================================================================

func TestTenantIdentity_Required(t *testing.T) {
	h, _, _ := setupHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/containers", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	resp := decodeResponse(t, rec)
	assert.False(t, resp.OK)
	assert.Equal(t, "validation_error", resp.Error.Kind)
}

func TestTenantIdentity_InvalidUsername(t *testing.T) {
	h, _, _ := setupHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/containers", nil)
	req.Header.Set(HeaderTenantID, "tenant-1")
	req.Header.Set(HeaderTenantName, "../escape")
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// Health Tests
// =============================================================================

func TestHealth(t *testing.T) {
	h, _, _ := setupHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeResponse(t, rec).OK)
}

func TestReady_RuntimeDown(t *testing.T) {
	h, _, gw := setupHandler(t)
	gw.pingErr = runtime.ErrConnectionFailed

	rec := doRequest(t, h, http.MethodGet, "/ready", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReady_DatabaseDown(t *testing.T) {
	h, s, _ := setupHandler(t)
	require.NoError(t, s.Close())

	rec := doRequest(t, h, http.MethodGet, "/ready", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// =============================================================================
// Container Endpoint Tests
// =============================================================================

func TestCreateContainer_Endpoint(t *testing.T) {
	h, _, _ := setupHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/containers", CreateContainerRequest{
		Name: "web1", Image: "nginx:latest", ContainerPort: 80,
	}, "alice")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeResponse(t, rec)
	assert.True(t, resp.OK)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "web1", data["name"])
	assert.Equal(t, "created", data["status"])
}

func TestCreateContainer_InvalidJSON(t *testing.T) {
	h, _, _ := setupHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/containers", bytes.NewBufferString("{nope"))
	req.Header.Set(HeaderTenantID, "alice")
	req.Header.Set(HeaderTenantName, "alice")
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateContainer_PortConflictStatus(t *testing.T) {
	h, _, _ := setupHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/containers", CreateContainerRequest{
		Name: "web1", Image: "nginx:latest", ContainerPort: 80, HostPort: 20000,
	}, "alice")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/containers", CreateContainerRequest{
		Name: "web2", Image: "nginx:latest", ContainerPort: 80, HostPort: 20000,
	}, "alice")
	assert.Equal(t, http.StatusConflict, rec.Code)

	resp := decodeResponse(t, rec)
	assert.False(t, resp.OK)
	assert.Equal(t, "port_conflict", resp.Error.Kind)
}

func TestContainerLifecycle_Endpoints(t *testing.T) {
	h, _, _ := setupHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/containers", CreateContainerRequest{
		Name: "web1", Image: "nginx:latest",
	}, "alice")
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeResponse(t, rec).Data.(map[string]any)["id"].(string)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/containers/"+id+"/start", nil, "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", decodeResponse(t, rec).Data.(map[string]any)["status"])

	rec = doRequest(t, h, http.MethodPost, "/api/v1/containers/"+id+"/stop", nil, "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stopped", decodeResponse(t, rec).Data.(map[string]any)["status"])

	rec = doRequest(t, h, http.MethodDelete, "/api/v1/containers/"+id, nil, "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodDelete, "/api/v1/containers/"+id, nil, "alice")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContainerLogs_TenantIsolation(t *testing.T) {
	h, _, gw := setupHandler(t)
	gw.logs = []string{"line"}

	rec := doRequest(t, h, http.MethodPost, "/api/v1/containers", CreateContainerRequest{
		Name: "web1", Image: "nginx:latest",
	}, "alice")
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeResponse(t, rec).Data.(map[string]any)["id"].(string)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/containers/"+id+"/logs", nil, "bob")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/containers/"+id+"/logs?tail=10", nil, "alice")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestListContainers_Scoped(t *testing.T) {
	h, _, _ := setupHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/containers", CreateContainerRequest{
		Name: "web1", Image: "nginx:latest",
	}, "alice")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/containers", nil, "bob")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeResponse(t, rec).Data)
}

func TestListImages_Endpoint(t *testing.T) {
	h, _, _ := setupHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/images", nil, "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.True(t, resp.OK)
	assert.Len(t, resp.Data, 1)
}

// =============================================================================
// Stack Endpoint Tests
// =============================================================================

func TestStackLifecycle_Endpoints(t *testing.T) {
	h, s, _ := setupHandler(t)
	tpl := seedAllowedTemplate(t, s)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/stacks", CreateStackRequest{
		TemplateID: tpl.ID, Name: "My Blog",
	}, "alice")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	data := decodeResponse(t, rec).Data.(map[string]any)
	id := data["id"].(string)
	assert.Equal(t, "my-blog", data["slug"], "slug is derived from the name when omitted")

	composePath := data["compose_path"].(string)
	content, err := os.ReadFile(filepath.FromSlash(composePath))
	require.NoError(t, err)
	assert.Contains(t, string(content), `"8080:80"`)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/stacks/"+id+"/up", nil, "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "up", decodeResponse(t, rec).Data.(map[string]any)["status"])

	rec = doRequest(t, h, http.MethodPost, "/api/v1/stacks/"+id+"/down", nil, "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodDelete, "/api/v1/stacks/"+id, nil, "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	_, statErr := os.Stat(filepath.Dir(filepath.FromSlash(composePath)))
	assert.True(t, os.IsNotExist(statErr))
}

func TestStackUp_FailureCarriesOutput(t *testing.T) {
	h, s, gw := setupHandler(t)
	tpl := seedAllowedTemplate(t, s)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/stacks", CreateStackRequest{
		TemplateID: tpl.ID, Name: "Blog", Slug: "blog",
	}, "alice")
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeResponse(t, rec).Data.(map[string]any)["id"].(string)

	gw.upErr = runtime.ErrCommandFailed
	rec = doRequest(t, h, http.MethodPost, "/api/v1/stacks/"+id+"/up", nil, "alice")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "runtime_error", resp.Error.Kind)
	require.NotNil(t, resp.Error.Output)
	assert.Equal(t, 1, resp.Error.Output.ExitCode)
}

func TestCreateStack_DisallowedTemplateStatus(t *testing.T) {
	h, s, _ := setupHandler(t)

	tpl, err := domain.NewTemplate("Draft", domain.KindCompose, "services:\n  web:\n    image: nginx")
	require.NoError(t, err)
	require.NoError(t, s.CreateTemplate(context.Background(), tpl))

	rec := doRequest(t, h, http.MethodPost, "/api/v1/stacks", CreateStackRequest{
		TemplateID: tpl.ID, Name: "Blog", Slug: "blog",
	}, "alice")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "template_not_allowed", decodeResponse(t, rec).Error.Kind)
}

// =============================================================================
// Template Endpoint Tests
// =============================================================================

func TestListAllowedTemplates_Endpoint(t *testing.T) {
	h, s, _ := setupHandler(t)
	seedAllowedTemplate(t, s)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/templates", nil, "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.True(t, resp.OK)
	list := resp.Data.([]any)
	require.Len(t, list, 1)

	entry := list[0].(map[string]any)
	assert.Equal(t, "test-app", entry["slug"])
	// The raw definition is not exposed to tenants.
	_, hasDefinition := entry["definition"]
	assert.False(t, hasDefinition)
}

// =============================================================================
// Audit Endpoint Tests
// =============================================================================

func TestListAuditEvents_Endpoint(t *testing.T) {
	h, s, _ := setupHandler(t)

	// Identify both tenants first so their rows exist.
	doRequest(t, h, http.MethodGet, "/api/v1/containers", nil, "alice")
	doRequest(t, h, http.MethodGet, "/api/v1/containers", nil, "bob")

	ev := domain.NewAuditEvent("alice", domain.AuditContainerRemoveOrphan, "ctr-1", "runtime remove failed")
	require.NoError(t, s.CreateAuditEvent(context.Background(), ev))

	rec := doRequest(t, h, http.MethodGet, "/api/v1/audit", nil, "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.True(t, resp.OK)
	list := resp.Data.([]any)
	require.Len(t, list, 1)
	entry := list[0].(map[string]any)
	assert.Equal(t, string(domain.AuditContainerRemoveOrphan), entry["action"])

	// Other tenants do not see the event.
	rec = doRequest(t, h, http.MethodGet, "/api/v1/audit", nil, "bob")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeResponse(t, rec)
	require.True(t, resp.OK)
	assert.Empty(t, resp.Data)
}
