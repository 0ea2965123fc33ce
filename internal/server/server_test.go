package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	apprepo "github.com/smallbiznis/flagship/internal/app/repository"
	appservice "github.com/smallbiznis/flagship/internal/app/service"
	auditrepo "github.com/smallbiznis/flagship/internal/audit/repository"
	auditservice "github.com/smallbiznis/flagship/internal/audit/service"
	"github.com/smallbiznis/flagship/internal/config"
	envrepo "github.com/smallbiznis/flagship/internal/environment/repository"
	envservice "github.com/smallbiznis/flagship/internal/environment/service"
	"github.com/smallbiznis/flagship/internal/evaluation"
	flagrepo "github.com/smallbiznis/flagship/internal/flag/repository"
	flagservice "github.com/smallbiznis/flagship/internal/flag/service"
	"github.com/smallbiznis/flagship/internal/observability"
	"github.com/smallbiznis/flagship/internal/propagation"
	"github.com/smallbiznis/flagship/internal/reconcile"
	"github.com/smallbiznis/flagship/internal/testutil"
	userrepo "github.com/smallbiznis/flagship/internal/user/repository"
	userservice "github.com/smallbiznis/flagship/internal/user/service"
	"go.uber.org/zap"
)

type testServer struct {
	server *Server
	audit  *auditservice.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := testutil.NewClock()
	layer, _ := testutil.NewCache(t)
	log := zap.NewNop()

	apps := apprepo.Provide()
	envs := envrepo.Provide()
	flags := flagrepo.Provide()

	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepo.Provide(),
	})
	prop := propagation.New(propagation.Params{
		DB: db, Log: log, Clock: clk, Cache: layer, Flags: flags, Environments: envs,
	})
	appSvc := appservice.New(appservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: apps, Environments: envs, Cache: layer, Audit: audit,
	})
	envSvc := envservice.New(envservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: envs, Apps: apps, Propagation: prop, Audit: audit,
	})
	flagSvc := flagservice.New(flagservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: flags, Apps: apps, Propagation: prop, Cache: layer, Audit: audit,
	})
	userSvc := userservice.New(userservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: userrepo.Provide(db), Apps: apps, Cache: layer, Audit: audit,
	})
	evalSvc := evaluation.NewService(evaluation.Params{
		Config: config.Config{}, Log: log, Flags: flagSvc, Engine: evaluation.NewEngine(nil),
	})
	reconciler, err := reconcile.New(reconcile.Params{
		DB: db, Log: log, Clock: clk, Apps: appSvc, Environments: envs, Propagation: prop,
	})
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}

	srv := NewServer(ServerParams{
		Gin:            NewEngine(observability.Config{}),
		AppSvc:         appSvc,
		EnvironmentSvc: envSvc,
		FlagSvc:        flagSvc,
		UserSvc:        userSvc,
		EvaluationSvc:  evalSvc,
		AuditSvc:       audit,
		Reconciler:     reconciler,
	})
	return &testServer{server: srv, audit: audit}
}

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []string        `json:"errors"`
	Error  *errorPayload   `json:"error"`
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderActor, "alice")
	rec := httptest.NewRecorder()
	ts.server.Engine().ServeHTTP(rec, req)

	var out envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode data %s: %v", raw, err)
	}
	return out
}

type appBody struct {
	App struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"app"`
	Production *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"production"`
}

type envBody struct {
	Environment struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"environment"`
	Sweep struct {
		Updated int `json:"updated"`
		Failed  int `json:"failed"`
	} `json:"sweep"`
}

type flagBody struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Environments []struct {
		EnvironmentID string `json:"environment_id"`
		IsActive      bool   `json:"is_active"`
	} `json:"environments"`
}

type resultBody struct {
	Name      string `json:"name"`
	IsEnabled bool   `json:"is_enabled"`
}

func (ts *testServer) createApp(t *testing.T, name string) appBody {
	t.Helper()
	status, resp := ts.do(t, http.MethodPost, "/api/apps", gin.H{"name": name})
	if status != http.StatusCreated {
		t.Fatalf("create app: status %d error %+v", status, resp.Error)
	}
	return decode[appBody](t, resp.Data)
}

func (ts *testServer) createEnv(t *testing.T, appID, name string) envBody {
	t.Helper()
	status, resp := ts.do(t, http.MethodPost, "/api/apps/"+appID+"/environments", gin.H{"name": name})
	if status != http.StatusCreated {
		t.Fatalf("create environment: status %d error %+v", status, resp.Error)
	}
	return decode[envBody](t, resp.Data)
}

func (ts *testServer) createFlag(t *testing.T, appID, name string) flagBody {
	t.Helper()
	status, resp := ts.do(t, http.MethodPost, "/api/apps/"+appID+"/flags", gin.H{
		"name": name,
		"type": "BOOLEAN",
		"defaults": gin.H{
			"is_active":           true,
			"evaluation_strategy": "BOOLEAN",
		},
	})
	if status != http.StatusCreated {
		t.Fatalf("create flag: status %d error %+v", status, resp.Error)
	}
	return decode[flagBody](t, resp.Data)
}

func TestCreateAppProvisionsProduction(t *testing.T) {
	ts := newTestServer(t)
	app := ts.createApp(t, "checkout")
	if app.Production == nil || app.Production.Name != "Production" {
		t.Fatalf("expected Production in response, got %+v", app.Production)
	}

	status, resp := ts.do(t, http.MethodGet, "/api/apps/"+app.App.ID+"/environments", nil)
	if status != http.StatusOK {
		t.Fatalf("list environments: status %d", status)
	}
	envs := decode[[]struct {
		Name string `json:"name"`
	}](t, resp.Data)
	if len(envs) != 1 || envs[0].Name != "Production" {
		t.Fatalf("expected only Production, got %+v", envs)
	}
}

func TestCreateAppDuplicateIsConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.createApp(t, "checkout")

	status, resp := ts.do(t, http.MethodPost, "/api/apps", gin.H{"name": "checkout"})
	if status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}
	if resp.Error == nil || resp.Error.Type != "conflict" || resp.Error.Message != "app_name_taken" {
		t.Fatalf("unexpected error payload %+v", resp.Error)
	}
}

func TestEnvironmentRules(t *testing.T) {
	ts := newTestServer(t)
	app := ts.createApp(t, "checkout")

	status, resp := ts.do(t, http.MethodPost, "/api/apps/"+app.App.ID+"/environments", gin.H{"name": "production"})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for reserved name, got %d", status)
	}
	if resp.Error == nil || len(resp.Error.Errors) != 1 || resp.Error.Errors[0].Code != "production_name_reserved" {
		t.Fatalf("unexpected error payload %+v", resp.Error)
	}

	status, resp = ts.do(t, http.MethodDelete, "/api/environments/"+app.Production.ID, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 deleting Production, got %d", status)
	}
	if resp.Error.Errors[0].Code != "production_immutable" {
		t.Fatalf("unexpected error code %+v", resp.Error.Errors)
	}
}

func TestFlagLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	app := ts.createApp(t, "checkout")
	staging := ts.createEnv(t, app.App.ID, "Staging")

	flag := ts.createFlag(t, app.App.ID, "new-cart")
	if len(flag.Environments) != 2 {
		t.Fatalf("expected a setting per environment, got %d", len(flag.Environments))
	}

	evaluate := func() (int, envelope) {
		return ts.do(t, http.MethodPost, "/api/evaluate", gin.H{
			"flag_id":        flag.ID,
			"environment_id": staging.Environment.ID,
		})
	}

	status, resp := evaluate()
	if status != http.StatusOK {
		t.Fatalf("evaluate: status %d error %+v", status, resp.Error)
	}
	if !decode[resultBody](t, resp.Data).IsEnabled {
		t.Fatalf("expected flag enabled in Staging")
	}

	status, _ = ts.do(t, http.MethodPost, "/api/flags/"+flag.ID+"/environments/"+staging.Environment.ID+"/toggle", nil)
	if status != http.StatusOK {
		t.Fatalf("toggle: status %d", status)
	}
	_, resp = evaluate()
	if decode[resultBody](t, resp.Data).IsEnabled {
		t.Fatalf("expected flag disabled after toggle")
	}

	status, resp = ts.do(t, http.MethodDelete, "/api/environments/"+staging.Environment.ID, nil)
	if status != http.StatusOK {
		t.Fatalf("delete environment: status %d error %+v", status, resp.Error)
	}
	status, resp = evaluate()
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 after environment removal, got %d", status)
	}
	if resp.Error.Message != "environment_setting_not_found" {
		t.Fatalf("unexpected error payload %+v", resp.Error)
	}
}

func TestEvaluateByName(t *testing.T) {
	ts := newTestServer(t)
	app := ts.createApp(t, "checkout")
	ts.createFlag(t, app.App.ID, "dark-mode")

	status, resp := ts.do(t, http.MethodPost, "/api/evaluate", gin.H{
		"app_id":         app.App.ID,
		"flag_name":      "dark-mode",
		"environment_id": app.Production.ID,
	})
	if status != http.StatusOK {
		t.Fatalf("evaluate: status %d error %+v", status, resp.Error)
	}
	if got := decode[resultBody](t, resp.Data); got.Name != "dark-mode" || !got.IsEnabled {
		t.Fatalf("unexpected result %+v", got)
	}

	status, _ = ts.do(t, http.MethodPost, "/api/evaluate", gin.H{"environment_id": app.Production.ID})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 without a flag reference, got %d", status)
	}
}

func TestEvaluateAllReturnsEveryFlag(t *testing.T) {
	ts := newTestServer(t)
	app := ts.createApp(t, "checkout")
	ts.createFlag(t, app.App.ID, "a")
	ts.createFlag(t, app.App.ID, "b")

	status, resp := ts.do(t, http.MethodPost, "/api/evaluate/all", gin.H{
		"app_id":         app.App.ID,
		"environment_id": app.Production.ID,
	})
	if status != http.StatusOK {
		t.Fatalf("evaluate all: status %d error %+v", status, resp.Error)
	}
	results := decode[[]resultBody](t, resp.Data)
	if len(results) != 2 || len(resp.Errors) != 0 {
		t.Fatalf("expected two results without errors, got %+v %v", results, resp.Errors)
	}
}

func TestIdentifyUserAndTargetingList(t *testing.T) {
	ts := newTestServer(t)
	app := ts.createApp(t, "checkout")
	flag := ts.createFlag(t, app.App.ID, "beta")

	status, resp := ts.do(t, http.MethodPut, "/api/flags/"+flag.ID+"/environments/"+app.Production.ID, gin.H{
		"is_active":           true,
		"evaluation_strategy": "USER",
		"allowed_users":       []string{"u-1"},
	})
	if status != http.StatusOK {
		t.Fatalf("update setting: status %d error %+v", status, resp.Error)
	}

	status, resp = ts.do(t, http.MethodPost, "/api/apps/"+app.App.ID+"/users", gin.H{
		"external_id": "u-1",
		"metadata":    gin.H{"plan": "pro"},
	})
	if status != http.StatusOK {
		t.Fatalf("identify: status %d error %+v", status, resp.Error)
	}

	status, resp = ts.do(t, http.MethodGet, "/api/apps/"+app.App.ID+"/flags?user_id=u-1", nil)
	if status != http.StatusOK {
		t.Fatalf("list targeting flags: status %d", status)
	}
	if flags := decode[[]flagBody](t, resp.Data); len(flags) != 1 || flags[0].Name != "beta" {
		t.Fatalf("expected beta to target u-1, got %+v", flags)
	}

	status, _ = ts.do(t, http.MethodGet, "/api/apps/"+app.App.ID+"/users/u-1", nil)
	if status != http.StatusOK {
		t.Fatalf("get user by external id: status %d", status)
	}
}

func TestInvalidBodyIsValidationError(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/apps", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.server.Engine().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	status, resp := ts.do(t, http.MethodGet, "/api/nothing", nil)
	if status != http.StatusNotFound || resp.Error == nil || resp.Error.Type != "not_found" {
		t.Fatalf("expected not_found, got %d %+v", status, resp.Error)
	}
}

func TestAdminReconcileAndAuditLogs(t *testing.T) {
	ts := newTestServer(t)
	ts.createApp(t, "checkout")

	status, resp := ts.do(t, http.MethodPost, "/admin/reconcile", nil)
	if status != http.StatusOK {
		t.Fatalf("reconcile: status %d", status)
	}
	summary := decode[reconcile.Summary](t, resp.Data)
	if summary.Apps != 1 || summary.ProductionRepaired != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	ts.audit.Wait()
	status, resp = ts.do(t, http.MethodGet, "/admin/audit-logs?action=app.create", nil)
	if status != http.StatusOK {
		t.Fatalf("audit logs: status %d error %+v", status, resp.Error)
	}
	logs := decode[[]struct {
		Actor  string `json:"actor"`
		Action string `json:"action"`
	}](t, resp.Data)
	if len(logs) != 1 || logs[0].Actor != "alice" {
		t.Fatalf("expected one app.create entry by alice, got %+v", logs)
	}
}

func TestMapErrorClassifiesInvariantViolations(t *testing.T) {
	status, payload := mapError(propagation.ErrProductionMissing)
	if status != http.StatusInternalServerError || payload.Type != "invariant_violation" {
		t.Fatalf("unexpected mapping %d %+v", status, payload)
	}

	kind, code := classifyErrorForLog(newValidationError("limit", "invalid_limit", "invalid limit"))
	if kind != "validation_error" || code != "invalid_limit" {
		t.Fatalf("unexpected classification %s %s", kind, code)
	}
}
