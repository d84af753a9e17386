package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawdesk/internal/api/handlers"
	"lawdesk/internal/api/middleware"
	"lawdesk/internal/engine/comparison"
	"lawdesk/internal/engine/documents"
	"lawdesk/internal/engine/gate"
	"lawdesk/internal/engine/plans"
	"lawdesk/internal/engine/subscriptions"
	"lawdesk/internal/engine/tenantstore"
	"lawdesk/internal/engine/usage"
	"lawdesk/internal/platform/audit"
	"lawdesk/internal/platform/auth"
	"lawdesk/internal/platform/config"
	"lawdesk/internal/platform/database"
	"lawdesk/internal/platform/llm"
	"lawdesk/internal/platform/mailer"
	"lawdesk/internal/platform/repositories"
)

const cookieName = "lawdesk_session"

type fakeComparer struct {
	result llm.Result
	err    error
}

func (f *fakeComparer) Compare(context.Context, llm.Case, []llm.Case) (llm.Result, error) {
	return f.result, f.err
}

type testEnv struct {
	router   http.Handler
	meter    *usage.MemoryMeter
	comparer *fakeComparer
	audit    *audit.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.NewGlobalDB(config.GlobalDBConfig{URL: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	root := t.TempDir()
	jwtCfg := config.JWTConfig{Secret: "test-secret", AccessTokenTTL: time.Hour, RefreshTokenTTL: 24 * time.Hour, CookieName: cookieName}
	tokenSvc := auth.NewTokenService(jwtCfg)

	orgRepo := repositories.NewOrganizationRepository(db)
	userRepo := repositories.NewUserRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	auditLogger := audit.NewLogger(auditRepo)

	registry := subscriptions.NewRegistry(subscriptions.NewRepository(db), nil, nil)
	meter := usage.NewMemoryMeter(nil)
	g := gate.New(registry, meter)

	store := tenantstore.New(tenantstore.NewFileBackend(root), tenantstore.SchemeHashed, tenantstore.WithAuditor(auditLogger))
	docs := documents.NewService(store, documents.NewFileBlobStore(root), 1<<20, nil)
	comparer := &fakeComparer{result: llm.Result{Success: true, AnalysisText: "closely related"}}

	deps := &Dependencies{
		AuthHandler: handlers.NewAuthHandler(userRepo, orgRepo, registry, tokenSvc, mailer.LogSender{}, jwtCfg,
			config.SubscriptionsConfig{TrialDays: 14, TrialPlan: plans.Professional}),
		OrgHandler:          handlers.NewOrgHandler(),
		DataHandler:         handlers.NewDataHandler(store, cookieName),
		DocumentHandler:     handlers.NewDocumentHandler(docs, auditLogger, 1<<20, cookieName),
		SubscriptionHandler: handlers.NewSubscriptionHandler(registry, meter, auditLogger),
		FeatureHandler:      handlers.NewFeatureHandler(g),
		ComparisonHandler:   handlers.NewComparisonHandler(comparison.NewService(g, comparer, store, nil), auditLogger, cookieName),
		AuditHandler:        handlers.NewAuditHandler(auditRepo),
		HealthHandler:       handlers.NewHealthHandler(database.NewGlobalDBWrapper(db), root),
		MetricsHandler:      handlers.NewMetricsHandler(),
		AuthMiddleware:      middleware.NewAuthMiddleware(tokenSvc, cookieName),
		TenantMiddleware:    middleware.NewTenantMiddleware(orgRepo, registry, cookieName),
		RateLimiter: middleware.NewRateLimiter(config.RateLimitConfig{
			APIReadPerMinute: 1000, APIWritePerMinute: 1000, AIPerMinute: 1000,
		}),
		Gate: g,
	}
	t.Cleanup(auditLogger.Wait)

	return &testEnv{router: NewRouter(deps), meter: meter, comparer: comparer, audit: auditLogger}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

type signupResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Organization struct {
		Code string `json:"code"`
	} `json:"organization"`
	Subscription struct {
		Plan   string `json:"plan"`
		Status string `json:"status"`
	} `json:"subscription"`
}

func (e *testEnv) signup(t *testing.T, email, plan string) signupResult {
	t.Helper()
	rr := e.do(t, "POST", "/api/v1/auth/signup", "", map[string]string{
		"org_name":  "Hale & Partners",
		"email":     email,
		"password":  "s3cretpassword",
		"full_name": "Ann Hale",
		"plan":      plan,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var out signupResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.NotEmpty(t, out.AccessToken)
	return out
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestSignupAndLogin(t *testing.T) {
	env := newTestEnv(t)

	s := env.signup(t, "Ann@HaleLaw.com", "")
	assert.Equal(t, plans.Professional, s.Subscription.Plan)
	assert.Equal(t, subscriptions.StatusTrial, s.Subscription.Status)

	dup := env.do(t, "POST", "/api/v1/auth/signup", "", map[string]string{
		"org_name": "Other", "email": "ann@halelaw.com", "password": "s3cretpassword", "full_name": "Ann",
	})
	assert.Equal(t, http.StatusConflict, dup.Code)

	bad := env.do(t, "POST", "/api/v1/auth/login", "", map[string]string{"email": "ann@halelaw.com", "password": "wrongpassword1"})
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	ok := env.do(t, "POST", "/api/v1/auth/login", "", map[string]string{"email": "ANN@halelaw.com", "password": "s3cretpassword"})
	require.Equal(t, http.StatusOK, ok.Code, ok.Body.String())
	assert.Contains(t, ok.Header().Get("Set-Cookie"), cookieName+"=")

	refreshed := env.do(t, "POST", "/api/v1/auth/refresh", "", map[string]string{"refresh_token": s.RefreshToken})
	require.Equal(t, http.StatusOK, refreshed.Code, refreshed.Body.String())

	// an access token is not a refresh token
	wrong := env.do(t, "POST", "/api/v1/auth/refresh", "", map[string]string{"refresh_token": s.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)

	out := env.do(t, "POST", "/api/v1/auth/logout", "", nil)
	assert.Equal(t, http.StatusNoContent, out.Code)
	assert.Contains(t, out.Header().Get("Clear-Site-Data"), "cookies")
}

func TestSignup_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := map[string]map[string]string{
		"bad email":     {"org_name": "Firm", "email": "not-an-email", "password": "s3cretpassword", "full_name": "A"},
		"weak password": {"org_name": "Firm", "email": "a@firm.com", "password": "short", "full_name": "A"},
		"no firm name":  {"org_name": "", "email": "a@firm.com", "password": "s3cretpassword", "full_name": "A"},
		"no full name":  {"org_name": "Firm", "email": "a@firm.com", "password": "s3cretpassword"},
		"unknown plan":  {"org_name": "Firm", "email": "a@firm.com", "password": "s3cretpassword", "full_name": "A", "plan": "platinum"},
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rr := env.do(t, "POST", "/api/v1/auth/signup", "", body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
		})
	}
}

func TestData_RoundTripAndVersioning(t *testing.T) {
	env := newTestEnv(t)
	s := env.signup(t, "ann@halelaw.com", "")

	empty := env.do(t, "GET", "/api/v1/data/matters", s.AccessToken, nil)
	require.Equal(t, http.StatusOK, empty.Code)
	body := decodeBody(t, empty)
	assert.Equal(t, []interface{}{}, body["data"])
	assert.EqualValues(t, 0, body["version"])

	put := env.do(t, "PUT", "/api/v1/data/matters", s.AccessToken, `[{"name":"Smith v. Jones"}]`)
	require.Equal(t, http.StatusOK, put.Code, put.Body.String())
	assert.Equal(t, "1", put.Header().Get("ETag"))

	got := env.do(t, "GET", "/api/v1/data/matters", s.AccessToken, nil)
	body = decodeBody(t, got)
	assert.Equal(t, []interface{}{map[string]interface{}{"name": "Smith v. Jones"}}, body["data"])
	assert.EqualValues(t, 1, body["version"])
	assert.Nil(t, body["degraded"])

	stale := env.do(t, "PUT", "/api/v1/data/matters", s.AccessToken, `[]`, "If-Match", `"0"`)
	assert.Equal(t, http.StatusPreconditionFailed, stale.Code)

	fresh := env.do(t, "PUT", "/api/v1/data/matters", s.AccessToken, `[]`, "If-Match", `"1"`)
	assert.Equal(t, http.StatusOK, fresh.Code)

	settings := env.do(t, "GET", "/api/v1/data/billing_settings", s.AccessToken, nil)
	assert.Equal(t, map[string]interface{}{}, decodeBody(t, settings)["data"])

	unknown := env.do(t, "GET", "/api/v1/data/secrets", s.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, unknown.Code)

	invalid := env.do(t, "PUT", "/api/v1/data/tasks", s.AccessToken, `{not json`)
	assert.Equal(t, http.StatusBadRequest, invalid.Code)
}

func TestData_IsolatedBetweenUsers(t *testing.T) {
	env := newTestEnv(t)
	a := env.signup(t, "a@firm-one.com", "")
	b := env.signup(t, "b@firm-two.com", "")

	put := env.do(t, "PUT", "/api/v1/data/tasks", a.AccessToken, `[{"title":"File motion"}]`)
	require.Equal(t, http.StatusOK, put.Code)

	got := env.do(t, "GET", "/api/v1/data/tasks", b.AccessToken, nil)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, []interface{}{}, decodeBody(t, got)["data"])
}

func TestSessionFault_ClearsSession(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/api/v1/data/matters", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Header().Get("Clear-Site-Data"), "storage")
	assert.Contains(t, rr.Body.String(), "SESSION_INVALID")
}

func upload(t *testing.T, env *testEnv, token, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("name", "Motion to <b>dismiss</b>"))
	require.NoError(t, mw.WriteField("tags", "motion, draft"))
	require.NoError(t, mw.WriteField("is_privileged", "true"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

func TestDocuments_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	s := env.signup(t, "ann@halelaw.com", "")

	rr := upload(t, env, s.AccessToken, "motion.pdf", []byte("%PDF-1.7 motion"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var meta documents.Metadata
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &meta))
	assert.Equal(t, "Motion to dismiss", meta.Name)
	assert.Equal(t, []string{"motion", "draft"}, meta.Tags)
	assert.True(t, meta.IsPrivileged)
	assert.Equal(t, "ann@halelaw.com", meta.UploadedByEmail)

	list := env.do(t, "GET", "/api/v1/documents", s.AccessToken, nil)
	assert.EqualValues(t, 1, decodeBody(t, list)["total"])

	content := env.do(t, "GET", "/api/v1/documents/"+meta.ID+"/content", s.AccessToken, nil)
	require.Equal(t, http.StatusOK, content.Code)
	assert.Equal(t, "%PDF-1.7 motion", content.Body.String())
	assert.Contains(t, content.Header().Get("Content-Disposition"), "motion.pdf")

	del := env.do(t, "DELETE", "/api/v1/documents/"+meta.ID, s.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, del.Code)

	again := env.do(t, "DELETE", "/api/v1/documents/"+meta.ID, s.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, again.Code)

	gone := env.do(t, "GET", "/api/v1/documents/"+meta.ID, s.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, gone.Code)
}

func TestDocuments_OtherUserCannotRead(t *testing.T) {
	env := newTestEnv(t)
	a := env.signup(t, "a@firm-one.com", "")
	b := env.signup(t, "b@firm-two.com", "")

	rr := upload(t, env, a.AccessToken, "brief.txt", []byte("privileged"))
	require.Equal(t, http.StatusCreated, rr.Code)
	var meta documents.Metadata
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &meta))

	got := env.do(t, "GET", "/api/v1/documents/"+meta.ID+"/content", b.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, got.Code)
}

func TestComparison_GatedByPlan(t *testing.T) {
	env := newTestEnv(t)
	s := env.signup(t, "ann@halelaw.com", plans.Basic)
	req := map[string]interface{}{
		"new_case":    map[string]string{"name": "Smith v. Jones"},
		"prior_cases": []map[string]string{{"name": "Doe v. Roe"}},
	}

	denied := env.do(t, "POST", "/api/v1/comparisons", s.AccessToken, req)
	assert.Equal(t, http.StatusForbidden, denied.Code)
	assert.Contains(t, denied.Body.String(), "PLAN_REQUIRED")

	upgrade := env.do(t, "POST", "/api/v1/subscription/plan", s.AccessToken, map[string]string{"plan": plans.Professional})
	require.Equal(t, http.StatusOK, upgrade.Code, upgrade.Body.String())

	ok := env.do(t, "POST", "/api/v1/comparisons", s.AccessToken, req)
	require.Equal(t, http.StatusOK, ok.Code, ok.Body.String())
	used, err := env.meter.Get(context.Background(), s.Organization.Code, plans.FeatureCaseComparison)
	require.NoError(t, err)
	assert.Equal(t, 1, used)

	env.comparer.result = llm.Result{Success: false, Error: "overloaded"}
	env.comparer.err = errors.New("overloaded")
	failed := env.do(t, "POST", "/api/v1/comparisons", s.AccessToken, req)
	assert.Equal(t, http.StatusBadGateway, failed.Code)
	used, _ = env.meter.Get(context.Background(), s.Organization.Code, plans.FeatureCaseComparison)
	assert.Equal(t, 1, used, "failed comparisons are not counted")

	history := env.do(t, "GET", "/api/v1/comparisons", s.AccessToken, nil)
	assert.Len(t, decodeBody(t, history)["history"], 1)
}

func TestComparison_QuotaExhausted(t *testing.T) {
	env := newTestEnv(t)
	s := env.signup(t, "ann@halelaw.com", plans.Professional)
	limit, _ := plans.GetLimit(plans.Professional, plans.FeatureCaseComparison)
	for i := 0; i < limit; i++ {
		_, err := env.meter.Increment(context.Background(), s.Organization.Code, plans.FeatureCaseComparison)
		require.NoError(t, err)
	}

	rr := env.do(t, "POST", "/api/v1/comparisons", s.AccessToken, map[string]interface{}{
		"new_case": map[string]string{"name": "Smith v. Jones"},
	})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), "QUOTA_EXCEEDED")
}

func TestFeaturesAndUsage(t *testing.T) {
	env := newTestEnv(t)
	s := env.signup(t, "ann@halelaw.com", plans.Professional)

	rr := env.do(t, "GET", "/api/v1/features/"+plans.FeatureCaseComparison, s.AccessToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, true, body["allowed"])
	assert.Equal(t, "0/25", body["reason"])

	rr = env.do(t, "GET", "/api/v1/features/"+plans.FeatureCustomBranding, s.AccessToken, nil)
	assert.Equal(t, false, decodeBody(t, rr)["allowed"])

	usageResp := env.do(t, "GET", "/api/v1/subscription/usage", s.AccessToken, nil)
	require.Equal(t, http.StatusOK, usageResp.Code)
	assert.Equal(t, plans.Professional, decodeBody(t, usageResp)["plan"])
}

func TestSubscription_CancelFallsBackToBasic(t *testing.T) {
	env := newTestEnv(t)
	s := env.signup(t, "ann@halelaw.com", plans.Enterprise)

	rr := env.do(t, "POST", "/api/v1/subscription/cancel", s.AccessToken, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	got := env.do(t, "GET", "/api/v1/subscription", s.AccessToken, nil)
	body := decodeBody(t, got)
	effective := body["effective_plan"].(map[string]interface{})
	assert.Equal(t, plans.Basic, effective["name"])

	activate := env.do(t, "POST", "/api/v1/subscription/activate", s.AccessToken, map[string]string{"payment_method_id": "pm_card"})
	assert.Equal(t, http.StatusServiceUnavailable, activate.Code, "payments are disabled in tests")

	upgrade := env.do(t, "POST", "/api/v1/subscription/plan", s.AccessToken, map[string]string{"plan": plans.Enterprise})
	require.Equal(t, http.StatusOK, upgrade.Code, upgrade.Body.String())
	body = decodeBody(t, upgrade)
	assert.Equal(t, plans.Basic, body["effective_plan"].(map[string]interface{})["name"], "a cancelled org needs a payment to upgrade")

	comparison := env.do(t, "GET", "/api/v1/features/"+plans.FeatureCaseComparison, s.AccessToken, nil)
	assert.Equal(t, false, decodeBody(t, comparison)["allowed"])
}

func TestAudit_RecordsPlanChange(t *testing.T) {
	env := newTestEnv(t)
	s := env.signup(t, "ann@halelaw.com", plans.Basic)

	rr := env.do(t, "POST", "/api/v1/subscription/plan", s.AccessToken, map[string]string{"plan": plans.Enterprise})
	require.Equal(t, http.StatusOK, rr.Code)
	env.audit.Wait()

	list := env.do(t, "GET", "/api/v1/audit", s.AccessToken, nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), "subscription.plan_changed")
	assert.True(t, strings.Contains(list.Body.String(), `"direction":"upgrade"`))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "healthy", decodeBody(t, rr)["status"])
}
