package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"lawdesk/internal/engine/plans"
	"lawdesk/internal/engine/subscriptions"
	"lawdesk/internal/platform/identity"
	"lawdesk/internal/platform/repositories"
)

var subscriptionColumns = []string{"org_code", "plan", "status", "start_date", "trial_end_date", "stripe_customer_id", "stripe_subscription_id", "updated_at"}

func TestTenantMiddleware(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	orgRepo := repositories.NewOrganizationRepository(db)
	registry := subscriptions.NewRegistry(subscriptions.NewRepository(db), nil, time.Now)
	middleware := NewTenantMiddleware(orgRepo, registry, "lawdesk_session")

	withIdentity := func(req *http.Request, org string) *http.Request {
		ctx := identity.WithIdentity(req.Context(), identity.Identity{Email: "a@x.com", OrgCode: org})
		return req.WithContext(ctx)
	}

	t.Run("Valid Tenant", func(t *testing.T) {
		req := withIdentity(httptest.NewRequest("GET", "/", nil), "ORG7")

		mock.ExpectQuery(`SELECT (.+) FROM organizations WHERE code = \?`).
			WithArgs("ORG7").
			WillReturnRows(sqlmock.NewRows([]string{"code", "name", "created_at", "updated_at"}).
				AddRow("ORG7", "Smith LLP", 1700000000, 1700000000))
		mock.ExpectQuery(`SELECT (.+) FROM subscriptions WHERE org_code = \?`).
			WithArgs("ORG7").
			WillReturnRows(sqlmock.NewRows(subscriptionColumns).
				AddRow("ORG7", "professional", "trial", 1700000000, 1800000000, "", "", 1700000000))

		rr := httptest.NewRecorder()
		handler := middleware.Handle(func(w http.ResponseWriter, r *http.Request) {
			tenant, ok := Tenant(r.Context())
			if !ok {
				t.Fatal("Expected tenant context")
			}
			if tenant.OrgCode != "ORG7" || tenant.OrgName != "Smith LLP" {
				t.Errorf("unexpected tenant %+v", tenant)
			}
			if tenant.Plan() != plans.Professional {
				t.Errorf("Expected professional plan, got %s", tenant.Plan())
			}
			w.WriteHeader(http.StatusOK)
		})

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
		}
	})

	t.Run("Missing Subscription Falls Back To Basic", func(t *testing.T) {
		req := withIdentity(httptest.NewRequest("GET", "/", nil), "ORG42")

		mock.ExpectQuery(`SELECT (.+) FROM organizations WHERE code = \?`).
			WithArgs("ORG42").
			WillReturnRows(sqlmock.NewRows([]string{"code", "name", "created_at", "updated_at"}).
				AddRow("ORG42", "Solo Practice", 1700000000, 1700000000))
		mock.ExpectQuery(`SELECT (.+) FROM subscriptions WHERE org_code = \?`).
			WithArgs("ORG42").
			WillReturnError(sql.ErrNoRows)

		rr := httptest.NewRecorder()
		middleware.Handle(func(w http.ResponseWriter, r *http.Request) {
			tenant, _ := Tenant(r.Context())
			if tenant.Plan() != plans.Basic || !tenant.Subscription.Implicit {
				t.Errorf("Expected implicit basic subscription, got %+v", tenant.Subscription)
			}
		}).ServeHTTP(rr, req)
	})

	t.Run("Invalid Tenant", func(t *testing.T) {
		req := withIdentity(httptest.NewRequest("GET", "/", nil), "ORG999")

		mock.ExpectQuery(`SELECT (.+) FROM organizations WHERE code = \?`).
			WithArgs("ORG999").
			WillReturnError(sql.ErrNoRows)

		rr := httptest.NewRecorder()
		handler := middleware.Handle(func(w http.ResponseWriter, r *http.Request) {
			t.Error("Handler should not be called")
		})

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusForbidden)
		}
	})

	t.Run("No Identity", func(t *testing.T) {
		rr := httptest.NewRecorder()
		middleware.Handle(func(w http.ResponseWriter, r *http.Request) {
			t.Error("Handler should not be called")
		}).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil).WithContext(context.Background()))

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rr.Code)
		}
		if rr.Header().Get("Clear-Site-Data") == "" {
			t.Error("expected Clear-Site-Data header")
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
