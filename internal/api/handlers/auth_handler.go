package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"lawdesk/internal/api/middleware"
	"lawdesk/internal/engine/plans"
	"lawdesk/internal/engine/subscriptions"
	"lawdesk/internal/pkg/errors"
	"lawdesk/internal/pkg/validator"
	"lawdesk/internal/platform/auth"
	"lawdesk/internal/platform/config"
	"lawdesk/internal/platform/identity"
	"lawdesk/internal/platform/mailer"
	"lawdesk/internal/platform/models"
	"lawdesk/internal/platform/repositories"
)

type AuthHandler struct {
	userRepo *repositories.UserRepository
	orgRepo  *repositories.OrganizationRepository
	registry *subscriptions.Registry
	tokenSvc *auth.TokenService
	mail     mailer.Sender
	jwtCfg   config.JWTConfig
	subCfg   config.SubscriptionsConfig
}

func NewAuthHandler(userRepo *repositories.UserRepository, orgRepo *repositories.OrganizationRepository, registry *subscriptions.Registry, tokenSvc *auth.TokenService, mail mailer.Sender, jwtCfg config.JWTConfig, subCfg config.SubscriptionsConfig) *AuthHandler {
	return &AuthHandler{
		userRepo: userRepo,
		orgRepo:  orgRepo,
		registry: registry,
		tokenSvc: tokenSvc,
		mail:     mail,
		jwtCfg:   jwtCfg,
		subCfg:   subCfg,
	}
}

type SignupRequest struct {
	OrgName  string `json:"org_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Plan     string `json:"plan"`
}

type AuthResponse struct {
	User         *models.User                `json:"user"`
	Organization *models.Organization        `json:"organization,omitempty"`
	Subscription *subscriptions.Subscription `json:"subscription,omitempty"`
	AccessToken  string                      `json:"access_token"`
	RefreshToken string                      `json:"refresh_token"`
}

func newOrgCode() string {
	return "ORG-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func (h *AuthHandler) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.jwtCfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.jwtCfg.AccessTokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) issue(w http.ResponseWriter, user *models.User) (string, string, bool) {
	accessToken, err := h.tokenSvc.GenerateAccessToken(user.ID, user.OrgCode, user.Role, user.Email)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to generate token", nil)
		return "", "", false
	}
	refreshToken, err := h.tokenSvc.GenerateRefreshToken(user.ID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to generate token", nil)
		return "", "", false
	}
	h.setSession(w, accessToken)
	return accessToken, refreshToken, true
}

// Signup creates the organization, its owner and a trial subscription in one
// transaction.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decode(w, r, &req) {
		return
	}

	req.Email = identity.NormalizeEmail(req.Email)
	req.OrgName = strings.TrimSpace(req.OrgName)
	req.FullName = strings.TrimSpace(req.FullName)
	checks := []error{validator.Email(req.Email), validator.Password(req.Password), validator.OrgName(req.OrgName)}
	if req.FullName == "" {
		checks = append(checks, validator.ErrInvalidFullName)
	}
	for _, err := range checks {
		if err != nil {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
			return
		}
	}

	plan := h.subCfg.TrialPlan
	if req.Plan != "" {
		plan = req.Plan
	}
	if !plans.Valid(plan) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Unknown plan", map[string]interface{}{"plans": plans.Names()})
		return
	}

	existing, err := h.userRepo.GetByEmail(r.Context(), req.Email)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if existing != nil {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "User already exists", nil)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to hash password", nil)
		return
	}

	now := time.Now().Unix()
	org := &models.Organization{
		Code:      newOrgCode(),
		Name:      req.OrgName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	user := &models.User{
		ID:           "usr_" + uuid.NewString(),
		OrgCode:      org.Code,
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
		FullName:     req.FullName,
		Role:         "owner",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := h.orgRepo.BeginTx(r.Context())
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	defer tx.Rollback()

	if err := h.orgRepo.CreateTx(r.Context(), tx, org); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create organization", nil)
		return
	}
	if err := h.userRepo.CreateTx(r.Context(), tx, user); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create user", nil)
		return
	}
	sub, err := h.registry.StartTrialTx(r.Context(), tx, org.Code, plan, h.subCfg.TrialDays)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to start trial", nil)
		return
	}
	if err := tx.Commit(); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	log.Info().
		Str("org_code", org.Code).
		Str("user_id", identity.UserID(user.Email)).
		Str("plan", plan).
		Msg("organization signed up")

	go mailer.SendWelcome(context.Background(), h.mail, user.Email, mailer.WelcomeData{
		Name:      user.FullName,
		Org:       org.Name,
		Plan:      plan,
		TrialDays: h.subCfg.TrialDays,
	})

	accessToken, refreshToken, ok := h.issue(w, user)
	if !ok {
		return
	}
	errors.WriteJSON(w, http.StatusCreated, AuthResponse{
		User:         user,
		Organization: org,
		Subscription: sub,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.userRepo.GetByEmail(r.Context(), identity.NormalizeEmail(req.Email))
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if user == nil {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid credentials", nil)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid credentials", nil)
		return
	}

	accessToken, refreshToken, ok := h.issue(w, user)
	if !ok {
		return
	}

	if err := h.userRepo.UpdateLastLogin(r.Context(), user.ID, time.Now().Unix()); err != nil {
		log.Warn().Err(err).Str("user_id", identity.UserID(user.Email)).Msg("failed to update last login")
	}

	org, err := h.orgRepo.GetByCode(r.Context(), user.OrgCode)
	if err != nil {
		log.Warn().Err(err).Str("org_code", user.OrgCode).Msg("failed to load organization for login")
	}

	errors.WriteJSON(w, http.StatusOK, AuthResponse{
		User:         user,
		Organization: org,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}

// Refresh issues a new access token. Role and organization are read again so
// changes apply on the next refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decode(w, r, &req) {
		return
	}

	claims, err := h.tokenSvc.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid refresh token", nil)
		return
	}

	user, err := h.userRepo.GetByID(r.Context(), claims.Subject)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if user == nil {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "User not found", nil)
		return
	}

	accessToken, err := h.tokenSvc.GenerateAccessToken(user.ID, user.OrgCode, user.Role, user.Email)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to generate token", nil)
		return
	}
	h.setSession(w, accessToken)

	errors.WriteJSON(w, http.StatusOK, RefreshResponse{AccessToken: accessToken})
}

// Logout drops the session cookie and asks the browser to clear site data.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearSession(w, h.jwtCfg.CookieName)
	w.Header().Set("Clear-Site-Data", `"cookies", "storage"`)
	w.WriteHeader(http.StatusNoContent)
}
