package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/logging"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/usecase"
)

const csrfHeader = "X-CSRF-Token"

type sessionKey struct{}

func withSession(ctx context.Context, s *model.AdminSession) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// sessionFrom returns the admin attached by requireAdmin, or nil.
func sessionFrom(ctx context.Context) *model.AdminSession {
	s, _ := ctx.Value(sessionKey{}).(*model.AdminSession)
	return s
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// requireAdmin resolves the access token and, on state-changing requests,
// checks the CSRF header against the token's claim.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.deps.Auth.Authenticate(r.Context(), bearer(r), r.Header.Get(csrfHeader), mutating(r.Method))
		if err != nil {
			writeError(w, r, err, s.log)
			return
		}
		ctx := logging.WithAdminID(withSession(r.Context(), sess), sess.AdminID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireNAS authenticates the network controller by its shared secret.
func (s *Server) requireNAS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := bearer(r)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.NASSecret)) != 1 {
			writeError(w, r, domain.ErrUnauthenticated, s.log)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	TempToken string    `json:"temp_token"`
	CSRFToken string    `json:"csrf_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err, s.log)
		return
	}
	grant, err := s.deps.Auth.LoginStep1(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err, s.log)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{TempToken: grant.TempToken, CSRFToken: grant.CSRFToken, ExpiresAt: grant.ExpiresAt})
}

type verifyTOTPRequest struct {
	TOTPCode string `json:"totp_code"`
}

type adminView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type verifyTOTPResponse struct {
	AccessToken string     `json:"access_token"`
	CSRFToken   string     `json:"csrf_token"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Admin       *adminView `json:"admin,omitempty"`
}

func (s *Server) handleVerifyTOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyTOTPRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err, s.log)
		return
	}
	grant, err := s.deps.Auth.LoginStep2(r.Context(), bearer(r), r.Header.Get(csrfHeader), req.TOTPCode)
	if err != nil {
		writeError(w, r, err, s.log)
		return
	}
	resp := verifyTOTPResponse{AccessToken: grant.AccessToken, CSRFToken: grant.CSRFToken, ExpiresAt: grant.ExpiresAt}
	if grant.Admin != nil {
		resp.Admin = &adminView{ID: grant.Admin.ID, Username: grant.Admin.Username}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         sess.AdminID,
		"username":   sess.Username,
		"scope":      sess.Scope,
		"expires_at": sess.ExpiresAt,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Auth.Logout(r.Context(), sessionFrom(r.Context())); err != nil {
		writeError(w, r, err, s.log)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := s.deps.Auth.ListAdmins(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		writeError(w, r, err, s.log)
		return
	}
	out := make([]adminView, 0, len(admins))
	for _, a := range admins {
		out = append(out, adminView{ID: a.ID, Username: a.Username, CreatedAt: a.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

type exclusionRequest struct {
	Type                  string `json:"type"`
	Value                 string `json:"value"`
	Reason                string `json:"reason"`
	ExcludeFromPayment    bool   `json:"exclude_from_payment"`
	ExcludeFromConnection bool   `json:"exclude_from_connection"`
}

type exclusionView struct {
	ID                    string    `json:"id"`
	Type                  string    `json:"type"`
	Value                 string    `json:"value"`
	Reason                string    `json:"reason,omitempty"`
	ExcludeFromPayment    bool      `json:"exclude_from_payment"`
	ExcludeFromConnection bool      `json:"exclude_from_connection"`
	CreatedAt             time.Time `json:"created_at"`
}

func toExclusionView(e *model.Exclusion) exclusionView {
	return exclusionView{
		ID:                    e.ID,
		Type:                  string(e.Type),
		Value:                 e.Value,
		Reason:                e.Reason,
		ExcludeFromPayment:    e.ExcludeFromPayment,
		ExcludeFromConnection: e.ExcludeFromConnection,
		CreatedAt:             e.CreatedAt,
	}
}

func (s *Server) handleListExclusions(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Exclusions.List(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		writeError(w, r, err, s.log)
		return
	}
	out := make([]exclusionView, 0, len(items))
	for _, e := range items {
		out = append(out, toExclusionView(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"exclusions": out})
}

func (s *Server) handleAddExclusion(w http.ResponseWriter, r *http.Request) {
	var req exclusionRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err, s.log)
		return
	}
	e, err := s.deps.Exclusions.Add(r.Context(), sessionFrom(r.Context()), usecase.ExclusionInput{
		Type:                  req.Type,
		Value:                 req.Value,
		Reason:                req.Reason,
		ExcludeFromPayment:    req.ExcludeFromPayment,
		ExcludeFromConnection: req.ExcludeFromConnection,
	})
	if err != nil {
		writeError(w, r, err, s.log)
		return
	}
	writeJSON(w, http.StatusCreated, toExclusionView(e))
}

func (s *Server) handleRemoveExclusion(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Exclusions.Remove(r.Context(), sessionFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err, s.log)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pageParams(r)
	if err != nil {
		writeError(w, r, err, s.log)
		return
	}
	items, total, err := s.deps.Payments.List(r.Context(), sessionFrom(r.Context()), offset, limit)
	if err != nil {
		writeError(w, r, err, s.log)
		return
	}
	out := make([]transactionView, 0, len(items))
	for _, t := range items {
		out = append(out, toTransactionView(t, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out, "total": total})
}

type codeView struct {
	Code             string     `json:"code"`
	PlanID           string     `json:"plan_id"`
	DurationHours    int        `json:"duration_hours"`
	Status           string     `json:"status"`
	MACAddress       string     `json:"mac_address,omitempty"`
	TransactionID    *string    `json:"transaction_id,omitempty"`
	IssuedAt         time.Time  `json:"issued_at"`
	ActivatedAt      *time.Time `json:"activated_at,omitempty"`
	SessionExpiresAt *time.Time `json:"session_expires_at,omitempty"`
}

func (s *Server) handleListCodes(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pageParams(r)
	if err != nil {
		writeError(w, r, err, s.log)
		return
	}
	f := repository.CodeFilter{PlanID: r.URL.Query().Get("plan_id"), Offset: offset, Limit: limit}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, ok := model.ParseCodeStatus(raw)
		if !ok {
			writeError(w, r, domain.Validationf("unknown code status %q", raw), s.log)
			return
		}
		f.Status = st
	}
	codes, err := s.deps.Codes.List(r.Context(), sessionFrom(r.Context()), f)
	if err != nil {
		writeError(w, r, err, s.log)
		return
	}
	out := make([]codeView, 0, len(codes))
	for _, c := range codes {
		out = append(out, codeView{
			Code:             c.Code,
			PlanID:           c.PlanID,
			DurationHours:    c.DurationHours,
			Status:           string(c.Status),
			MACAddress:       c.MACAddress,
			TransactionID:    c.TransactionID,
			IssuedAt:         c.IssuedAt,
			ActivatedAt:      c.ActivatedAt,
			SessionExpiresAt: c.SessionExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"codes": out})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Stats.Summary(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		writeError(w, r, err, s.log)
		return
	}
	byStatus := make(map[string]int, len(st.CodesByStatus))
	for k, v := range st.CodesByStatus {
		byStatus[string(k)] = v
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"codes_by_status": byStatus,
		"transactions":    st.Transactions,
		"revenue": map[string]string{
			"week":  model.FormatMinor(st.RevenueWeek),
			"month": model.FormatMinor(st.RevenueMonth),
			"year":  model.FormatMinor(st.RevenueYear),
		},
	})
}
