package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
)

const macHeader = "X-Client-MAC"

type packageView struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	DurationHours int     `json:"duration_hours"`
	Price         float64 `json:"price"`
	Currency      string  `json:"currency"`
}

func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request) {
	plans, err := s.deps.Plans.List(r.Context())
	if err != nil {
		writeError(w, r, err, s.log)
		return
	}
	out := make([]packageView, 0, len(plans))
	for _, p := range plans {
		out = append(out, packageView{ID: p.ID, Name: p.Name, DurationHours: p.DurationHours, Price: p.PriceMajor(), Currency: p.Currency})
	}
	writeJSON(w, http.StatusOK, map[string]any{"packages": out})
}

type generateCodesRequest struct {
	PlanID   string `json:"plan_id"`
	Quantity int    `json:"quantity"`
}

type generatedCode struct {
	Code          string  `json:"code"`
	PlanName      string  `json:"plan_name"`
	DurationHours int     `json:"duration_hours"`
	Price         float64 `json:"price"`
}

func (s *Server) handleGenerateCodes(w http.ResponseWriter, r *http.Request) {
	var req generateCodesRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err, s.log)
		return
	}
	batch, err := s.deps.Codes.GenerateBatch(r.Context(), sessionFrom(r.Context()), req.PlanID, req.Quantity)
	if err != nil {
		writeError(w, r, err, s.log)
		return
	}
	out := make([]generatedCode, 0, len(batch.Codes))
	for _, c := range batch.Codes {
		out = append(out, generatedCode{
			Code:          c.Code,
			PlanName:      batch.Plan.Name,
			DurationHours: c.DurationHours,
			Price:         batch.Plan.PriceMajor(),
		})
	}
	writeJSON(w, http.StatusCreated, map[string]any{"codes": out, "remaining_codes": batch.Remaining})
}

type codeRequest struct {
	Code       string `json:"code"`
	MACAddress string `json:"mac_address"`
}

func (s *Server) handleActivateCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err, s.log)
		return
	}
	mac := r.Header.Get(macHeader)
	if mac == "" {
		mac = req.MACAddress
	}
	c, err := s.deps.Codes.Activate(r.Context(), req.Code, mac)
	if err != nil {
		writeError(w, r, err, s.log)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "Code activated. Connect to the network to start your session.",
		"status":         c.Status,
		"duration_hours": c.DurationHours,
	})
}

// hours renders a duration in hours with two decimals.
func hours(d time.Duration) float64 {
	return math.Round(d.Hours()*100) / 100
}

func (s *Server) handleCheckCodeAccess(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Codes.CheckAccess(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		writeError(w, r, err, s.log)
		return
	}
	var msg string
	switch st.Code.Status {
	case model.CodeUnused:
		msg = "Code has not been activated yet."
	case model.CodePending:
		msg = "Code activated. Waiting for the device to connect."
	case model.CodeActive:
		msg = fmt.Sprintf("Access granted. %.2f hours remaining.", hours(st.Remaining))
	default:
		msg = "Code has expired."
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":              msg,
		"status":               st.Code.Status,
		"remaining_time_hours": hours(st.Remaining),
		"expiry":               st.ExpiresAt,
	})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err, s.log)
		return
	}
	c, err := s.deps.Sessions.StartSession(r.Context(), req.Code)
	if err != nil {
		writeError(w, r, err, s.log)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Session started.", "expiry": c.SessionExpiresAt})
}

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err, s.log)
		return
	}
	c, err := s.deps.Sessions.Attach(r.Context(), req.Code, req.MACAddress)
	if err != nil {
		writeError(w, r, err, s.log)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"code":           c.Code,
		"status":         c.Status,
		"expiry":         c.SessionExpiresAt,
		"duration_hours": c.DurationHours,
	})
}

type initiateRequest struct {
	PhoneNumber string `json:"phone_number"`
	PackageID   string `json:"package_id"`
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, r, err, s.log)
		return
	}
	t, err := s.deps.Payments.Initiate(r.Context(), req.PhoneNumber, req.PackageID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"transaction_id": t.ID, "status": t.Status})
	case errors.Is(err, domain.ErrUpstreamTimeout) && t != nil:
		writeErrorBody(w, r, err, errorBody{TransactionID: t.ID}, s.log)
	case t != nil && t.Status == model.TxFailed:
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "payment request was rejected by the provider", TransactionID: t.ID})
	default:
		writeError(w, r, err, s.log)
	}
}

type transactionView struct {
	TransactionID string     `json:"transaction_id"`
	Status        string     `json:"status"`
	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	PhoneNumber   string     `json:"phone_number"`
	PlanID        string     `json:"package_id"`
	AccessCode    string     `json:"access_code,omitempty"`
	Expiry        *time.Time `json:"expiry,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toTransactionView(t *model.Transaction, c *model.AccessCode) transactionView {
	v := transactionView{
		TransactionID: t.ID,
		Status:        string(t.Status),
		Amount:        float64(t.AmountMinor) / 100,
		Currency:      t.Currency,
		PhoneNumber:   t.PhoneNumber,
		PlanID:        t.PlanID,
		FailureReason: t.FailureReason,
		CreatedAt:     t.CreatedAt,
	}
	if t.AccessCode != nil {
		v.AccessCode = *t.AccessCode
	}
	if c != nil {
		v.Expiry = c.SessionExpiresAt
	}
	return v
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Payments.Verify(r.Context(), chi.URLParam(r, "transactionID"))
	if err != nil {
		body := errorBody{}
		if res != nil && res.Transaction != nil {
			body.TransactionID = res.Transaction.ID
		}
		writeErrorBody(w, r, err, body, s.log)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionView(res.Transaction, res.Code))
}
