package pinledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	HeaderAcctNo = "Account-No"
	HeaderPIN    = "Pin"
)

type createJSONResp struct {
	AcctNo  string `json:"acc_No"`
	Message string `json:"message"`
}

type chargeJSONReq struct {
	Amount decimal.Decimal `json:"amount"`
}

type chargeJSONResp struct {
	ChargeResult
	Message string `json:"message"`
}

type updateJSONReq struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	PIN   string `json:"pin"`
}

type messageJSONResp struct {
	Message string `json:"message"`
}

func NewHTTPHandler(svc Service, logger *zerolog.Logger) http.Handler {
	logger = nopIfNil(logger)
	hndlr := &httpHandler{
		Svc: svc,
		Log: logger,
	}
	mux := chi.NewMux()
	mux.Use(middleware.RequestID)
	mux.Use(hlog.NewHandler(*logger))
	mux.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	mux.Use(middleware.Recoverer)
	mux.NotFound(HTTPNotFound)
	mux.Route("/accounts", func(r chi.Router) {
		r.Post("/", hndlr.CreateAccount)
		r.Delete("/", hndlr.DeleteAccount)
		r.Post("/deposit", hndlr.Deposit)
		r.Post("/withdraw", hndlr.Withdraw)
		r.Get("/details", hndlr.ViewDetails)
		r.Get("/statement", hndlr.Statement)
		r.Route("/drafts", func(rr chi.Router) {
			rr.Post("/", hndlr.BeginUpdate)
			rr.Put("/{draftID:[0-9]+}", hndlr.ConfirmUpdate)
			rr.Delete("/{draftID:[0-9]+}", hndlr.AbandonUpdate)
		})
	})

	return mux
}

type httpHandler struct {
	Svc Service
	Log *zerolog.Logger
}

func credentialsFrom(r *http.Request) Credentials {
	return Credentials{
		AcctNo: r.Header.Get(HeaderAcctNo),
		PIN:    r.Header.Get(HeaderPIN),
	}
}

func (h *httpHandler) decode(w http.ResponseWriter, r *http.Request, method string, v any) bool {
	buf, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		h.Log.Err(err).Str("method", method).Msg("error reading HTTP request")
		WriteHTTPError(w, ErrInternalServer)
		return false
	}
	if err = json.Unmarshal(buf, v); err != nil {
		h.Log.Err(err).Str("method", method).Msg("error unmarshalling JSON")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"request body": "malformed JSON"}})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("error response encoding failed")
	}
}

func (h *httpHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountReq
	if !h.decode(w, r, "create_account", &req) {
		return
	}
	acct, err := h.Svc.CreateAccount(r.Context(), req)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createJSONResp{
		AcctNo:  acct.AcctNo,
		Message: "Account Created Successfully",
	})
}

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// chargeAmount accepts whole amounts of at least 1 that fit in an int64.
func chargeAmount(req chargeJSONReq) (int64, error) {
	if !req.Amount.IsInteger() || req.Amount.LessThan(decimal.NewFromInt(1)) {
		return 0, ErrBadRequest{Fields: map[string]string{"amount": "must be a whole number of at least 1"}}
	}
	if req.Amount.GreaterThan(maxAmount) {
		return 0, ErrBadRequest{Fields: map[string]string{"amount": "too large"}}
	}
	return req.Amount.IntPart(), nil
}

func (h *httpHandler) charge(w http.ResponseWriter, r *http.Request, method string) {
	var body chargeJSONReq
	if !h.decode(w, r, method, &body) {
		return
	}
	amount, err := chargeAmount(body)
	if err != nil {
		h.Log.Err(err).Str("method", method).Msg("invalid amount")
		WriteHTTPError(w, err)
		return
	}
	req := ChargeReq{
		Credentials: credentialsFrom(r),
		Amount:      amount,
	}

	var (
		res  *ChargeResult
		verb string
	)
	if method == "deposit" {
		res, err = h.Svc.Deposit(r.Context(), req)
		verb = "deposited"
	} else {
		res, err = h.Svc.Withdraw(r.Context(), req)
		verb = "withdrawn"
	}
	if err != nil {
		WriteHTTPError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chargeJSONResp{
		ChargeResult: *res,
		Message:      printer.Sprintf("%d %s successfully", res.Amount, verb),
	})
}

func (h *httpHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.charge(w, r, "deposit")
}

func (h *httpHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.charge(w, r, "withdraw")
}

func (h *httpHandler) ViewDetails(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Svc.ViewDetails(r.Context(), credentialsFrom(r))
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *httpHandler) Statement(w http.ResponseWriter, r *http.Request) {
	buf := new(bytes.Buffer)
	if err := h.Svc.Statement(r.Context(), buf, credentialsFrom(r)); err != nil {
		WriteHTTPError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="statement.pdf"`)
	if _, err := buf.WriteTo(w); err != nil {
		h.Log.Err(err).Str("method", "statement").Msg("error writing statement")
	}
}

func (h *httpHandler) BeginUpdate(w http.ResponseWriter, r *http.Request) {
	d, err := h.Svc.BeginUpdate(r.Context(), credentialsFrom(r))
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *httpHandler) draftID(w http.ResponseWriter, r *http.Request, method string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(chi.URLParam(r, "draftID"))
	if err != nil {
		h.Log.Err(err).Str("method", method).Msg("error parsing draft ID")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"draftID": "invalid format"}})
		return 0, false
	}
	return id, true
}

func (h *httpHandler) ConfirmUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r, "confirm_update")
	if !ok {
		return
	}
	var body updateJSONReq
	if !h.decode(w, r, "confirm_update", &body) {
		return
	}
	acct, err := h.Svc.ConfirmUpdate(r.Context(), ConfirmUpdateReq{
		Credentials: credentialsFrom(r),
		DraftID:     id,
		Name:        body.Name,
		Email:       body.Email,
		PIN:         body.PIN,
	})
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *httpHandler) AbandonUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r, "abandon_update")
	if !ok {
		return
	}
	if err := h.Svc.AbandonUpdate(r.Context(), id); err != nil {
		WriteHTTPError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *httpHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.DeleteAccount(r.Context(), credentialsFrom(r)); err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageJSONResp{Message: "Account Deleted Successfully"})
}

func WriteHTTPError(w http.ResponseWriter, err error) {
	var ne error
	defer func() {
		if ne != nil {
			log.Error().
				Err(ne).
				Msg("error response encoding failed")
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	errbr := &ErrBadRequest{}
	errval := &ErrValidation{}
	errlim := &ErrLimit{}
	errdnf := &ErrDraftNotFound{}
	switch {
	case errors.As(err, errbr):
		w.WriteHeader(http.StatusBadRequest)
		ne = json.NewEncoder(w).Encode(errbr)
	case errors.As(err, errval):
		w.WriteHeader(http.StatusBadRequest)
		ne = json.NewEncoder(w).Encode(errval)
	case errors.Is(err, ErrAuth):
		w.WriteHeader(http.StatusUnauthorized)
		ne = json.NewEncoder(w).Encode(messageJSONResp{Message: "Invalid Account or PIN"})
	case errors.As(err, errdnf):
		w.WriteHeader(http.StatusNotFound)
		ne = json.NewEncoder(w).Encode(errdnf)
	case errors.As(err, &ErrInsufficientFunds{}):
		w.WriteHeader(http.StatusConflict)
		ne = json.NewEncoder(w).Encode(messageJSONResp{Message: "Insufficient Balance"})
	case errors.As(err, errlim):
		w.WriteHeader(http.StatusUnprocessableEntity)
		ne = json.NewEncoder(w).Encode(map[string]any{
			"message": printer.Sprintf("Max %s limit is %d", errlim.Op, errlim.Limit),
			"limit":   errlim.Limit,
		})
	case errors.Is(err, ErrServiceUnavailable):
		w.WriteHeader(http.StatusServiceUnavailable)
		ne = json.NewEncoder(w).Encode(messageJSONResp{Message: "service unavailable"})
	default:
		log.Error().Err(err).Msg("unhandled service error")
		w.WriteHeader(http.StatusInternalServerError)
		resp := map[string]string{
			"message": "server error",
		}
		ne = json.NewEncoder(w).Encode(resp)
	}
}

func HTTPNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	resp := map[string]string{
		"path": r.URL.Path,
	}
	json.NewEncoder(w).Encode(resp)
}
