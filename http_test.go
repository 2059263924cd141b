package pinledger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/arhyth/pinledger"
	"github.com/arhyth/pinledger/mocks"
)

func withCreds(req *http.Request, acctNo, pin string) *http.Request {
	req.Header.Set(pinledger.HeaderAcctNo, acctNo)
	req.Header.Set(pinledger.HeaderPIN, pin)
	return req
}

func TestHTTPCreateAccount(t *testing.T) {
	nooplog := zerolog.Nop()

	t.Run("returns Created with the account number", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().
			CreateAccount(gomock.Any(), pinledger.CreateAccountReq{Name: "Asha", Age: 20, Email: "a@x.com", PIN: "1234"}).
			Return(&pinledger.Account{Name: "Asha", Age: 20, Email: "a@x.com", PIN: 1234, AcctNo: "a1B#2c3"}, nil).
			Times(1)

		hndlr := pinledger.NewHTTPHandler(svc, &nooplog)
		body := bytes.NewBufferString(`{"name":"Asha","age":20,"email":"a@x.com","pin":"1234"}`)
		req := httptest.NewRequest(http.MethodPost, "/accounts", body)
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusCreated, w.Code)
		resp := map[string]string{}
		reqrd.Nil(json.Unmarshal(w.Body.Bytes(), &resp))
		as.Equal("a1B#2c3", resp["acc_No"])
		as.Equal("Account Created Successfully", resp["message"])
	})

	t.Run("returns BadRequest on a failed precondition", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().
			CreateAccount(gomock.Any(), gomock.Any()).
			Return(nil, pinledger.ErrValidation{Reason: "age must be 18+ and PIN must be 4 digits"})

		hndlr := pinledger.NewHTTPHandler(svc, &nooplog)
		body := bytes.NewBufferString(`{"name":"Kid","age":12,"email":"k@x.com","pin":"1234"}`)
		req := httptest.NewRequest(http.MethodPost, "/accounts", body)
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusBadRequest, w.Code)
		resp := map[string]string{}
		reqrd.Nil(json.Unmarshal(w.Body.Bytes(), &resp))
		as.Equal("age must be 18+ and PIN must be 4 digits", resp["message"])
	})

	t.Run("returns BadRequest on malformed request body", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)

		hndlr := pinledger.NewHTTPHandler(svc, &nooplog)
		body := bytes.NewBufferString(`{"name":"Asha"`)
		req := httptest.NewRequest(http.MethodPost, "/accounts", body)
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusBadRequest, w.Code)
		resp := map[string]map[string]string{}
		reqrd.Nil(json.Unmarshal(w.Body.Bytes(), &resp))
		as.Contains(resp["fields"], "request body")
	})
}

func TestHTTPCharge(t *testing.T) {
	nooplog := zerolog.Nop()

	t.Run("deposit returns OK with the new balance", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().
			Deposit(gomock.Any(), pinledger.ChargeReq{
				Credentials: pinledger.Credentials{AcctNo: "a1B#2c3", PIN: "1234"},
				Amount:      5000,
			}).
			Return(&pinledger.ChargeResult{AcctNo: "a1B#2c3", Amount: 5000, Balance: 5000}, nil).
			Times(1)

		hndlr := pinledger.NewHTTPHandler(svc, &nooplog)
		body := bytes.NewBufferString(`{"amount":5000}`)
		req := withCreds(httptest.NewRequest(http.MethodPost, "/accounts/deposit", body), "a1B#2c3", "1234")
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusOK, w.Code)
		resp := map[string]any{}
		reqrd.Nil(json.Unmarshal(w.Body.Bytes(), &resp))
		as.Equal(float64(5000), resp["balance"])
		as.Equal("5,000 deposited successfully", resp["message"])
	})

	t.Run("accepts a whole amount written with decimals", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().
			Withdraw(gomock.Any(), gomock.AssignableToTypeOf(pinledger.ChargeReq{})).
			DoAndReturn(func(_ context.Context, r pinledger.ChargeReq) (*pinledger.ChargeResult, error) {
				return &pinledger.ChargeResult{AcctNo: r.AcctNo, Amount: r.Amount, Balance: 0}, nil
			}).
			Times(1)

		hndlr := pinledger.NewHTTPHandler(svc, &nooplog)
		body := bytes.NewBufferString(`{"amount":1234.00}`)
		req := withCreds(httptest.NewRequest(http.MethodPost, "/accounts/withdraw", body), "a1B#2c3", "1234")
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusOK, w.Code)
		as.Contains(w.Body.String(), "1,234 withdrawn successfully")
	})

	for name, amount := range map[string]string{
		"fractional":  `12.5`,
		"zero":        `0`,
		"negative":    `-3`,
		"overflowing": `18446744073709552116`,
	} {
		t.Run("returns BadRequest on "+name+" amount", func(tt *testing.T) {
			as := assert.New(tt)
			reqrd := require.New(tt)
			ctrl := gomock.NewController(tt)
			svc := mocks.NewMockService(ctrl)

			hndlr := pinledger.NewHTTPHandler(svc, &nooplog)
			body := bytes.NewBufferString(`{"amount":` + amount + `}`)
			req := withCreds(httptest.NewRequest(http.MethodPost, "/accounts/deposit", body), "a1B#2c3", "1234")
			w := httptest.NewRecorder()
			hndlr.ServeHTTP(w, req)

			as.Equal(http.StatusBadRequest, w.Code)
			resp := map[string]map[string]string{}
			reqrd.Nil(json.Unmarshal(w.Body.Bytes(), &resp))
			as.Contains(resp["fields"], "amount")
		})
	}

	t.Run("returns BadRequest on malformed request body", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)

		hndlr := pinledger.NewHTTPHandler(svc, &nooplog)
		body := bytes.NewBufferString(`{"amount":1234.00`)
		req := withCreds(httptest.NewRequest(http.MethodPost, "/accounts/deposit", body), "a1B#2c3", "1234")
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusBadRequest, w.Code)
	})

	t.Run("maps service errors to status codes", func(tt *testing.T) {
		cases := []struct {
			err     error
			status  int
			message string
		}{
			{pinledger.ErrAuth, http.StatusUnauthorized, "Invalid Account or PIN"},
			{pinledger.ErrInsufficientFunds{Balance: 500, Amount: 501}, http.StatusConflict, "Insufficient Balance"},
			{pinledger.ErrLimit{Op: "withdrawal", Limit: 10000}, http.StatusUnprocessableEntity, "Max withdrawal limit is 10,000"},
			{pinledger.ErrServiceUnavailable, http.StatusServiceUnavailable, "service unavailable"},
			{pinledger.ErrStorage{Op: "save", Err: io.ErrShortWrite}, http.StatusInternalServerError, "server error"},
		}
		for _, c := range cases {
			as := assert.New(tt)
			reqrd := require.New(tt)
			ctrl := gomock.NewController(tt)
			svc := mocks.NewMockService(ctrl)
			svc.EXPECT().Withdraw(gomock.Any(), gomock.Any()).Return(nil, c.err)

			hndlr := pinledger.NewHTTPHandler(svc, &nooplog)
			body := bytes.NewBufferString(`{"amount":501}`)
			req := withCreds(httptest.NewRequest(http.MethodPost, "/accounts/withdraw", body), "a1B#2c3", "1234")
			w := httptest.NewRecorder()
			hndlr.ServeHTTP(w, req)

			as.Equal(c.status, w.Code, c.err.Error())
			resp := map[string]any{}
			reqrd.Nil(json.Unmarshal(w.Body.Bytes(), &resp))
			as.Equal(c.message, resp["message"], c.err.Error())
		}
	})
}

func TestHTTPViewDetails(t *testing.T) {
	as := assert.New(t)
	reqrd := require.New(t)
	nooplog := zerolog.Nop()
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().
		ViewDetails(gomock.Any(), pinledger.Credentials{AcctNo: "a1B#2c3", PIN: "1234"}).
		Return(&pinledger.Account{Name: "Asha", Age: 20, Email: "a@x.com", PIN: 1234, AcctNo: "a1B#2c3", Balance: 300}, nil)

	hndlr := pinledger.NewHTTPHandler(svc, &nooplog)
	req := withCreds(httptest.NewRequest(http.MethodGet, "/accounts/details", nil), "a1B#2c3", "1234")
	w := httptest.NewRecorder()
	hndlr.ServeHTTP(w, req)

	as.Equal(http.StatusOK, w.Code)
	acct := pinledger.Account{}
	reqrd.Nil(json.Unmarshal(w.Body.Bytes(), &acct))
	as.Equal(int64(300), acct.Balance)
	as.Equal("Asha", acct.Name)
}

func TestHTTPUpdate(t *testing.T) {
	nooplog := zerolog.Nop()
	draftID := snowflake.ID(1834563581361305763)

	t.Run("begin returns Created with the draft", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().
			BeginUpdate(gomock.Any(), pinledger.Credentials{AcctNo: "a1B#2c3", PIN: "1234"}).
			Return(&pinledger.Draft{ID: draftID, AcctNo: "a1B#2c3", Name: "Asha", Email: "a@x.com", PIN: "1234"}, nil)

		hndlr := pinledger.NewHTTPHandler(svc, &nooplog)
		req := withCreds(httptest.NewRequest(http.MethodPost, "/accounts/drafts", nil), "a1B#2c3", "1234")
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusCreated, w.Code)
		resp := map[string]string{}
		reqrd.Nil(json.Unmarshal(w.Body.Bytes(), &resp))
		as.Equal(draftID.String(), resp["draft_id"])
		as.Equal("Asha", resp["name"])
	})

	t.Run("confirm passes the draft ID and new details", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().
			ConfirmUpdate(gomock.Any(), pinledger.ConfirmUpdateReq{
				Credentials: pinledger.Credentials{AcctNo: "a1B#2c3", PIN: "1234"},
				DraftID:     draftID,
				Name:        "Asha K",
				Email:       "asha@x.com",
				PIN:         "4321",
			}).
			Return(&pinledger.Account{Name: "Asha K", Email: "asha@x.com", PIN: 4321, AcctNo: "a1B#2c3"}, nil)

		hndlr := pinledger.NewHTTPHandler(svc, &nooplog)
		body := bytes.NewBufferString(`{"name":"Asha K","email":"asha@x.com","pin":"4321"}`)
		req := withCreds(httptest.NewRequest(http.MethodPut, "/accounts/drafts/"+draftID.String(), body), "a1B#2c3", "1234")
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusOK, w.Code)
	})

	t.Run("confirm returns NotFound on an unknown draft", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().
			ConfirmUpdate(gomock.Any(), gomock.Any()).
			Return(nil, pinledger.ErrDraftNotFound{ID: draftID})

		hndlr := pinledger.NewHTTPHandler(svc, &nooplog)
		body := bytes.NewBufferString(`{"name":"x","email":"y","pin":"1"}`)
		req := withCreds(httptest.NewRequest(http.MethodPut, "/accounts/drafts/"+draftID.String(), body), "a1B#2c3", "1234")
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusNotFound, w.Code)
		resp := map[string]string{}
		reqrd.Nil(json.Unmarshal(w.Body.Bytes(), &resp))
		as.Equal(draftID.String(), resp["draft_id"])
	})

	t.Run("rejects a non-numeric draft ID in the path", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)

		hndlr := pinledger.NewHTTPHandler(svc, &nooplog)
		req := withCreds(httptest.NewRequest(http.MethodDelete, "/accounts/drafts/24j24g", nil), "a1B#2c3", "1234")
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusNotFound, w.Code)
		resp := map[string]string{}
		reqrd.Nil(json.Unmarshal(w.Body.Bytes(), &resp))
		as.Contains(resp, "path")
	})

	t.Run("abandon returns NoContent", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().AbandonUpdate(gomock.Any(), draftID).Return(nil)

		hndlr := pinledger.NewHTTPHandler(svc, &nooplog)
		req := httptest.NewRequest(http.MethodDelete, "/accounts/drafts/"+draftID.String(), nil)
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusNoContent, w.Code)
	})
}

func TestHTTPDeleteAccount(t *testing.T) {
	as := assert.New(t)
	reqrd := require.New(t)
	nooplog := zerolog.Nop()
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().DeleteAccount(gomock.Any(), pinledger.Credentials{AcctNo: "a1B#2c3", PIN: "1234"}).Return(nil)

	hndlr := pinledger.NewHTTPHandler(svc, &nooplog)
	req := withCreds(httptest.NewRequest(http.MethodDelete, "/accounts", nil), "a1B#2c3", "1234")
	w := httptest.NewRecorder()
	hndlr.ServeHTTP(w, req)

	as.Equal(http.StatusOK, w.Code)
	resp := map[string]string{}
	reqrd.Nil(json.Unmarshal(w.Body.Bytes(), &resp))
	as.Equal("Account Deleted Successfully", resp["message"])
}

func TestHTTPStatement(t *testing.T) {
	nooplog := zerolog.Nop()

	t.Run("streams the PDF", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().
			Statement(gomock.Any(), gomock.Any(), pinledger.Credentials{AcctNo: "a1B#2c3", PIN: "1234"}).
			DoAndReturn(func(_ context.Context, w io.Writer, _ pinledger.Credentials) error {
				_, err := w.Write([]byte("%PDF-1.3 stub"))
				return err
			})

		hndlr := pinledger.NewHTTPHandler(svc, &nooplog)
		req := withCreds(httptest.NewRequest(http.MethodGet, "/accounts/statement", nil), "a1B#2c3", "1234")
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusOK, w.Code)
		as.Equal("application/pdf", w.Header().Get("Content-Type"))
		as.Equal("%PDF-1.3 stub", w.Body.String())
	})

	t.Run("writes nothing but the error on failure", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().
			Statement(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, w io.Writer, _ pinledger.Credentials) error {
				_, _ = w.Write([]byte("%PDF-partial"))
				return pinledger.ErrAuth
			})

		hndlr := pinledger.NewHTTPHandler(svc, &nooplog)
		req := withCreds(httptest.NewRequest(http.MethodGet, "/accounts/statement", nil), "a1B#2c3", "0000")
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusUnauthorized, w.Code)
		as.NotContains(w.Body.String(), "%PDF")
	})
}

func TestHTTPNotFound(t *testing.T) {
	as := assert.New(t)
	nooplog := zerolog.Nop()
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)

	hndlr := pinledger.NewHTTPHandler(svc, &nooplog)
	req := httptest.NewRequest(http.MethodGet, "/ledger", nil)
	w := httptest.NewRecorder()
	hndlr.ServeHTTP(w, req)

	as.Equal(http.StatusNotFound, w.Code)
	as.Contains(w.Body.String(), `"path":"/ledger"`)
}
