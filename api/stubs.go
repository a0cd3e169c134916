package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/the-lightning-land/lnurld/lnurl"
)

const (
	defaultWithdrawDescription = "Withdrawal"
	authMessage                = "LNURL-auth is not verified by this service"
)

// handleWithdrawRequest issues a withdraw k1. Redemption is not supported.
func (a *Api) handleWithdrawRequest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var amount uint64
		if r.URL.Query().Get("amount") != "" {
			var err error
			amount, err = amountParam(r.URL.Query())
			if err != nil {
				a.writeError(w, r, err)
				return
			}
		}

		c, err := a.registry.Issue(r.Context(), lnurl.TagWithdrawRequest)
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		description := a.withdrawDescription
		if description == "" {
			description = defaultWithdrawDescription
		}

		a.jsonResponse(w, &lnurl.WithdrawResponse{
			Status:             lnurl.StatusOK,
			Tag:                lnurl.TagWithdrawRequest,
			Callback:           a.url(withdrawCallback),
			K1:                 c.Token,
			MinWithdrawable:    1000,
			MaxWithdrawable:    a.maxWithdrawableMsat,
			DefaultDescription: description,
			Amount:             amount,
		}, http.StatusOK)
	}
}

func (a *Api) handleWithdrawCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		k1, err := requiredParam(query, "k1")
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		if _, err := requiredParam(query, "pr"); err != nil {
			a.writeError(w, r, err)
			return
		}

		if _, err := a.registry.Consume(r.Context(), lnurl.TagWithdrawRequest, k1); err != nil {
			a.writeError(w, r, err)
			return
		}

		a.jsonError(w, "withdraw redemption is not supported", http.StatusNotImplemented)
	}
}

// handleAuth returns an unsigned auth challenge.
func (a *Api) handleAuth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := a.registry.Issue(r.Context(), lnurl.TagAuth)
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		a.jsonResponse(w, &lnurl.AuthResponse{
			Status:  lnurl.StatusOK,
			Tag:     lnurl.TagAuth,
			K1:      c.Token,
			UserId:  uuid.New().String(),
			Message: authMessage,
		}, http.StatusOK)
	}
}
