package api

import (
	"net/http"

	"github.com/the-lightning-land/lnurld/lnurl"
)

func (a *Api) handlePayRequest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.jsonResponse(w, a.pay.BuildOffer().Response(), http.StatusOK)
	}
}

func (a *Api) handlePayCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		amount, err := amountParam(r.URL.Query())
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		invoice, err := a.pay.GenerateInvoice(r.Context(), amount, a.pay.BuildOffer())
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		a.jsonResponse(w, lnurl.NewInvoiceResponse(invoice.PaymentRequest), http.StatusOK)
	}
}

// handleLegacyPay serves the offer, or the invoice when an amount is given.
func (a *Api) handleLegacyPay() http.HandlerFunc {
	offer := a.handlePayRequest()
	callback := a.availabilityMiddleware(a.handlePayCallback())

	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.URL.Query()["amount"]; ok {
			callback.ServeHTTP(w, r)
			return
		}

		offer(w, r)
	}
}
