package api

import (
	"net/http"
	"strconv"

	"github.com/the-lightning-land/lnurld/lnurl"
)

const defaultInvoiceLimit = 50

func (a *Api) handleGetInvoices() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.invoices == nil {
			a.jsonError(w, "invoice ledger is not enabled", http.StatusNotFound)
			return
		}

		limit := defaultInvoiceLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			var err error
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 0 {
				a.writeError(w, r, lnurl.MalformedParam("limit", "must be a non-negative integer"))
				return
			}
		}

		invoices, err := a.invoices.ListInvoices(limit)
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		a.jsonResponse(w, invoices, http.StatusOK)
	}
}
