package api

import (
	"math"
	"net/http"

	"github.com/the-lightning-land/lnurld/channel"
	"github.com/the-lightning-land/lnurld/lnurl"
)

func (a *Api) handleChannelRequest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offer, err := a.channels.Offer(r.Context())
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		a.jsonResponse(w, offer, http.StatusOK)
	}
}

func (a *Api) handleChannelCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		k1, err := requiredParam(query, "k1")
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		remoteId, err := nodeIdParam(query)
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		remoteUri, err := peerUriParam(query, remoteId)
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		private, err := boolParam(query, "private")
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		amount, err := amountParam(query)
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		if amount > math.MaxInt64 || (a.maxFundingSat > 0 && int64(amount) > a.maxFundingSat) {
			a.writeError(w, r, lnurl.MalformedParam("amount", "exceeds the maximum channel size"))
			return
		}

		result, err := a.channels.Handle(r.Context(), &channel.Request{
			Token:        k1,
			RemoteNodeId: remoteId,
			RemoteUri:    remoteUri,
			AmountSat:    int64(amount),
			Private:      private,
		})
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		a.jsonResponse(w, &lnurl.ChannelResultResponse{
			Status: lnurl.StatusOK,
			Result: result,
		}, http.StatusOK)
	}
}
