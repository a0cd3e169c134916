package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/lnurld/challenge"
	"github.com/the-lightning-land/lnurld/channel"
	"github.com/the-lightning-land/lnurld/lnurl"
	"github.com/the-lightning-land/lnurld/node"
	"github.com/the-lightning-land/lnurld/payrequest"
)

func (a *Api) jsonResponse(w http.ResponseWriter, v interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		a.log.Errorf("Could not respond with JSON: %v", err)
	}
}

func (a *Api) jsonError(w http.ResponseWriter, reason string, code int) {
	a.jsonResponse(w, lnurl.NewErrorResponse(reason), code)
}

// errorStatus maps an error to the HTTP status it is rendered with.
func errorStatus(err error) int {
	var protocolErr lnurl.ProtocolError
	var fundingErr channel.FundingError

	switch {
	case errors.As(err, &protocolErr):
		return http.StatusBadRequest
	case errors.Is(err, channel.ErrInvalidOrExpiredChallenge),
		errors.Is(err, challenge.ErrNotFound),
		errors.Is(err, challenge.ErrExpired),
		errors.Is(err, challenge.ErrAlreadyConsumed),
		errors.Is(err, payrequest.ErrAmountOutOfBounds):
		return http.StatusBadRequest
	case errors.Is(err, payrequest.ErrNodeUnavailable), node.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.As(err, &fundingErr), errors.Is(err, payrequest.ErrInvoiceCreationFailed):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (a *Api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errorStatus(err)

	if code >= http.StatusInternalServerError {
		a.log.Errorf("%v %v failed: %v", r.Method, r.URL.Path, err)
	} else {
		a.log.Debugf("%v %v rejected: %v", r.Method, r.URL.Path, err)
	}

	a.jsonError(w, err.Error(), code)
}

func (a *Api) statusHandler(reason string, code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.jsonError(w, reason, code)
	})
}
