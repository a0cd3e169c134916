package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/the-lightning-land/lnurld/lnurl"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
)

var entryPoints = map[string]string{
	"channel":  channelRequestPath,
	"pay":      payRequestPath,
	"withdraw": withdrawPath,
	"auth":     authPath,
}

type lnurlsResponse map[string]string

// handleGetLnurls lists the bech32 LNURL of every entry point.
func (a *Api) handleGetLnurls() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := lnurlsResponse{}

		for kind, path := range entryPoints {
			encoded, err := lnurl.Encode(a.url(path))
			if err != nil {
				a.writeError(w, r, err)
				return
			}

			res[kind] = encoded
		}

		a.jsonResponse(w, res, http.StatusOK)
	}
}

func (a *Api) handleQRCode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, ok := entryPoints[mux.Vars(r)["kind"]]
		if !ok {
			a.jsonError(w, "unknown lnurl kind", http.StatusNotFound)
			return
		}

		size := defaultQRSize
		if raw := r.URL.Query().Get("size"); raw != "" {
			var err error
			size, err = strconv.Atoi(raw)
			if err != nil || size <= 0 || size > maxQRSize {
				a.writeError(w, r, lnurl.MalformedParam("size", "must be between 1 and 1024"))
				return
			}
		}

		png, err := lnurl.QRCode(a.url(path), size)
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(png); err != nil {
			a.log.Errorf("Could not write qr code: %v", err)
		}
	}
}
