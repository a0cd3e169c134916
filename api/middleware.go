package api

import (
	"net/http"

	"github.com/the-lightning-land/lnurld/connectivity"
)

func (a *Api) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.log.Infof("%v %v", r.Method, r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

// Wallets call LNURL endpoints from web apps on other origins.
func (a *Api) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func (a *Api) availabilityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.reporter != nil && a.reporter.CurrentState() != connectivity.Online {
			a.log.Errorf("Request to %v failed due to unavailable node", r.URL.Path)
			a.jsonError(w, "No node is available at the moment", http.StatusServiceUnavailable)
			return
		}

		next.ServeHTTP(w, r)
	})
}
