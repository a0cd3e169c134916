package api

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/the-lightning-land/lnurld/lnurl"
)

// handleWellKnown serves the stored lightning address document of a user
// byte for byte.
func (a *Api) handleWellKnown() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := mux.Vars(r)["username"]

		if a.wellKnownDir == "" || !lnurl.ValidUsername(username) {
			a.jsonError(w, "unknown user", http.StatusNotFound)
			return
		}

		doc, err := os.ReadFile(filepath.Join(a.wellKnownDir, username))
		if os.IsNotExist(err) {
			a.jsonError(w, "unknown user", http.StatusNotFound)
			return
		}
		if err != nil {
			a.log.Errorf("Could not read lightning address document of %v: %v", username, err)
			a.jsonError(w, "could not read document", http.StatusInternalServerError)
			return
		}

		if !json.Valid(doc) {
			a.log.Errorf("Lightning address document of %v is not valid json", username)
			a.jsonError(w, "could not read document", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(doc); err != nil {
			a.log.Errorf("Could not write document: %v", err)
		}
	}
}
