package backend

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/blog/core"
	"github.com/relabs-tech/blog/core/logger"
)

var (
	// Version is the version of the current build
	Version = "unset"
)

func (b *Backend) handleVersion(router *mux.Router) {
	logger.Default().Debugln("version")
	logger.Default().Debugln("  handle version route: /version GET")
	router.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		core.WriteJSON(w, http.StatusOK, map[string]string{"version": Version})
	}).Methods(http.MethodOptions, http.MethodGet)
}
