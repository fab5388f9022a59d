// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/blog/core"
	"github.com/relabs-tech/blog/core/access"
	"github.com/relabs-tech/blog/core/logger"
)

// ResourceStatistics represents information about a resource
type ResourceStatistics struct {
	Resource     string  `json:"resource"`
	Count        int64   `json:"count"`
	SizeMB       float64 `json:"size_mb"`
	AverageSizeB float64 `json:"average_size_b"`
}

// StatisticsDetails represents information about the backend resources
type StatisticsDetails struct {
	Users ResourceStatistics `json:"users"`
}

func (b *Backend) handleStatistics(router *mux.Router) {
	logger.Default().Debugln("statistics")
	logger.Default().Debugln("  handle statistics route: /api/statistics GET")
	statistics := access.RequireAuthorization(access.RoleAdmin)(http.HandlerFunc(b.statistics))
	router.Handle("/api/statistics", handlers.CompressHandler(statistics)).Methods(http.MethodOptions, http.MethodGet)
}

func (b *Backend) statistics(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	rlog.Infoln("called route for", r.URL, r.Method)

	count, size, err := b.users.Statistics(r.Context())
	if err != nil {
		rlog.WithError(err).Errorln("Error 4028: Scan")
		core.WriteError(w, http.StatusInternalServerError, "")
		return
	}
	var averageSize float64
	if count != 0 {
		averageSize = float64(size / count)
	}
	s := StatisticsDetails{
		Users: ResourceStatistics{
			Resource:     "user",
			Count:        count,
			SizeMB:       float64(size) / 1024. / 1024.,
			AverageSizeB: averageSize,
		},
	}

	jsonData, _ := json.Marshal(s)
	etag := bytesToEtag(jsonData)
	w.Header().Set("Etag", etag)
	if ifNoneMatchFound(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(jsonData)
}

// bytesToEtag returns a strong etag for data
func bytesToEtag(data []byte) string {
	sum := sha256.Sum256(data)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// ifNoneMatchFound returns true if etag is found in ifNoneMatch. The format of ifNoneMatch is one
// of the following:
// If-None-Match: "<etag_value>"
// If-None-Match: "<etag_value>", "<etag_value>", ...
// If-None-Match: *
func ifNoneMatchFound(ifNoneMatch, etag string) bool {
	ifNoneMatch = strings.Trim(ifNoneMatch, " ")
	if len(ifNoneMatch) == 0 {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}
	for _, s := range strings.Split(ifNoneMatch, ",") {
		s = strings.Trim(s, " \"")
		t := strings.Trim(etag, " \"")
		if s == t {
			return true
		}
	}
	return false
}
