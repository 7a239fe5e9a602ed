// Package server exposes the harmonization engine to operator facing
// callers: the on demand suggested cluster pipeline and the mapping set
// lifecycle. Authentication and presentation live outside this service.
package server

import (
	"net/http"

	"github.com/matst80/slask-harmonizer/pkg/apply"
	"github.com/matst80/slask-harmonizer/pkg/common"
	"github.com/matst80/slask-harmonizer/pkg/listing"
	"github.com/matst80/slask-harmonizer/pkg/mapping"
)

type WebServer struct {
	Listings listing.Store
	Mappings *mapping.Store
	Runner   *apply.Runner
	Cache    *Cache

	// Pipeline defaults, overridable per request.
	SampleSize  int
	MaxExamples int
	Threshold   float64
}

func NewWebServer(listings listing.Store, mappings *mapping.Store, runner *apply.Runner) *WebServer {
	return &WebServer{
		Listings:    listings,
		Mappings:    mappings,
		Runner:      runner,
		SampleSize:  1000,
		MaxExamples: 5,
		Threshold:   0.75,
	}
}

func (ws *WebServer) Handle() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/suggested-clusters", ws.SuggestedClusters)
	mux.Handle("GET /api/mapping-sets", common.JsonHandler(ws.ListMappingSets))
	mux.HandleFunc("POST /api/mapping-sets", ws.CreateMappingSet)
	mux.HandleFunc("GET /api/mapping-sets/{id}", ws.GetMappingSet)
	mux.HandleFunc("PATCH /api/mapping-sets/{id}", ws.UpdateMappingSet)
	mux.HandleFunc("DELETE /api/mapping-sets/{id}", ws.DeleteMappingSet)
	mux.HandleFunc("POST /api/mapping-sets/{id}/activate", ws.ActivateMappingSet)
	mux.HandleFunc("POST /api/mapping-sets/{id}/deactivate", ws.DeactivateMappingSet)
	mux.HandleFunc("POST /api/mapping-sets/{id}/apply", ws.ApplyMappingSet)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}
