package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/schema"
	"github.com/matst80/slask-harmonizer/pkg/apply"
	"github.com/matst80/slask-harmonizer/pkg/cluster"
	"github.com/matst80/slask-harmonizer/pkg/mapping"
	"github.com/matst80/slask-harmonizer/pkg/profile"
	"github.com/matst80/slask-harmonizer/pkg/types"
)

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// ClusterRequest carries the optional pipeline overrides of a suggested
// clusters request.
type ClusterRequest struct {
	Threshold float64 `schema:"threshold"`
	Sample    int     `schema:"sample"`
	Examples  int     `schema:"examples"`
}

// SuggestedClusters runs the profile, score and cluster pipeline on demand
// over a fresh sample. Results are cached briefly but never persisted;
// promotion into a mapping set is a separate operator action.
func (ws *WebServer) SuggestedClusters(w http.ResponseWriter, r *http.Request) {
	request := ClusterRequest{
		Threshold: ws.Threshold,
		Sample:    ws.SampleSize,
		Examples:  ws.MaxExamples,
	}
	if err := queryDecoder.Decode(&request, r.URL.Query()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if request.Threshold <= 0 || request.Threshold > 1 {
		http.Error(w, "threshold must be in (0,1]", http.StatusBadRequest)
		return
	}

	cacheKey := fmt.Sprintf("clusters:%f:%d:%d", request.Threshold, request.Sample, request.Examples)
	clusters := []types.FieldCluster{}
	if ws.Cache != nil {
		if err := ws.Cache.Get(cacheKey, &clusters); err == nil {
			writeJson(w, http.StatusOK, clusters)
			return
		}
	}

	sample, err := ws.Listings.Sample(request.Sample)
	if err != nil {
		writeError(w, err)
		return
	}
	profiles, err := profile.Profile(sample, request.Examples)
	if err != nil {
		writeError(w, err)
		return
	}
	clusters = cluster.Cluster(profiles, request.Threshold)

	if ws.Cache != nil {
		if err := ws.Cache.Set(cacheKey, clusters, time.Minute); err != nil {
			log.Printf("Failed to cache clusters: %v", err)
		}
	}
	writeJson(w, http.StatusOK, clusters)
}

type createMappingSetRequest struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Mappings    []types.FieldMapping `json:"mappings"`
}

func (ws *WebServer) CreateMappingSet(w http.ResponseWriter, r *http.Request) {
	request := createMappingSetRequest{}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "invalid mapping set", http.StatusBadRequest)
		return
	}
	set, err := ws.Mappings.Create(request.Name, request.Description, request.Mappings)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusCreated, set)
}

func (ws *WebServer) ListMappingSets(w http.ResponseWriter, r *http.Request, enc *json.Encoder) error {
	return enc.Encode(ws.Mappings.List())
}

func (ws *WebServer) GetMappingSet(w http.ResponseWriter, r *http.Request) {
	set, ok := ws.Mappings.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "mapping set not found", http.StatusNotFound)
		return
	}
	writeJson(w, http.StatusOK, set)
}

func (ws *WebServer) UpdateMappingSet(w http.ResponseWriter, r *http.Request) {
	patch := mapping.UpdatePatch{}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid mapping set patch", http.StatusBadRequest)
		return
	}
	set, err := ws.Mappings.Update(r.PathValue("id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, set)
}

func (ws *WebServer) DeleteMappingSet(w http.ResponseWriter, r *http.Request) {
	if err := ws.Mappings.Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ws *WebServer) ActivateMappingSet(w http.ResponseWriter, r *http.Request) {
	set, err := ws.Mappings.Activate(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, set)
}

func (ws *WebServer) DeactivateMappingSet(w http.ResponseWriter, r *http.Request) {
	set, err := ws.Mappings.Deactivate(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, set)
}

// ApplyMappingSet queues an apply run for the active mapping set and
// returns the job id correlating its progress event stream.
func (ws *WebServer) ApplyMappingSet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	set, ok := ws.Mappings.Get(id)
	if !ok {
		http.Error(w, "mapping set not found", http.StatusNotFound)
		return
	}
	if !set.IsActive {
		writeError(w, types.ErrMappingNoLongerActive)
		return
	}
	jobId, err := ws.Runner.Enqueue(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusAccepted, map[string]string{"job_id": jobId})
}

func writeJson(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrDuplicateName),
		errors.Is(err, types.ErrActiveMappingDelete),
		errors.Is(err, types.ErrMappingNoLongerActive),
		errors.Is(err, types.ErrApplyInProgress),
		errors.Is(err, apply.ErrQueueFull):
		status = http.StatusConflict
	case errors.Is(err, types.ErrDuplicateTarget),
		errors.Is(err, types.ErrDuplicateOriginal),
		errors.Is(err, types.ErrNameRequired),
		errors.Is(err, types.ErrEmptySample):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}
