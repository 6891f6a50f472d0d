package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/seqora/exportd/pkg/job"
	"github.com/seqora/exportd/pkg/jobstore"
)

// JobsSummaryResponse reports queue depth per job state.
type JobsSummaryResponse struct {
	Timestamp time.Time      `json:"timestamp"`
	Total     int            `json:"total"`
	States    map[string]int `json:"states"`
}

// JobsSummaryHandler serves a per-state job count from the store.
func JobsSummaryHandler(store *jobstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := store.CountJobsByState(r.Context())
		if err != nil {
			respondWithError(w, r, err)
			return
		}

		resp := JobsSummaryResponse{
			Timestamp: time.Now().UTC(),
			States:    make(map[string]int, len(counts)),
		}
		for state, n := range counts {
			resp.States[string(state)] = n
			resp.Total += n
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// StoreHealthChecker probes the job store with a cheap read.
func StoreHealthChecker(store *jobstore.Store) HealthChecker {
	return HealthCheckerFunc(func(ctx context.Context) error {
		_, err := store.ListJobsByState(ctx, job.StateCreated)
		return err
	})
}
