package cli

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/radlabel/radlabel/pkg/data"
	"github.com/radlabel/radlabel/pkg/label"
)

const (
	queryParamMax    = 500
	runListLimit     = 20
	defaultEvalBins  = 10
	defaultThreshold = 0.5
)

type SeriesData[T any] struct {
	Labels []string `json:"labels" yaml:"labels"`
	Data   []T      `json:"data" yaml:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func optional(val string) *string {
	if val == "" || val == "undefined" {
		return nil
	}
	return &val
}

func queryParamInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}

	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Error("error converting query string to int", "value", v, "error", err)
		return def
	}

	if i < 1 || i > queryParamMax {
		return def
	}

	return i
}

func splitsAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := data.GetSplitCounts(db)
		if err != nil {
			slog.Error("failed to get split counts", "error", err)
			writeError(w, http.StatusInternalServerError, "error querying split counts")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func runsAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		split := optional(r.URL.Query().Get("s"))
		limit := queryParamInt(r, "l", runListLimit)

		res, err := data.GetRuns(db, split, limit)
		if err != nil {
			slog.Error("failed to get runs", "error", err)
			writeError(w, http.StatusInternalServerError, "error querying runs")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// runTrendAPIHandler charts vote coverage per run, oldest first.
func runTrendAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		split := optional(r.URL.Query().Get("s"))
		limit := queryParamInt(r, "l", runListLimit)

		runs, err := data.GetRuns(db, split, limit)
		if err != nil {
			slog.Error("failed to get runs", "error", err)
			writeError(w, http.StatusInternalServerError, "error querying runs")
			return
		}

		d := &SeriesData[float64]{
			Labels: make([]string, 0, len(runs)),
			Data:   make([]float64, 0, len(runs)),
		}

		// runs come back newest first
		for i := len(runs) - 1; i >= 0; i-- {
			run := runs[i]
			coverage := 0.0
			if run.Docs > 0 && len(run.LFNames) > 0 {
				coverage = float64(run.Votes) / (float64(run.Docs) * float64(len(run.LFNames)))
			}
			d.Labels = append(d.Labels, run.StartedAt)
			d.Data = append(d.Data, coverage)
		}

		writeJSON(w, http.StatusOK, d)
	}
}

func lfSummaryAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		split := r.URL.Query().Get("s")
		if split == "" {
			split = data.SplitDev
		}

		runID, err := resolveRunID(db, r.URL.Query().Get("r"), split)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		res, err := data.GetLFSummary(db, runID)
		if err != nil {
			slog.Error("failed to get lf summary", "run", runID, "error", err)
			writeError(w, http.StatusInternalServerError, "error querying lf summary")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func probBucketsAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Query().Get("m")
		if method == "" {
			method = label.MethodMajority
		}
		split := optional(r.URL.Query().Get("s"))

		res, err := data.GetProbBuckets(db, method, split)
		if err != nil {
			slog.Error("failed to get prob buckets", "method", method, "error", err)
			writeError(w, http.StatusInternalServerError, "error querying label buckets")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func modelsAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := data.GetModels(db)
		if err != nil {
			slog.Error("failed to get models", "error", err)
			writeError(w, http.StatusInternalServerError, "error querying models")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func evalAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		model := r.URL.Query().Get("model")
		method := r.URL.Query().Get("m")
		if method == "" {
			method = label.MethodMajority
		}
		split := r.URL.Query().Get("s")
		if split == "" {
			split = data.SplitTest
		}
		bins := queryParamInt(r, "b", defaultEvalBins)

		res, err := evaluate(db, model, method, split, defaultThreshold, bins)
		if err != nil {
			slog.Debug("evaluation unavailable", "model", model, "method", method, "split", split, "error", err)
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func reportAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "id parameter required")
			return
		}

		res, err := data.GetReport(db, id)
		if err != nil {
			slog.Error("failed to get report", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "error querying report")
			return
		}
		if res == nil {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
