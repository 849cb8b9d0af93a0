package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pimworks/golden-cli/internal/consensus"
	"github.com/pimworks/golden-cli/internal/model"
	"github.com/pimworks/golden-cli/internal/quality"
	"github.com/pimworks/golden-cli/internal/triage"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose triage, consensus, and quality over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		}))

		r.Get("/health", handleHealth)
		r.Post("/triage/classify", handleClassify)
		r.Post("/consensus/vote", handleVote)
		r.Post("/quality/evaluate", handleEvaluate)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleClassify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Matches []model.SimilarityMatch `json:"matches"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	type classified struct {
		MatchID    string                 `json:"matchId"`
		Decision   string                 `json:"decision,omitempty"`
		Source     string                 `json:"source"`
		Extraction model.ExtractionStatus `json:"extractionStatus"`
	}
	out := make([]classified, 0, len(req.Matches))
	for i := range req.Matches {
		m := &req.Matches[i]
		d := triage.Classify(m)
		out = append(out, classified{
			MatchID:    m.ID,
			Decision:   string(d.Tier),
			Source:     d.Source.String(),
			Extraction: triage.ExtractionStatus(m),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"decisions": out,
		"stats":     triage.ComputeStats(req.Matches),
	})
}

func handleVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VotesByAttribute  map[string][]model.ConsensusVote `json:"votesByAttribute"`
		MinVotes          int                              `json:"minVotes"`
		ConflictThreshold float64                          `json:"conflictThreshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	opts := consensus.Options{
		MinVotes:          req.MinVotes,
		ConflictThreshold: req.ConflictThreshold,
	}
	if opts.MinVotes == 0 {
		opts.MinVotes = cfg.Consensus.MinVotes
	}
	if opts.ConflictThreshold == 0 {
		opts.ConflictThreshold = cfg.Consensus.ConflictThreshold
	}

	results := make(map[string]consensus.VoteResult, len(req.VotesByAttribute))
	for attribute, votes := range req.VotesByAttribute {
		results[attribute] = consensus.Vote(attribute, votes, opts)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentLevel model.QualityLevel               `json:"currentLevel"`
		Specs        map[string]any                   `json:"specs"`
		Votes        map[string][]model.ConsensusVote `json:"votesByAttribute"`
		SourceCount  int                              `json:"sourceCount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	thresholds := qualityThresholds(cfg.Quality)
	weights := qualityWeights(cfg.Quality.Weights)

	breakdown := quality.ComputeBreakdown(req.Specs, req.Votes, thresholds.Golden.RequiredFields)
	score := quality.Score(breakdown, weights)

	level := req.CurrentLevel
	if level == "" {
		level = model.QualityBronze
	}
	eval := quality.Evaluate(quality.Context{
		CurrentLevel: level,
		Score:        &score,
		SourceCount:  req.SourceCount,
		Specs:        req.Specs,
	}, thresholds)

	writeJSON(w, http.StatusOK, map[string]any{
		"score":      score,
		"breakdown":  quality.ToPercents(&breakdown),
		"evaluation": eval,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
