package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"muehle-agent/internal/agent"
	"muehle-agent/internal/domain"
	"muehle-agent/internal/game"
)

const maxAnalyzeBody = 4 << 10

// AnalyzeRequest is the body of POST /api/analyze. Query uses the analyze
// line protocol; Step is the number of half-moves already played.
type AnalyzeRequest struct {
	Query      string `json:"query"`
	Step       int    `json:"step"`
	Difficulty string `json:"difficulty,omitempty"` // default "hard"
}

// AnalyzeResponse is the search result.
type AnalyzeResponse struct {
	Action    game.Action `json:"action"`
	Notation  string      `json:"notation"`
	Score     int64       `json:"score"`
	Depth     int         `json:"depth"`
	Nodes     int64       `json:"nodes"`
	ElapsedMS int64       `json:"elapsed_ms"`
}

// StatusResponse is the JSON body returned by GET /api/status.
type StatusResponse struct {
	Service       string        `json:"service"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	Sessions      SessionStatus `json:"sessions"`
	White         string        `json:"white"`
	Black         string        `json:"black"`
}

// SessionStatus holds session counts.
type SessionStatus struct {
	Active int   `json:"active"`
	Total  int64 `json:"total"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAnalyzeBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, domain.NewSubSystemError("gateway", "analyze", domain.ErrRPCInvalidPayload, err.Error()))
		return
	}
	if req.Difficulty == "" {
		req.Difficulty = agent.Hard.String()
	}
	d, err := agent.ParseDifficulty(req.Difficulty)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	q, err := agent.ParseQuery(req.Query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.logger.Debug("analyze request", "difficulty", d.String(), "roles", domain.RolesFromContext(r.Context()))
	g, err := q.Game(req.Step)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.deps.Agent.Analyze(r.Context(), "", g, d)
	if err != nil {
		writeError(w, analyzeStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, AnalyzeResponse{
		Action:    res.Action,
		Notation:  res.Action.String(),
		Score:     res.Score,
		Depth:     res.Depth,
		Nodes:     res.Nodes,
		ElapsedMS: res.Elapsed.Milliseconds(),
	})
}

func analyzeStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrGameOver):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoMoves):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Service:       "muehle-agent",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Sessions: SessionStatus{
			Active: s.Sessions(),
			Total:  s.total.Load(),
		},
		White: s.deps.White.String(),
		Black: s.deps.Black.String(),
	})
}
