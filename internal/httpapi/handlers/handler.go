package handlers

import (
	"context"

	"github.com/suPer8Hu/summarizer/internal/jobs"
)

// Pinger is a dependency the health endpoint checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Jobs *jobs.Service

	// checked by /health, keyed by the name reported in the response
	Deps map[string]Pinger
}

func NewHandler(svc *jobs.Service, deps map[string]Pinger) *Handler {
	return &Handler{Jobs: svc, Deps: deps}
}
