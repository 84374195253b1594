package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maltedev/listing-builder/internal/database"
	"github.com/maltedev/listing-builder/internal/listing"
	"github.com/maltedev/listing-builder/internal/pipeline"
	"github.com/maltedev/listing-builder/internal/render"
	"github.com/maltedev/listing-builder/internal/site"
	"github.com/maltedev/listing-builder/internal/storage"
)

// maxDocumentBytes bounds POST /render bodies.
const maxDocumentBytes = 4 << 20

// OutboxStats reports relay backlog for the health check.
type OutboxStats interface {
	PendingCount(ctx context.Context) (int64, error)
	DeadLetterCount(ctx context.Context) (int64, error)
}

// ListingHistory reads listings persisted by earlier batch runs.
type ListingHistory interface {
	Get(ctx context.Context, id uuid.UUID) (*database.Listing, error)
	ListByRun(ctx context.Context, runID uuid.UUID) ([]*database.Listing, error)
}

type Handlers struct {
	store   *storage.ArtifactStore
	outbox  OutboxStats
	history ListingHistory
	logger  *slog.Logger
}

// NewHandlers serves listings from store. outbox and history may be nil when
// persistence is disabled.
func NewHandlers(store *storage.ArtifactStore, outbox OutboxStats, history ListingHistory, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:   store,
		outbox:  outbox,
		history: history,
		logger:  logger.With("component", "api"),
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	var sites []site.ID
	for _, s := range site.Sites() {
		sites = append(sites, s.ID)
	}
	health := map[string]interface{}{
		"status":     "ok",
		"output_dir": h.store.Dir(),
		"sites":      sites,
	}
	status := http.StatusOK

	if h.outbox != nil {
		pending, pErr := h.outbox.PendingCount(r.Context())
		dead, dErr := h.outbox.DeadLetterCount(r.Context())
		if err := errors.Join(pErr, dErr); err != nil {
			h.logger.Warn("failed to read outbox stats", "error", err)
			health["status"] = "degraded"
		}
		health["outbox"] = map[string]interface{}{
			"pending":     pending,
			"dead_letter": dead,
		}
		if pending > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if dead > 100 {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

// ListListings returns every stored document.
func (h *Handlers) ListListings(w http.ResponseWriter, r *http.Request) {
	artifacts, err := h.store.List()
	if err != nil {
		h.logger.Error("failed to list artifacts", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}
	if artifacts == nil {
		artifacts = []storage.Artifact{}
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"listings": artifacts,
		"count":    len(artifacts),
	})
}

func (h *Handlers) GetListing(w http.ResponseWriter, r *http.Request) {
	doc, _, ok := h.loadDocument(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, doc)
}

// GetListingHTML renders the stored document on the fly.
func (h *Handlers) GetListingHTML(w http.ResponseWriter, r *http.Request) {
	doc, _, ok := h.loadDocument(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	h.writeHTML(w, doc)
}

// RenderListing regenerates the HTML file next to a stored document.
func (h *Handlers) RenderListing(w http.ResponseWriter, r *http.Request) {
	_, artifact, ok := h.loadDocument(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	out, err := pipeline.RenderFile(h.store, artifact.Path)
	if err != nil {
		h.logger.Error("failed to render listing", "id", artifact.ID, "error", err)
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"id": artifact.ID, "html_path": out})
}

// RenderDocument renders a document posted in the request body.
func (h *Handlers) RenderDocument(w http.ResponseWriter, r *http.Request) {
	var doc listing.Document
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDocumentBytes)).Decode(&doc); err != nil || doc == nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.writeHTML(w, doc)
}

// ListRun returns the listings a batch run persisted, in input order.
func (h *Handlers) ListRun(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.respondError(w, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}

	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	listings, err := h.history.ListByRun(r.Context(), runID)
	if err != nil {
		h.logger.Error("failed to list run", "run_id", runID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list run")
		return
	}
	if listings == nil {
		listings = []*database.Listing{}
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":   runID,
		"listings": listings,
		"count":    len(listings),
	})
}

func (h *Handlers) GetRunListing(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.respondError(w, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}

	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid listing id")
		return
	}

	l, err := h.history.Get(r.Context(), id)
	if errors.Is(err, database.ErrListingNotFound) || (err == nil && l.RunID != runID) {
		h.respondError(w, http.StatusNotFound, "listing not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get listing", "id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get listing")
		return
	}

	h.respondJSON(w, http.StatusOK, l)
}

func (h *Handlers) loadDocument(w http.ResponseWriter, id string) (listing.Document, storage.Artifact, bool) {
	artifact, err := h.store.Get(id)
	if errors.Is(err, storage.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "listing not found")
		return nil, storage.Artifact{}, false
	}
	if err != nil {
		h.logger.Error("failed to resolve listing", "id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load listing")
		return nil, storage.Artifact{}, false
	}

	doc, err := storage.ReadDocument(artifact.Path)
	if err != nil {
		h.logger.Error("failed to read listing", "id", id, "error", err)
		h.respondError(w, http.StatusUnprocessableEntity, "listing document is unreadable")
		return nil, storage.Artifact{}, false
	}
	return doc, artifact, true
}

func (h *Handlers) writeHTML(w http.ResponseWriter, doc listing.Document) {
	page, err := render.Render(doc)
	if errors.Is(err, render.ErrInvalidDocument) {
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to render document", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to render listing")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(page)); err != nil {
		h.logger.Debug("failed to write response", "error", err)
	}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
