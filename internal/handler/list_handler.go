package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/franciscofreire-cloud/lista-compras/internal/domain"
	"github.com/franciscofreire-cloud/lista-compras/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// 3. Lista atual
// ============================================================

func getListHandler(listSvc *service.ListService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/list")
		defer span.End()

		userID := UserIDFromContext(ctx)
		span.SetAttributes(attribute.String("user.id", userID))

		view, err := listSvc.Get(ctx, userID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func addItemHandler(listSvc *service.ListService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/list/items")
		defer span.End()

		var in domain.ItemInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		view, err := listSvc.AddItem(ctx, UserIDFromContext(ctx), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	}
}

func updateItemHandler(listSvc *service.ListService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/list/items/{itemID}")
		defer span.End()

		itemID := chi.URLParam(r, "itemID")
		if itemID == "" {
			writeError(w, http.StatusBadRequest, "itemID is required")
			return
		}

		var in domain.ItemInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		view, err := listSvc.UpdateItem(ctx, UserIDFromContext(ctx), itemID, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func removeItemHandler(listSvc *service.ListService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/list/items/{itemID}")
		defer span.End()

		itemID := chi.URLParam(r, "itemID")
		view, err := listSvc.RemoveItem(ctx, UserIDFromContext(ctx), itemID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func setBalanceHandler(listSvc *service.ListService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/list/balance")
		defer span.End()

		var req struct {
			Balance float64 `json:"balance"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		view, err := listSvc.SetBalance(ctx, UserIDFromContext(ctx), req.Balance)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// archiveRequest names the record being written to the history. The
// name is optional; a blank one falls back to "Compra <date>".
type archiveRequest struct {
	ListName string `json:"listName"`
}

func decodeArchiveRequest(r *http.Request) (archiveRequest, error) {
	var req archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return req, err
	}
	return req, nil
}

func finalizeHandler(listSvc *service.ListService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/list/finalize")
		defer span.End()

		req, err := decodeArchiveRequest(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		view, err := listSvc.Finalize(ctx, UserIDFromContext(ctx), req.ListName)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func saveDraftHandler(listSvc *service.ListService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/list/draft")
		defer span.End()

		req, err := decodeArchiveRequest(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		view, err := listSvc.SaveDraft(ctx, UserIDFromContext(ctx), req.ListName)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}
