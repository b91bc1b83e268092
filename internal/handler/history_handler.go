package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/franciscofreire-cloud/lista-compras/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// 4. Histórico de compras
// ============================================================

func listHistoryHandler(listSvc *service.ListService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/history")
		defer span.End()

		history, err := listSvc.History(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": history})
	}
}

func getHistoryRecordHandler(listSvc *service.ListService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/history/{recordID}")
		defer span.End()

		recordID := chi.URLParam(r, "recordID")
		span.SetAttributes(attribute.String("record.id", recordID))

		rec, err := listSvc.HistoryRecord(ctx, UserIDFromContext(ctx), recordID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func deleteHistoryRecordHandler(listSvc *service.ListService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/history/{recordID}")
		defer span.End()

		recordID := chi.URLParam(r, "recordID")
		if err := listSvc.DeleteRecord(ctx, UserIDFromContext(ctx), recordID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func resumeHandler(listSvc *service.ListService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/history/{recordID}/resume")
		defer span.End()

		recordID := chi.URLParam(r, "recordID")
		span.SetAttributes(attribute.String("record.id", recordID))

		// Body is optional; absence means not confirmed.
		var req struct {
			Confirm bool `json:"confirm"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		view, err := listSvc.Resume(ctx, UserIDFromContext(ctx), recordID, req.Confirm)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}
