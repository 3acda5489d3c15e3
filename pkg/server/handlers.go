package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/Sternrassler/readabook/pkg/catalog"
	"github.com/Sternrassler/readabook/pkg/fetch"
	"github.com/Sternrassler/readabook/pkg/library"
)

// StatusClientClosedRequest is written when the client went away before the
// response was ready.
const StatusClientClosedRequest = 499

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := catalog.Query{
		Search:   params.Get("search"),
		Topic:    params.Get("topic"),
		Sort:     params.Get("sort"),
		MimeType: catalog.DefaultMimeType,
	}
	if p := params.Get("page"); p != "" {
		page, err := strconv.Atoi(p)
		if err != nil || page < 1 {
			writeJSONError(w, http.StatusBadRequest, "Invalid page")
			return
		}
		q.Page = page
	}

	listing, err := s.lib.GetListing(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleRecentBooks(w http.ResponseWriter, r *http.Request) {
	ids, err := catalog.ParseIDs(r.URL.Query().Get("ids"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid book ID")
		return
	}

	docs, err := s.lib.GetRecent(r.Context(), ids)
	if err != nil {
		s.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	doc, err := s.lib.GetDocument(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, id)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetText(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	text, err := s.lib.GetRawText(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, id)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", TextCacheControl)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(text)); err != nil {
		hlog.FromRequest(r).Debug().Err(err).Int("document_id", id).Msg("Error writing text response")
	}
}

func (s *Server) handleGetChapters(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	res, err := s.lib.GetDocumentText(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, id)
		return
	}

	w.Header().Set("Cache-Control", TextCacheControl)
	writeJSON(w, http.StatusOK, res)
}

// parseID validates the {id} path parameter before any upstream call.
func parseID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := catalog.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid book ID")
		return 0, false
	}
	return id, true
}

// ErrorStatus maps a facade error to an HTTP status and client message.
func ErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, fetch.ErrCancelled):
		return StatusClientClosedRequest, ""
	case errors.Is(err, library.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid book ID"
	case errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound, "Book not found"
	case errors.Is(err, library.ErrNoReadableFormat):
		return http.StatusNotFound, "No text format available for this book"
	case errors.Is(err, library.ErrNoContent):
		return http.StatusNotFound, "No readable content"
	case errors.Is(err, fetch.ErrTimeout):
		return http.StatusGatewayTimeout, "Request timed out, please try again"
	case errors.Is(err, library.ErrTextFetch):
		return http.StatusBadGateway, "Failed to fetch book text"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, id int) {
	status, msg := ErrorStatus(err)
	logger := hlog.FromRequest(r)

	switch {
	case status == StatusClientClosedRequest:
		logger.Debug().Err(err).Int("document_id", id).Msg("Client went away")
		w.WriteHeader(status)
		return
	case status >= http.StatusInternalServerError:
		logger.Error().
			Err(err).
			Int("document_id", id).
			Str("error_class", string(fetch.Classify(err))).
			Int("status", status).
			Msg("Request failed")
	default:
		logger.Debug().Err(err).Int("document_id", id).Int("status", status).Msg("Request rejected")
	}

	writeJSONError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
