package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"friendly_eats/internal/app"
	"friendly_eats/internal/domain"
)

type Handlers struct {
	Q       *app.QueryService
	Ratings *app.RatingService
	Images  *app.ImageService
	Live    *app.LiveService

	JWTSecret      []byte
	ReviewRPS      float64
	MaxUploadBytes int64
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Route("/v1/entities", func(r chi.Router) {
		r.Get("/", h.listEntities)
		r.Get("/stream", h.streamEntities)
		r.Get("/{id}", h.getEntity)
		r.Get("/{id}/stream", h.streamEntity)
		r.Get("/{id}/reviews", h.listReviews)
		r.Get("/{id}/reviews/stream", h.streamReviews)

		r.Group(func(r chi.Router) {
			r.Use(Auth(h.JWTSecret))
			r.Use(RateLimit(h.ReviewRPS, 3))
			r.Post("/{id}/reviews", h.addReview)
			r.Post("/{id}/image", h.updateImage)
		})
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain errors onto problem responses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrMissingIdentifier),
		errors.Is(err, domain.ErrInvalidReview),
		errors.Is(err, domain.ErrInvalidImage),
		errors.Is(err, domain.ErrInvalidFilter):
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "entity not found")
	case errors.Is(err, domain.ErrBackendUnavailable):
		writeProblem(w, http.StatusServiceUnavailable, "Service Unavailable", "backend unavailable")
	default:
		log.Error().Err(err).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("route", routeOf(r)).Msg("failed to write body")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write body")
	}
}

func filtersFrom(r *http.Request) domain.Filters {
	q := r.URL.Query()
	return domain.Filters{
		Category: q.Get("category"),
		City:     q.Get("city"),
		Price:    q.Get("price"),
		Sort:     q.Get("sort"),
	}
}

func (h *Handlers) listEntities(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.ListEntities(r.Context(), filtersFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeCached(w, r, out)
}

func (h *Handlers) getEntity(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.GetEntity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeCached(w, r, out)
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.ListReviews(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeCached(w, r, out)
}

func (h *Handlers) addReview(w http.ResponseWriter, r *http.Request) {
	var in domain.ReviewInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := dec.Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "body must be a JSON review")
		return
	}
	in.UserID = UserID(r.Context())

	out, err := h.Ratings.AddReview(r.Context(), chi.URLParam(r, "id"), &in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handlers) updateImage(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "expected a multipart upload within the size limit")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, hdr, err := r.FormFile("image")
	if err != nil {
		writeError(w, domain.ErrInvalidImage)
		return
	}
	defer file.Close()

	url, err := h.Images.UpdateImage(r.Context(), chi.URLParam(r, "id"), &domain.Image{
		Name:        hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"photo": url})
}
