package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	server "friendly_eats/internal/adapters/http_server"
	redisad "friendly_eats/internal/adapters/redis"
	"friendly_eats/internal/app"
	"friendly_eats/internal/domain"
	"friendly_eats/internal/storage/memory"
)

var secret = []byte("test-secret")

type fakeStorage struct{ paths []string }

func (f *fakeStorage) Upload(ctx context.Context, p string, body io.Reader) (string, error) {
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	f.paths = append(f.paths, p)
	return "https://img.example/" + p, nil
}

type env struct {
	h     http.Handler
	store *memory.Store
}

func setup(t *testing.T, storage domain.ObjectStorage, rps float64) env {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redisad.NewClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = rc.Close() })
	cache, broker := redisad.NewCache(rc), redisad.NewBroker(rc)

	store := memory.New()
	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		for _, e := range []domain.Entity{
			{ID: "R1", Name: "Bella Cucina", Category: "Italian", City: "Austin", Price: 2},
			{ID: "R2", Name: "Taco Norte", Category: "Mexican", City: "Austin", Price: 1},
		} {
			if _, err := tx.CreateEntity(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	q := app.NewQueryService(store, cache, time.Minute)
	h := &server.Handlers{
		Q:              q,
		Ratings:        app.NewRatingService(store, cache, broker),
		Images:         app.NewImageService(store, storage, cache, broker),
		Live:           app.NewLiveService(q, broker),
		JWTSecret:      secret,
		ReviewRPS:      rps,
		MaxUploadBytes: 1 << 20,
	}
	srv := server.New()
	srv.MountHandlers(h)
	return env{h: srv.Mux(), store: store}
}

func token(t *testing.T, sub string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + s
}

func do(h http.Handler, method, target string, body io.Reader, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListEntities_FiltersAndETag(t *testing.T) {
	e := setup(t, nil, 0)

	rec := do(e.h, http.MethodGet, "/v1/entities?category=Italian", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var out []domain.EntityView
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].ID != "R1" {
		t.Fatalf("unexpected listing %+v", out)
	}

	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	rec = do(e.h, http.MethodGet, "/v1/entities?category=Italian", nil, map[string]string{"If-None-Match": etag})
	if rec.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", rec.Code)
	}

	if rec := do(e.h, http.MethodGet, "/v1/entities?price=$$$$$", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad price, got %d", rec.Code)
	}
}

func TestGetEntity_NotFound(t *testing.T) {
	e := setup(t, nil, 0)
	if rec := do(e.h, http.MethodGet, "/v1/entities/nope", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := do(e.h, http.MethodGet, "/healthz", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}

func TestAddReview_AuthValidationAndAggregate(t *testing.T) {
	e := setup(t, nil, 0)
	body := func(s string) io.Reader { return strings.NewReader(s) }

	if rec := do(e.h, http.MethodPost, "/v1/entities/R1/reviews", body(`{"rating":5}`), nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	auth := map[string]string{"Authorization": token(t, "U1"), "Content-Type": "application/json"}
	if rec := do(e.h, http.MethodPost, "/v1/entities/R1/reviews", body(`{"rating":9}`), auth); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for rating 9, got %d", rec.Code)
	}
	if rec := do(e.h, http.MethodPost, "/v1/entities/nope/reviews", body(`{"rating":3}`), auth); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown entity, got %d", rec.Code)
	}

	rec := do(e.h, http.MethodPost, "/v1/entities/R1/reviews", body(`{"rating":4,"text":"solid"}`), auth)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var rv domain.ReviewView
	_ = json.Unmarshal(rec.Body.Bytes(), &rv)
	if rv.UserID != "U1" || rv.Rating != 4 || rv.Timestamp.IsZero() {
		t.Fatalf("unexpected review %+v", rv)
	}

	rec = do(e.h, http.MethodGet, "/v1/entities/R1", nil, nil)
	var ev domain.EntityView
	_ = json.Unmarshal(rec.Body.Bytes(), &ev)
	if ev.NumRatings != 1 || ev.AvgRating != 4 {
		t.Fatalf("aggregate not visible after write: %+v", ev)
	}
}

func TestAddReview_RateLimited(t *testing.T) {
	e := setup(t, nil, 0.001)
	auth := map[string]string{"Authorization": token(t, "U1")}

	var last int
	for range 4 {
		last = do(e.h, http.MethodPost, "/v1/entities/R1/reviews", strings.NewReader(`{"rating":3}`), auth).Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", last)
	}
}

func multipartImage(t *testing.T, field, name string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("form: %v", err)
	}
	_, _ = fw.Write([]byte("\x89PNG fake"))
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUpdateImage(t *testing.T) {
	st := &fakeStorage{}
	e := setup(t, st, 0)

	body, ct := multipartImage(t, "image", "front.png")
	rec := do(e.h, http.MethodPost, "/v1/entities/R1/image", body, map[string]string{"Authorization": token(t, "U1"), "Content-Type": ct})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if len(st.paths) != 1 || st.paths[0] != "images/R1/front.png" {
		t.Fatalf("unexpected uploads %v", st.paths)
	}
	ent, _ := e.store.GetEntity(context.Background(), "R1")
	if ent.Photo != "https://img.example/images/R1/front.png" {
		t.Fatalf("photo not updated: %q", ent.Photo)
	}

	body, ct = multipartImage(t, "file", "front.png")
	rec = do(e.h, http.MethodPost, "/v1/entities/R1/image", body, map[string]string{"Authorization": token(t, "U1"), "Content-Type": ct})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing image field, got %d", rec.Code)
	}
}

func TestUpdateImage_StorageNotConfigured(t *testing.T) {
	e := setup(t, nil, 0)
	body, ct := multipartImage(t, "image", "front.png")
	rec := do(e.h, http.MethodPost, "/v1/entities/R1/image", body, map[string]string{"Authorization": token(t, "U1"), "Content-Type": ct})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestStreamEntity_PushesSnapshots(t *testing.T) {
	e := setup(t, nil, 0)
	ts := httptest.NewServer(e.h)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/entities/R1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var ev domain.EntityView
	if err := conn.ReadJSON(&ev); err != nil || ev.ID != "R1" || ev.NumRatings != 0 {
		t.Fatalf("initial snapshot %+v err=%v", ev, err)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/entities/R1/reviews", strings.NewReader(`{"rating":5}`))
	req.Header.Set("Authorization", token(t, "U9"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("post review: %v %v", resp, err)
	}
	resp.Body.Close()

	if err := conn.ReadJSON(&ev); err != nil || ev.NumRatings != 1 || ev.AvgRating != 5 {
		t.Fatalf("update snapshot %+v err=%v", ev, err)
	}
}

func TestStream_RejectsBeforeUpgrade(t *testing.T) {
	e := setup(t, nil, 0)
	if rec := do(e.h, http.MethodGet, "/v1/entities/nope/reviews/stream", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := do(e.h, http.MethodGet, "/v1/entities/stream?price=cheap", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpdateImage_RejectsPathsOutsideEntity(t *testing.T) {
	st := &fakeStorage{}
	e := setup(t, st, 0)
	auth := token(t, "U1")

	body, ct := multipartImage(t, "image", "logo.png")
	rec := do(e.h, http.MethodPost, "/v1/entities/../image", body, map[string]string{"Authorization": auth, "Content-Type": ct})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for dot-dot entity id, got %d", rec.Code)
	}

	body, ct = multipartImage(t, "image", "..")
	rec = do(e.h, http.MethodPost, "/v1/entities/R1/image", body, map[string]string{"Authorization": auth, "Content-Type": ct})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for dot-dot file name, got %d", rec.Code)
	}

	body, ct = multipartImage(t, "image", "logo.png")
	rec = do(e.h, http.MethodPost, "/v1/entities/ghost/image", body, map[string]string{"Authorization": auth, "Content-Type": ct})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown entity, got %d", rec.Code)
	}

	if len(st.paths) != 0 {
		t.Fatalf("nothing should have been uploaded, got %v", st.paths)
	}
}
