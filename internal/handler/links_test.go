package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abdusco/shortlink/internal"
	"github.com/abdusco/shortlink/internal/repo"
	"github.com/abdusco/shortlink/internal/shortcode"
	"github.com/abdusco/shortlink/internal/shortener"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct {
	*repo.MemoryStore
}

func (brokenStore) ListAll(context.Context) ([]*internal.Mapping, error) {
	return nil, errors.New("connection reset")
}

type stuckCodes struct{}

func (stuckCodes) Generate() (string, error) {
	return "deadbeef", nil
}

func newTestServer(t *testing.T, store shortener.Store, codes shortcode.Generator, baseURL string) (*echo.Echo, *shortener.Service) {
	t.Helper()

	svc := shortener.NewService(store, codes)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Drain(ctx)
	})

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	NewLinkHandler(svc, baseURL).Register(e)

	return e, svc
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateLink(t *testing.T) {
	e, _ := newTestServer(t, repo.NewMemoryStore(), shortcode.NewRandom(4), "https://sho.rt/")

	rec := do(e, http.MethodPost, "/api/links", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp CreateLinkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://example.com", resp.Link.OriginalURL)
	assert.Len(t, resp.Link.ShortCode, 8)
	assert.Equal(t, "https://sho.rt/"+resp.Link.ShortCode, resp.Link.ShortURL)
	assert.Zero(t, resp.Link.ClickCount)
}

func TestCreateLinkShortURLFromHost(t *testing.T) {
	e, _ := newTestServer(t, repo.NewMemoryStore(), shortcode.NewRandom(4), "")

	rec := do(e, http.MethodPost, "/api/links", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateLinkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "http://example.com/"+resp.Link.ShortCode, resp.Link.ShortURL)
}

func TestCreateLinkRejectsEmptyURL(t *testing.T) {
	store := repo.NewMemoryStore()
	e, _ := newTestServer(t, store, shortcode.NewRandom(4), "")

	for _, body := range []string{`{"url":""}`, `{}`} {
		rec := do(e, http.MethodPost, "/api/links", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"url is required"}`, rec.Body.String())
	}

	rec := do(e, http.MethodPost, "/api/links", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	all, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateLinkExhausted(t *testing.T) {
	e, _ := newTestServer(t, repo.NewMemoryStore(), stuckCodes{}, "")

	rec := do(e, http.MethodPost, "/api/links", `{"url":"https://one.example"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(e, http.MethodPost, "/api/links", `{"url":"https://two.example"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRedirect(t *testing.T) {
	e, svc := newTestServer(t, repo.NewMemoryStore(), shortcode.NewRandom(4), "")

	m, err := svc.Shorten(context.Background(), "https://example.com/landing")
	require.NoError(t, err)

	rec := do(e, http.MethodGet, "/"+m.ShortCode, "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/landing", rec.Header().Get(echo.HeaderLocation))

	assert.Eventually(t, func() bool {
		rec := do(e, http.MethodGet, "/api/links/"+m.ShortCode, "")
		var resp CreateLinkResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			return false
		}
		return resp.Link.ClickCount == 1 && resp.Link.LastClickedAt != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedirectNotFound(t *testing.T) {
	e, _ := newTestServer(t, repo.NewMemoryStore(), shortcode.NewRandom(4), "")

	for _, code := range []string{"a1b2c3d4", "zzzzzzzz", "short"} {
		rec := do(e, http.MethodGet, "/"+code, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, code)
		assert.JSONEq(t, `{"error":"link not found"}`, rec.Body.String())
	}

	rec := do(e, http.MethodGet, "/api/links/a1b2c3d4", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRedirectAfterCodeWidthChange(t *testing.T) {
	store := repo.NewMemoryStore()

	old := shortener.NewService(store, shortcode.NewRandom(4))
	m, err := old.Shorten(context.Background(), "https://example.com/old")
	require.NoError(t, err)
	require.Len(t, m.ShortCode, 8)

	e, _ := newTestServer(t, store, shortcode.NewRandom(6), "")

	rec := do(e, http.MethodGet, "/"+m.ShortCode, "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/old", rec.Header().Get(echo.HeaderLocation))

	rec = do(e, http.MethodGet, "/api/links/"+m.ShortCode, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListLinks(t *testing.T) {
	e, svc := newTestServer(t, repo.NewMemoryStore(), shortcode.NewRandom(4), "")

	rec := do(e, http.MethodGet, "/api/links", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"links":[]}`, rec.Body.String())

	for _, url := range []string{"https://a.example", "https://b.example", "https://c.example"} {
		_, err := svc.Shorten(context.Background(), url)
		require.NoError(t, err)
	}

	rec = do(e, http.MethodGet, "/api/links", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListLinksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Links, 3)
	assert.Equal(t, "https://c.example", resp.Links[0].OriginalURL)
	assert.Equal(t, "https://a.example", resp.Links[2].OriginalURL)
}

func TestListLinksStoreFailure(t *testing.T) {
	e, _ := newTestServer(t, brokenStore{repo.NewMemoryStore()}, shortcode.NewRandom(4), "")

	rec := do(e, http.MethodGet, "/api/links", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"storage unavailable"}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	e, _ := newTestServer(t, repo.NewMemoryStore(), shortcode.NewRandom(4), "")

	rec := do(e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
