package upload

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"permitpilot/internal/cache"
	"permitpilot/internal/database"
	"permitpilot/internal/domain"
	"permitpilot/internal/middleware"
	jwtsvc "permitpilot/internal/pkg/jwt"
	"permitpilot/internal/storage"
)

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	jwt    *jwtsvc.Service
	sum    *fakeSummarizer
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.Upload{}, &domain.UploadTag{}))

	log := logrus.New()
	log.SetOutput(io.Discard)

	sum := &fakeSummarizer{summary: "a short summary"}
	svc := NewService(NewRepository(db), storage.New(t.TempDir(), "/static"), cache.New(), sum)
	handler := NewHandler(svc, log)
	jwtService := jwtsvc.New("test-secret", time.Hour)

	router := gin.New()
	protected := router.Group("/api/v1")
	protected.Use(middleware.RequireAuth(jwtService))
	RegisterRoutes(protected, handler)

	return &testEnv{router: router, db: db, jwt: jwtService, sum: sum}
}

func (e *testEnv) token(t *testing.T, userID int64) string {
	t.Helper()
	token, err := e.jwt.GenerateToken(userID)
	require.NoError(t, err)
	return token
}

func (e *testEnv) request(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) requestJSON(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return e.request(t, method, path, token, bytes.NewReader(raw), "application/json")
}

func (e *testEnv) uploadFile(t *testing.T, path, token, filename, contentType, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return e.request(t, http.MethodPost, path, token, &buf, mw.FormDataContentType())
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func createUpload(t *testing.T, e *testEnv, token, filename, contentType, content string) int64 {
	t.Helper()
	w := e.uploadFile(t, "/api/v1/uploads", token, filename, contentType, content)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var data struct {
		ID int64 `json:"id"`
	}
	env := decodeEnvelope(t, w)
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.ID
}

func TestUploadsRequireAuth(t *testing.T) {
	e := setupEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/uploads"},
		{http.MethodPost, "/api/v1/uploads"},
		{http.MethodGet, "/api/v1/uploads/facets"},
		{http.MethodDelete, "/api/v1/uploads/1"},
		{http.MethodGet, "/api/v1/uploads/1/download"},
	} {
		w := e.request(t, tc.method, tc.path, "", nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", tc.method, tc.path)

		env := decodeEnvelope(t, w)
		assert.False(t, env.Success)
		require.NotNil(t, env.Error)
		assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
	}
}

func TestCreateWithoutFileField(t *testing.T) {
	e := setupEnv(t)
	token := e.token(t, 1)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "value"))
	require.NoError(t, mw.Close())

	w := e.request(t, http.MethodPost, "/api/v1/uploads", token, &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusBadRequest, w.Code)

	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	var count int64
	require.NoError(t, e.db.Model(&domain.Upload{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateTextUpload(t *testing.T) {
	e := setupEnv(t)
	token := e.token(t, 1)

	id := createUpload(t, e, token, "notes.txt", "text/plain", "permit scope: rear extension")

	var row domain.Upload
	require.NoError(t, e.db.First(&row, id).Error)
	assert.Equal(t, "notes.txt", row.Name)
	assert.Equal(t, "text/plain", row.MimeType)
	require.NotNil(t, row.Content)
	assert.Equal(t, "permit scope: rear extension", *row.Content)
	assert.Nil(t, row.Summary)
}

func TestListFiltersAndSort(t *testing.T) {
	e := setupEnv(t)
	token := e.token(t, 1)

	createUpload(t, e, token, "untagged.pdf", "application/pdf", "a")
	xID := createUpload(t, e, token, "x.pdf", "application/pdf", "b")
	xyID := createUpload(t, e, token, "xy.pdf", "application/pdf", "c")

	// tagging goes through the patch endpoint
	w := e.requestJSON(t, http.MethodPatch, fmt.Sprintf("/api/v1/uploads/%d", xID), token, gin.H{"tags": []string{"x"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.requestJSON(t, http.MethodPatch, fmt.Sprintf("/api/v1/uploads/%d", xyID), token, gin.H{"tags": []string{"x", "y"}})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.request(t, http.MethodGet, "/api/v1/uploads?tags=x&sort=oldest", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var page Page
	env := decodeEnvelope(t, w)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.EqualValues(t, 2, page.Total)
	require.Len(t, page.Uploads, 2)
	assert.Equal(t, xID, page.Uploads[0].ID)
	assert.Equal(t, xyID, page.Uploads[1].ID)
}

func TestListPageSizeClamping(t *testing.T) {
	e := setupEnv(t)
	token := e.token(t, 1)

	createUpload(t, e, token, "a.txt", "text/plain", "a")
	createUpload(t, e, token, "b.txt", "text/plain", "b")

	cases := map[string]int{
		"page_size=0":    1, // explicit zero clamps up, it is not a default
		"page_size=-3":   1,
		"page_size=1":    1,
		"page_size=500":  100,
		"page_size=abc":  20,
		"":               20,
	}
	for query, want := range cases {
		path := "/api/v1/uploads"
		if query != "" {
			path += "?" + query
		}
		w := e.request(t, http.MethodGet, path, token, nil, "")
		require.Equal(t, http.StatusOK, w.Code, query)

		var page Page
		env := decodeEnvelope(t, w)
		require.NoError(t, json.Unmarshal(env.Data, &page))
		assert.Equal(t, want, page.PageSize, query)
	}

	// page_size=1 really limits the page to one row
	w := e.request(t, http.MethodGet, "/api/v1/uploads?page_size=1", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var page Page
	env := decodeEnvelope(t, w)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Uploads, 1)
	assert.EqualValues(t, 2, page.Total)
}

func TestFacetsEndpoint(t *testing.T) {
	e := setupEnv(t)
	token := e.token(t, 1)

	id := createUpload(t, e, token, "a.pdf", "application/pdf", "a")
	createUpload(t, e, token, "b.txt", "text/plain", "b")

	w := e.requestJSON(t, http.MethodPatch, fmt.Sprintf("/api/v1/uploads/%d", id), token, gin.H{"tags": []string{"zeta", "alpha"}})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.request(t, http.MethodGet, "/api/v1/uploads/facets", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var facets Facets
	env := decodeEnvelope(t, w)
	require.NoError(t, json.Unmarshal(env.Data, &facets))
	assert.Equal(t, []string{"alpha", "zeta"}, facets.Tags)
	assert.Equal(t, []string{"application/pdf", "text/plain"}, facets.MimeTypes)
}

func TestUpdateValidation(t *testing.T) {
	e := setupEnv(t)
	token := e.token(t, 1)
	id := createUpload(t, e, token, "a.txt", "text/plain", "a")

	w := e.requestJSON(t, http.MethodPatch, fmt.Sprintf("/api/v1/uploads/%d", id), token, gin.H{"name": ""})
	require.Equal(t, http.StatusBadRequest, w.Code)

	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	w = e.request(t, http.MethodPatch, fmt.Sprintf("/api/v1/uploads/%d", id), token, strings.NewReader("{not json"), "application/json")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteForeignUpload(t *testing.T) {
	e := setupEnv(t)
	owner := e.token(t, 1)
	intruder := e.token(t, 2)

	id := createUpload(t, e, owner, "a.txt", "text/plain", "a")

	w := e.request(t, http.MethodDelete, fmt.Sprintf("/api/v1/uploads/%d", id), intruder, nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)

	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	var count int64
	require.NoError(t, e.db.Model(&domain.Upload{}).Where("id = ?", id).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestReplaceEndpoint(t *testing.T) {
	e := setupEnv(t)
	token := e.token(t, 1)
	id := createUpload(t, e, token, "v1.txt", "text/plain", "old")

	w := e.uploadFile(t, fmt.Sprintf("/api/v1/uploads/%d/replace", id), token, "v2.pdf", "application/pdf", "new")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var data struct {
		Name       string  `json:"name"`
		MimeType   string  `json:"mime_type"`
		ReplacedAt *string `json:"replaced_at"`
	}
	env := decodeEnvelope(t, w)
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "v2.pdf", data.Name)
	assert.Equal(t, "application/pdf", data.MimeType)
	assert.NotNil(t, data.ReplacedAt)
}

func TestDownloadEndpoint(t *testing.T) {
	e := setupEnv(t)
	token := e.token(t, 1)
	id := createUpload(t, e, token, "notes.txt", "text/plain", "download me")

	w := e.request(t, http.MethodGet, fmt.Sprintf("/api/v1/uploads/%d/download", id), token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "download me", w.Body.String())
}

func TestExportZipEndpoint(t *testing.T) {
	e := setupEnv(t)
	owner := e.token(t, 1)
	other := e.token(t, 2)

	mine := createUpload(t, e, owner, "mine.txt", "text/plain", "mine body")
	theirs := createUpload(t, e, other, "theirs.txt", "text/plain", "theirs body")

	w := e.request(t, http.MethodGet, fmt.Sprintf("/api/v1/uploads/zip?ids=%d,%d", mine, theirs), owner, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "permitpilot-selected.zip")

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "mine.txt", zr.File[0].Name)
}

func TestExportZipWithoutIDs(t *testing.T) {
	e := setupEnv(t)
	token := e.token(t, 1)

	w := e.request(t, http.MethodGet, "/api/v1/uploads/zip", token, nil, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportZipNothingFound(t *testing.T) {
	e := setupEnv(t)
	token := e.token(t, 1)

	w := e.request(t, http.MethodGet, "/api/v1/uploads/zip?ids=42,43", token, nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)

	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestSummarizeEndpoint(t *testing.T) {
	e := setupEnv(t)
	token := e.token(t, 1)
	id := createUpload(t, e, token, "notes.txt", "text/plain", "long permit text")

	w := e.request(t, http.MethodPost, fmt.Sprintf("/api/v1/uploads/%d/summarize", id), token, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var data struct {
		Summary string `json:"summary"`
	}
	env := decodeEnvelope(t, w)
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "a short summary", data.Summary)

	var row domain.Upload
	require.NoError(t, e.db.First(&row, id).Error)
	require.NotNil(t, row.Summary)
	assert.Equal(t, "a short summary", *row.Summary)
}

func TestSummarizeBinaryUpload(t *testing.T) {
	e := setupEnv(t)
	token := e.token(t, 1)
	id := createUpload(t, e, token, "plan.pdf", "application/pdf", "%PDF")

	w := e.request(t, http.MethodPost, fmt.Sprintf("/api/v1/uploads/%d/summarize", id), token, nil, "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestSummarizeUpstreamFailure(t *testing.T) {
	e := setupEnv(t)
	token := e.token(t, 1)
	id := createUpload(t, e, token, "notes.txt", "text/plain", "text")
	e.sum.err = fmt.Errorf("upstream 503")

	w := e.request(t, http.MethodPost, fmt.Sprintf("/api/v1/uploads/%d/summarize", id), token, nil, "")
	require.Equal(t, http.StatusBadGateway, w.Code)

	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UPSTREAM_ERROR", env.Error.Code)
}

func TestAnalyzeEndpoint(t *testing.T) {
	e := setupEnv(t)
	token := e.token(t, 1)

	w := e.requestJSON(t, http.MethodPost, "/api/v1/analyze", token, gin.H{"text": "summarize this"})
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		Summary string `json:"summary"`
	}
	env := decodeEnvelope(t, w)
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "a short summary", data.Summary)

	w = e.requestJSON(t, http.MethodPost, "/api/v1/analyze", token, gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRevalidateEndpoint(t *testing.T) {
	e := setupEnv(t)
	token := e.token(t, 1)

	createUpload(t, e, token, "a.txt", "text/plain", "a")
	w := e.request(t, http.MethodGet, "/api/v1/uploads", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = e.requestJSON(t, http.MethodPost, "/api/v1/cache/revalidate", token, gin.H{"tag": CacheTag})
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		Revalidated bool   `json:"revalidated"`
		Tag         string `json:"tag"`
		Dropped     int    `json:"dropped"`
	}
	env := decodeEnvelope(t, w)
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.True(t, data.Revalidated)
	assert.Equal(t, CacheTag, data.Tag)
	assert.Equal(t, 1, data.Dropped)

	w = e.requestJSON(t, http.MethodPost, "/api/v1/cache/revalidate", token, gin.H{"tag": ""})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvalidUploadID(t *testing.T) {
	e := setupEnv(t)
	token := e.token(t, 1)

	w := e.request(t, http.MethodGet, "/api/v1/uploads/abc/download", token, nil, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}
