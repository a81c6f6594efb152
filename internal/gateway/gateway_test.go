package gateway_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"judge-engine/internal/gateway"
	"judge-engine/internal/store"
)

type fakeDispatcher struct {
	enqueued []string
}

func (f *fakeDispatcher) Enqueue(jobID string) bool {
	f.enqueued = append(f.enqueued, jobID)
	return true
}
func (f *fakeDispatcher) ActiveCount() int { return len(f.enqueued) }
func (f *fakeDispatcher) Capacity() int    { return 4 }

func newTestGateway(t *testing.T) (*gin.Engine, store.Repository, *fakeDispatcher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&store.Job{}))
	repo := store.NewWithDB(db)

	disp := &fakeDispatcher{}
	gw := gateway.New(repo, disp)

	r := gin.New()
	gw.Register(r)
	return r, repo, disp
}

func doRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSubmitAcceptsValidRequest(t *testing.T) {
	r, _, disp := newTestGateway(t)

	rec := doRequest(r, http.MethodPost, "/submissions", map[string]string{
		"source_code": "print('hi')",
		"language":    "python3",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "PENDING", resp["status"])
	require.NotEmpty(t, resp["job_id"])
	require.Len(t, disp.enqueued, 1)
}

func TestSubmitRejectsUnknownLanguage(t *testing.T) {
	r, _, _ := newTestGateway(t)

	rec := doRequest(r, http.MethodPost, "/submissions", map[string]string{
		"source_code": "print('hi')",
		"language":    "cobol",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitRejectsOversizedSource(t *testing.T) {
	r, _, _ := newTestGateway(t)

	rec := doRequest(r, http.MethodPost, "/submissions", map[string]string{
		"source_code": strings.Repeat("a", gateway.MaxSourceBytes+1),
		"language":    "python3",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetReturnsNotFoundForMissingJob(t *testing.T) {
	r, _, _ := newTestGateway(t)

	rec := doRequest(r, http.MethodGet, "/submissions/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOmitsResultUntilTerminal(t *testing.T) {
	r, _, _ := newTestGateway(t)

	rec := doRequest(r, http.MethodPost, "/submissions", map[string]string{
		"source_code": "print('hi')",
		"language":    "python3",
	})
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["job_id"].(string)

	rec = doRequest(r, http.MethodGet, "/submissions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var job map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.Nil(t, job["result"])
}

func TestListFiltersByStatus(t *testing.T) {
	r, _, _ := newTestGateway(t)

	doRequest(r, http.MethodPost, "/submissions", map[string]string{"source_code": "a", "language": "python3"})
	doRequest(r, http.MethodPost, "/submissions", map[string]string{"source_code": "b", "language": "python3"})

	rec := doRequest(r, http.MethodGet, "/submissions?limit=10&offset=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.EqualValues(t, 2, resp["total"])

	rec = doRequest(r, http.MethodGet, "/submissions?status=COMPLETED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.EqualValues(t, 0, resp["total"])
}

func TestListRejectsInvalidStatus(t *testing.T) {
	r, _, _ := newTestGateway(t)
	rec := doRequest(r, http.MethodGet, "/submissions?status=bogus", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLanguagesEndpoint(t *testing.T) {
	r, _, _ := newTestGateway(t)
	rec := doRequest(r, http.MethodGet, "/languages", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	langs := resp["languages"].([]interface{})
	require.NotEmpty(t, langs)
}

func TestHealthEndpoint(t *testing.T) {
	r, _, _ := newTestGateway(t)
	rec := doRequest(r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "healthy", resp["status"])
}

func TestBannerEndpoint(t *testing.T) {
	r, _, _ := newTestGateway(t)
	rec := doRequest(r, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
