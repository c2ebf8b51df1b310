package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	"github.com/pellmont/luapp/internal/driver"
	"github.com/pellmont/luapp/internal/runtime"
)

func newTestServer(t *testing.T, noAuth bool) *Server {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secretpw"), bcrypt.MinCost)
	assert.NoError(t, err)

	cfg := Config{
		Username:     "tester",
		PasswordHash: base64.StdEncoding.EncodeToString(hash),
		Secret:       []byte("test-secret-at-least-this-long"),
		NoAuth:       noAuth,
	}
	cfg.Driver.Runtime = runtime.Mini{}
	cfg.Driver.OutputExtension = driver.DefaultOutputExtension
	return New(cfg)
}

func Test_Server_loginSucceedsWithCorrectCredentials(t *testing.T) {
	s := newTestServer(t, false)
	body, _ := json.Marshal(loginRequest{Username: "tester", Password: "secretpw"})

	req := httptest.NewRequest("POST", "/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	var resp map[string]string
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["token"])
}

func Test_Server_loginFailsWithWrongPassword(t *testing.T) {
	s := newTestServer(t, false)
	body, _ := json.Marshal(loginRequest{Username: "tester", Password: "wrong"})

	req := httptest.NewRequest("POST", "/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, 401, rec.Code)
}

func Test_Server_jobsRequiresAuth(t *testing.T) {
	s := newTestServer(t, false)

	req := httptest.NewRequest("POST", "/jobs", bytes.NewReader([]byte(`print(1)`)))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, 401, rec.Code)
}

func Test_Server_jobsRunsPipelineWithValidToken(t *testing.T) {
	s := newTestServer(t, false)

	loginBody, _ := json.Marshal(loginRequest{Username: "tester", Password: "secretpw"})
	loginReq := httptest.NewRequest("POST", "/login", bytes.NewReader(loginBody))
	loginRec := httptest.NewRecorder()
	s.ServeHTTP(loginRec, loginReq)
	var loginResp map[string]string
	assert.NoError(t, json.Unmarshal(loginRec.Body.Bytes(), &loginResp))

	req := httptest.NewRequest("POST", "/jobs", bytes.NewReader([]byte("local n = !(1+2)\n")))
	req.Header.Set("Authorization", "Bearer "+loginResp["token"])
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, 201, rec.Code)
	var resp jobResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "local n = 3\n", resp.Output)
	assert.True(t, resp.HasPreprocessorCode)
	assert.NotEmpty(t, resp.ID)
}

func Test_Server_jobsNoAuthModeSkipsToken(t *testing.T) {
	s := newTestServer(t, true)

	req := httptest.NewRequest("POST", "/jobs", bytes.NewReader([]byte("print(1)\n")))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, 201, rec.Code)
}

func Test_Server_getJobWithoutRepositoryReturnsNotFound(t *testing.T) {
	s := newTestServer(t, true)

	req := httptest.NewRequest("GET", "/jobs/00000000-0000-0000-0000-000000000000", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, 404, rec.Code)
}
