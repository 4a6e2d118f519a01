package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codecollab/backend/internal/api/handler"
	"codecollab/backend/internal/chathub"
	"codecollab/backend/internal/config"
	"codecollab/backend/internal/executor"
	"codecollab/backend/internal/localization"
	"codecollab/backend/internal/models"
	"codecollab/backend/internal/presence"
	"codecollab/backend/internal/ratelimit"
	"codecollab/backend/internal/signaling"
	"codecollab/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, code, language string) (*models.ExecutionResult, error) {
	args := m.Called(code, language)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ExecutionResult), args.Error(1)
}

func (m *MockExecutor) Analyze(ctx context.Context, code, language string) (*models.ExecutionResult, error) {
	args := m.Called(code, language)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ExecutionResult), args.Error(1)
}

func (m *MockExecutor) Languages() (run, analyze []models.Language) {
	return models.Languages, []models.Language{models.LanguageJavaScript, models.LanguagePython}
}

type denyAll struct{}

func (denyAll) Allow(ctx context.Context, key string) (*ratelimit.Result, error) {
	return &ratelimit.Result{Allowed: false, RetryAfter: 30 * time.Second, ResetAt: time.Now()}, nil
}

func (denyAll) Limit() int { return 1 }

type testEnv struct {
	engine *gin.Engine
	exec   *MockExecutor
	hub    *chathub.ManagerService
}

func newEnv(t *testing.T, limiter ratelimit.Limiter) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.Open(config.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
	require.NoError(t, err)
	store := storage.NewStorageService(db)
	t.Cleanup(func() { _ = store.Close() })

	loc, err := localization.NewDefault()
	require.NoError(t, err)

	router := chathub.NewRouter(nil)
	registry := presence.NewRegistry(router, presence.Options{}, nil)
	relay := signaling.NewRelay(router, signaling.Options{BroadcastFallback: true}, nil)
	hub := chathub.NewManagerService(router, registry, relay, time.Hour, nil)

	exec := new(MockExecutor)
	h := handler.NewHandler(hub, exec, store, loc, "http://collab.test", nil)
	engine := gin.New()
	h.Register(engine, limiter)

	return &testEnv{engine: engine, exec: exec, hub: hub}
}

func (e *testEnv) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func TestRun_Success(t *testing.T) {
	env := newEnv(t, nil)
	env.exec.On("Execute", "print('hi')", "python").
		Return(&models.ExecutionResult{Succeeded: true, Output: "hi\n"}, nil)

	w := env.do(http.MethodPost, "/api/run", `{"code":"print('hi')","language":"python"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"output":"hi\n"}`, w.Body.String())
	env.exec.AssertExpectations(t)
}

func TestRun_ProgramFailureIsNotAnHTTPError(t *testing.T) {
	env := newEnv(t, nil)
	env.exec.On("Execute", "boom", "javascript").
		Return(&models.ExecutionResult{Succeeded: false, Output: "ReferenceError", Error: "ReferenceError"}, nil)

	w := env.do(http.MethodPost, "/api/run", `{"code":"boom","language":"javascript"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":false,"output":"ReferenceError","error":"ReferenceError"}`, w.Body.String())
}

func TestRun_MissingFields(t *testing.T) {
	env := newEnv(t, nil)

	w := env.do(http.MethodPost, "/api/run", `{"code":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Code and language are required"}`, w.Body.String())

	w = env.do(http.MethodPost, "/api/run", `{"language":"python"}`, "Accept-Language", "uk-UA,uk;q=0.9")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Потрібно вказати код і мову"}`, w.Body.String())
	env.exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestRun_UnsupportedLanguage(t *testing.T) {
	env := newEnv(t, nil)
	env.exec.On("Execute", "x", "cobol").Return(nil, fmt.Errorf("%w: cobol", executor.ErrUnsupportedLanguage))

	w := env.do(http.MethodPost, "/api/run", `{"code":"x","language":"cobol"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Unsupported language: cobol"}`, w.Body.String())
}

func TestRun_RateLimited(t *testing.T) {
	env := newEnv(t, denyAll{})

	w := env.do(http.MethodPost, "/api/run", `{"code":"x","language":"python"}`)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	env.exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)

	// Sharing is not throttled.
	w = env.do(http.MethodPost, "/api/share", `{"code":"x","language":"python"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestAnalyze(t *testing.T) {
	env := newEnv(t, nil)
	env.exec.On("Analyze", "def f(:", "python").
		Return(&models.ExecutionResult{Succeeded: false, Output: "SyntaxError (line 1)", Error: "SyntaxError (line 1)"}, nil)
	env.exec.On("Analyze", "int main(){}", "c").Return(nil, executor.ErrAnalyzeUnsupported)

	w := env.do(http.MethodPost, "/api/analyze", `{"code":"def f(:","language":"python"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "(line 1)")

	w = env.do(http.MethodPost, "/api/analyze", `{"code":"int main(){}","language":"c"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Analysis is only supported for JavaScript and Python"}`, w.Body.String())
}

func TestShare_RoundTrip(t *testing.T) {
	env := newEnv(t, nil)

	w := env.do(http.MethodPost, "/api/share", `{"code":"console.log(1)","language":"js","title":"demo"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		CodeID   string `json:"codeId"`
		ShareURL string `json:"shareUrl"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Len(t, created.CodeID, config.SnippetIDLength)
	assert.Equal(t, "http://collab.test/share/"+created.CodeID, created.ShareURL)

	w = env.do(http.MethodGet, "/api/share/"+created.CodeID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var snippet models.SharedSnippet
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snippet))
	assert.Equal(t, "console.log(1)", snippet.Code)
	assert.Equal(t, "js", snippet.Language)
	assert.Equal(t, "demo", snippet.Title)
}

func TestShare_KeepsFieldsVerbatim(t *testing.T) {
	env := newEnv(t, nil)

	cases := []struct {
		code, language, title string
	}{
		{"print('hi')\r\n\tpass  \n", "Python3", "  spaced title "},
		{"let x: number = 1;", "typescript", "TS"},
		{"++++[>++<-]", "brainfuck", "bf"},
	}
	for _, tc := range cases {
		body, err := json.Marshal(map[string]string{"code": tc.code, "language": tc.language, "title": tc.title})
		require.NoError(t, err)

		w := env.do(http.MethodPost, "/api/share", string(body))
		require.Equal(t, http.StatusCreated, w.Code, tc.language)
		var created struct {
			CodeID string `json:"codeId"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

		w = env.do(http.MethodGet, "/api/share/"+created.CodeID, "")
		require.Equal(t, http.StatusOK, w.Code)
		var snippet models.SharedSnippet
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snippet))
		assert.Equal(t, tc.code, snippet.Code)
		assert.Equal(t, tc.language, snippet.Language)
		assert.Equal(t, tc.title, snippet.Title)
	}
}

func TestShare_Errors(t *testing.T) {
	env := newEnv(t, nil)

	w := env.do(http.MethodGet, "/api/share/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Shared code not found"}`, w.Body.String())

	w = env.do(http.MethodPost, "/api/share", `{"code":"x","language":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/share", `{"language":"c"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGroups(t *testing.T) {
	env := newEnv(t, nil)

	w := env.do(http.MethodPost, "/api/groups", `{"name":"Algo Club"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		GroupID string `json:"groupId"`
		Name    string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "Algo Club", created.Name)

	w = env.do(http.MethodPost, "/api/groups", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), config.GeneratedGroupNamePrefix)

	w = env.do(http.MethodGet, "/api/groups", "")
	require.Equal(t, http.StatusOK, w.Code)
	var groups []models.GroupSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &groups))
	require.Len(t, groups, 2)
	var found bool
	for _, g := range groups {
		if g.ID == created.GroupID {
			found = true
			assert.Equal(t, "Algo Club", g.Name)
			assert.Equal(t, 0, g.UserCount)
		}
	}
	assert.True(t, found)

	w = env.do(http.MethodPost, "/api/groups", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLanguagesAndHealth(t *testing.T) {
	env := newEnv(t, nil)

	w := env.do(http.MethodGet, "/api/languages", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"run":["javascript","python","java","c","cpp"],"analyze":["javascript","python"]}`, w.Body.String())

	w = env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","connections":0}`, w.Body.String())
}
