package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/coinfolio/src/logger"
)

var testAuthKey = []byte("0123456789abcdef0123456789abcdef")

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func issueToken(t *testing.T) (string, *http.Cookie) {
	t.Helper()
	rec := httptest.NewRecorder()
	GetCSRFToken(testAuthKey)(rec, httptest.NewRequest(http.MethodGet, "/api/auth/csrf", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotEmpty(t, body["csrfToken"])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, csrfCookieName, cookies[0].Name)
	assert.Equal(t, body["csrfToken"], cookies[0].Value)
	return body["csrfToken"], cookies[0]
}

func protected() (http.Handler, *bool) {
	reached := false
	handler := CSRFMiddleware(testAuthKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &reached
}

func TestCSRFMiddlewareAllowsMatchingToken(t *testing.T) {
	token, cookie := issueToken(t)
	handler, reached := protected()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
	req.Header.Set("X-CSRF-Token", token)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, *reached)
}

func TestCSRFMiddlewareRejectsMissingOrMismatchedToken(t *testing.T) {
	token, cookie := issueToken(t)
	otherToken, _ := issueToken(t)

	tests := []struct {
		name   string
		header string
		cookie *http.Cookie
	}{
		{name: "no header", header: "", cookie: cookie},
		{name: "no cookie", header: token, cookie: nil},
		{name: "mismatch", header: otherToken, cookie: cookie},
		{name: "unsigned forgery", header: "forged", cookie: &http.Cookie{Name: csrfCookieName, Value: "forged"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler, reached := protected()
			req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
			if tc.header != "" {
				req.Header.Set("X-CSRF-Token", tc.header)
			}
			if tc.cookie != nil {
				req.AddCookie(tc.cookie)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.False(t, *reached)
		})
	}
}

func TestCSRFMiddlewareSkipsSafeMethods(t *testing.T) {
	handler, reached := protected()

	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, *reached)
}
