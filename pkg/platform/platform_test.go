package platform

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("DIAGRAMS_TEST_INT", "42")
	t.Setenv("DIAGRAMS_TEST_BAD_INT", "forty")
	t.Setenv("DIAGRAMS_TEST_LIST", " aws, gcp ,,azure ")

	assert.Equal(t, 42, GetEnvInt("DIAGRAMS_TEST_INT", 1))
	assert.Equal(t, 7, GetEnvInt("DIAGRAMS_TEST_BAD_INT", 7))
	assert.Equal(t, 3, GetEnvInt("DIAGRAMS_TEST_MISSING", 3))
	assert.Equal(t, []string{"aws", "gcp", "azure"}, GetEnvList("DIAGRAMS_TEST_LIST", nil))
	assert.Equal(t, []string{"x"}, GetEnvList("DIAGRAMS_TEST_MISSING", []string{"x"}))
}

func TestInitLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := initLogger(&buf, "warn", "json")
	logger.Info().Msg("hidden")
	logger.Warn().Str("component", "catalog").Msg("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"component":"catalog"`)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	initLogger(&buf, "nonsense", "json")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestAPIKeyMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("disabled without key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		APIKeyMiddleware("")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("rejects wrong key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", "nope")
		APIKeyMiddleware("secret")(ok).ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
	})

	t.Run("accepts matching key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", "secret")
		APIKeyMiddleware("secret")(ok).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
