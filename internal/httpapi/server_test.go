package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleDocument = `<PMML>
  <DataDictionary>
    <DataField name="age" dataType="double"/>
  </DataDictionary>
  <RegressionModel normalizationMethod="none">
    <MiningSchema>
      <MiningField name="age"/>
    </MiningSchema>
    <RegressionTable intercept="1.5">
      <NumericPredictor name="age" coefficient="0.25"/>
    </RegressionTable>
  </RegressionModel>
</PMML>`

func TestHandleCompileRequiresBearerToken(t *testing.T) {
	log := zap.NewNop()
	handler := NewServer(log, "test-secret", nil)

	req := httptest.NewRequest(http.MethodPost, "/compile", strings.NewReader(sampleDocument))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleCompileWithValidToken(t *testing.T) {
	log := zap.NewNop()
	handler := NewServer(log, "test-secret", nil)

	token, err := IssueToken("test-secret", "ci", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/compile", strings.NewReader(sampleDocument))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "score")
}

func TestHandleCompileRejectsMalformedDocument(t *testing.T) {
	log := zap.NewNop()
	handler := NewServer(log, "test-secret", nil)

	token, err := IssueToken("test-secret", "ci", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/compile", strings.NewReader("<not-xml"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
