package httpx

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProblemResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	Problem(rec, 409, "Invalid Transition", "cannot post a cancelled receipt")

	require.Equal(t, 409, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "https://meridian-wms.dev/problems/invalid-transition", body.Type)
	require.Equal(t, "Invalid Transition", body.Title)
	require.Equal(t, 409, body.Status)
	require.Equal(t, "cannot post a cancelled receipt", body.Detail)
}

func TestJSONSetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, 201, map[string]int{"id": 7})

	require.Equal(t, 201, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"id":7}`, rec.Body.String())
}
