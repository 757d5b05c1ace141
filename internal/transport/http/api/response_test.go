package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailWritesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	FailWithDetails(rec, http.StatusConflict, "invalid_transition", "cannot move", map[string]string{"from": "paid"}, "req-1")

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "req-1", body["requestId"])
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "invalid_transition", errBody["code"])
	assert.Equal(t, "paid", errBody["details"].(map[string]any)["from"])
}

func TestDecode(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	cases := map[string]struct {
		body    string
		wantErr bool
	}{
		"valid":         {`{"name":"a"}`, false},
		"unknown field": {`{"name":"a","x":1}`, true},
		"trailing data": {`{"name":"a"}{"name":"b"}`, true},
		"not json":      {`name=a`, true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dst payload
			err := Decode(req, &dst)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a", dst.Name)
		})
	}
}
