package httpx_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/tally/pkg/httpx"
	"github.com/stretchr/testify/require"
)

type loginBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantErr    string
		wantFields map[string]string
	}{
		{"valid", `{"email":"a@example.com","password":"pw"}`, "", nil},
		{"empty body", ``, "request body is empty", nil},
		{"malformed", `{"email":`, "malformed JSON", nil},
		{"unknown field", `{"email":"a@example.com","password":"pw","admin":true}`, "malformed JSON", nil},
		{"trailing data", `{"email":"a@example.com","password":"pw"}{}`, "single JSON object", nil},
		{"invalid email", `{"email":"nope","password":"pw"}`, "validation failed", map[string]string{"email": "email"}},
		{"missing fields", `{}`, "validation failed", map[string]string{"email": "required", "password": "required"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var dst loginBody
			err := httpx.DecodeAndValidate(req, &dst)
			if tt.wantErr == "" {
				require.NoError(t, err)
				require.Equal(t, "a@example.com", dst.Email)
				return
			}

			var re *httpx.RequestError
			require.ErrorAs(t, err, &re)
			require.Contains(t, re.Msg, tt.wantErr)
			if tt.wantFields != nil {
				require.Equal(t, tt.wantFields, re.Fields)
			}
		})
	}
}

func TestWriteRequestError(t *testing.T) {
	t.Run("request error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		httpx.WriteRequestError(rec, &httpx.RequestError{Msg: "validation failed", Fields: map[string]string{"email": "required"}})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var body httpx.ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Equal(t, "invalid_request", body.Error)
		require.Equal(t, "required", body.Fields["email"])
	})

	t.Run("other error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		httpx.WriteRequestError(rec, errors.New("db down"))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.NotContains(t, rec.Body.String(), "db down")
	})
}

func TestWriteJSON_NoCache(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.WriteJSON(rec, http.StatusOK, map[string]string{"ok": "yes"})

	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.Equal(t, "no-cache", rec.Header().Get("Pragma"))
}
