package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp-system/erp/internal/shared"
)

func TestRespondErrorMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		detail string
	}{
		{fmt.Errorf("get: %w", shared.ErrNotFound), http.StatusNotFound, "Traženi zapis ne postoji."},
		{shared.ErrDuplicate, http.StatusConflict, "Zapis s istim podacima već postoji."},
		{shared.ErrInUse, http.StatusConflict, "Zapis se koristi i ne može se obrisati."},
		{shared.Invalid("volume", "Količina mora biti veća od nule."), http.StatusBadRequest, "Količina mora biti veća od nule."},
		{ErrForbidden, http.StatusForbidden, ""},
		{errors.New("pgx: conn closed"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		assert.Equal(t, tc.status, rr.Code, tc.err.Error())
		assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
		var p ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
		assert.Equal(t, tc.detail, p.Detail)
		assert.NotContains(t, rr.Body.String(), "pgx")
	}
}

func TestProblemWithTypeKeepsType(t *testing.T) {
	rr := httptest.NewRecorder()
	ProblemWithType(rr, http.StatusUnauthorized, "step_up_required", "Unauthorized", "")
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, "step_up_required", p.Type)
	assert.Equal(t, http.StatusUnauthorized, p.Status)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Email string `json:"email"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.ba","admin":true}`))
	assert.Error(t, DecodeJSON(req, &target))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.ba"}`))
	require.NoError(t, DecodeJSON(req, &target))
	assert.Equal(t, "a@b.ba", target.Email)
}
