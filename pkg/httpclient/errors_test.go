package httpclient

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/utafrali/cartstore/pkg/errors"
)

func makeResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestParseResponseError_Structured(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
	}{
		{http.StatusNotFound, apperrors.ErrNotFound},
		{http.StatusBadRequest, apperrors.ErrInvalidInput},
		{http.StatusUnprocessableEntity, apperrors.ErrInvalidInput},
		{http.StatusConflict, apperrors.ErrConflict},
		{http.StatusUnauthorized, apperrors.ErrUnauthorized},
		{http.StatusForbidden, apperrors.ErrForbidden},
		{http.StatusGone, apperrors.ErrGone},
		{http.StatusServiceUnavailable, apperrors.ErrServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := ParseResponseError(makeResponse(tt.status, `{"error":{"code":"X","message":"p1"}}`), "catalog")
			assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)
			assert.Equal(t, tt.status, apperrors.HTTPStatus(err))
		})
	}
}

func TestParseResponseError_ServerError(t *testing.T) {
	err := ParseResponseError(makeResponse(http.StatusBadGateway, `{"error":{"code":"UPSTREAM","message":"down"}}`), "catalog")
	assert.Contains(t, err.Error(), "catalog server error (502/UPSTREAM): down")
}

func TestParseResponseError_Unstructured(t *testing.T) {
	err := ParseResponseError(makeResponse(http.StatusTeapot, `<html>nope</html>`), "catalog")
	assert.Contains(t, err.Error(), "catalog returned status 418: <html>nope</html>")

	err = ParseResponseError(makeResponse(http.StatusNotFound, ``), "catalog")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
