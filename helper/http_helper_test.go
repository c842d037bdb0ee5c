package helper

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"encyclopedia-cms/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/go-playground/validator.v9"
)

func TestGetStatusCode(t *testing.T) {
	h := MustHTTPHelper()

	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{models.ErrorNotFound{Resource: "article"}, http.StatusNotFound},
		{models.ErrDuplicateTitle, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", models.ErrEditConflict), http.StatusConflict},
		{models.ErrInvalidPromotion, http.StatusUnprocessableEntity},
		{models.ErrSelfReview, http.StatusForbidden},
		{models.ErrorValidation{Field: "title"}, http.StatusBadRequest},
		{models.ErrorExternalDependency{Dependency: "fts5", Cause: errors.New("down")}, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, h.GetStatusCode(tt.err), "%v", tt.err)
	}
}

func TestErrorReason(t *testing.T) {
	assert.Equal(t, models.ReasonEditConflict, errorReason(fmt.Errorf("x: %w", models.ErrEditConflict)))
	assert.Equal(t, "", errorReason(errors.New("plain")))
}

func TestUnderscore(t *testing.T) {
	assert.Equal(t, "base_revision_id", Underscore("BaseRevisionID"))
	assert.Equal(t, "title", Underscore("Title"))
	assert.Equal(t, "criteria_scores", Underscore("CriteriaScores"))
}

func TestSendValidationErrorIsTranslated(t *testing.T) {
	h, err := NewHTTPHelper()
	require.NoError(t, err)

	type command struct {
		BaseTitle string `validate:"required"`
	}
	verr := h.Validate.Struct(command{})
	var fields validator.ValidationErrors
	require.True(t, errors.As(verr, &fields))

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	require.NoError(t, h.SendServiceError(c, models.ErrorValidation{Field: "base_title", Cause: fields}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"base_title":["BaseTitle is a required field"]`)
}
