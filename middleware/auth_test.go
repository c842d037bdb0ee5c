package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"encyclopedia-cms/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, ActorFrom(c))
	})
	r.GET("/mod", AuthMiddleware(), RequireRole(models.RoleModerator), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()

	token, err := GenerateToken(models.Actor{ID: "alice", Role: models.RoleWriter})
	require.NoError(t, err)

	w := do(r, "/me", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"alice"`)

	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/me", "garbage").Code)
}

func TestRequireRole(t *testing.T) {
	r := newRouter()

	writer, err := GenerateToken(models.Actor{ID: "alice", Role: models.RoleWriter})
	require.NoError(t, err)
	mod, err := GenerateToken(models.Actor{ID: "mia", Role: models.RoleModerator})
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, do(r, "/mod", writer).Code)
	assert.Equal(t, http.StatusNoContent, do(r, "/mod", mod).Code)
}
