package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/coopledger/backend/internal/infrastructure/auth"
	"github.com/coopledger/backend/internal/infrastructure/config"
	"github.com/coopledger/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret-key-at-least-32-chars"

func newTestValidator() *auth.JWTValidator {
	return auth.NewJWTValidator(config.JWTConfig{Secret: testSecret, Issuer: "test-issuer"})
}

func newProtectedRouter(t *testing.T, validator TokenValidator, seen *shared.OperationContext) *gin.Engine {
	t.Helper()
	router := gin.New()
	router.Use(RequestID(), JWTAuthMiddleware(validator))
	router.GET("/api/v1/ledger/balances/:member_id", func(c *gin.Context) {
		op, ok := GetOperationContext(c)
		require.True(t, ok)
		if seen != nil {
			*seen = op
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/api/v1/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "up"})
	})
	return router
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestJWTAuthMiddleware_ValidToken(t *testing.T) {
	validator := newTestValidator()
	op := shared.OperationContext{CooperativeID: uuid.New(), AdminID: uuid.New()}
	token, err := validator.Issue(op, "kassenwart", time.Hour)
	require.NoError(t, err)

	var seen shared.OperationContext
	router := newProtectedRouter(t, validator, &seen)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/balances/"+uuid.NewString(), nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, op, seen)
}

func TestJWTAuthMiddleware_TenantHeaderIsIgnored(t *testing.T) {
	validator := newTestValidator()
	op := shared.OperationContext{CooperativeID: uuid.New(), AdminID: uuid.New()}
	token, err := validator.Issue(op, "kassenwart", time.Hour)
	require.NoError(t, err)

	var seen shared.OperationContext
	router := newProtectedRouter(t, validator, &seen)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/balances/"+uuid.NewString(), nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+token)
	req.Header.Set("X-Tenant-ID", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, op.CooperativeID, seen.CooperativeID)
}

func TestJWTAuthMiddleware_Rejections(t *testing.T) {
	validator := newTestValidator()
	router := newProtectedRouter(t, validator, nil)

	expired, err := validator.Issue(shared.OperationContext{CooperativeID: uuid.New(), AdminID: uuid.New()}, "x", -time.Minute)
	require.NoError(t, err)

	noTenant, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: uuid.NewString(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", dto.ErrCodeTokenInvalid},
		{"wrong scheme", "Basic abc", dto.ErrCodeTokenInvalid},
		{"empty bearer", BearerPrefix, dto.ErrCodeTokenInvalid},
		{"garbage token", BearerPrefix + "not-a-jwt", dto.ErrCodeTokenInvalid},
		{"expired token", BearerPrefix + expired, dto.ErrCodeTokenExpired},
		{"no tenant claim", BearerPrefix + noTenant, dto.ErrCodeMissingContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/balances/"+uuid.NewString(), nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestJWTAuthMiddleware_SkipsHealth(t *testing.T) {
	router := newProtectedRouter(t, newTestValidator(), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetOperationContext_Unauthenticated(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := GetOperationContext(c)
	assert.False(t, ok)
	assert.Nil(t, GetJWTClaims(c))
}
