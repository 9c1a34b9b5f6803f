package auth

import (
	"testing"
	"time"

	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/coopledger/backend/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator() *JWTValidator {
	return NewJWTValidator(config.JWTConfig{
		Secret: "test-secret-key-at-least-32-chars",
		Issuer: "test-issuer",
	})
}

func newTestOp() shared.OperationContext {
	return shared.OperationContext{CooperativeID: uuid.New(), AdminID: uuid.New()}
}

func TestValidate_Success(t *testing.T) {
	v := newTestValidator()
	op := newTestOp()

	token, err := v.Issue(op, "kassenwart", 15*time.Minute)
	require.NoError(t, err)

	claims, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "kassenwart", claims.Username)
	assert.InDelta(t, (15 * time.Minute).Seconds(), claims.GetRemainingTTL().Seconds(), 5)

	got, err := claims.OperationContext()
	require.NoError(t, err)
	assert.Equal(t, op, got)
}

func TestValidate_Expired(t *testing.T) {
	v := newTestValidator()
	token, err := v.Issue(newTestOp(), "a", -time.Minute)
	require.NoError(t, err)

	_, err = v.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidate_WrongSecret(t *testing.T) {
	other := NewJWTValidator(config.JWTConfig{Secret: "another-secret-key-at-least-32-ch", Issuer: "test-issuer"})
	token, err := other.Issue(newTestOp(), "a", time.Minute)
	require.NoError(t, err)

	_, err = newTestValidator().Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_WrongIssuer(t *testing.T) {
	other := NewJWTValidator(config.JWTConfig{Secret: "test-secret-key-at-least-32-chars", Issuer: "someone-else"})
	token, err := other.Issue(newTestOp(), "a", time.Minute)
	require.NoError(t, err)

	_, err = newTestValidator().Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_RejectsOtherAlgorithms(t *testing.T) {
	claims := &Claims{TenantID: uuid.NewString(), UserID: uuid.NewString()}
	claims.Issuer = "test-issuer"
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret-key-at-least-32-chars"))
	require.NoError(t, err)

	_, err = newTestValidator().Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_MissingClaims(t *testing.T) {
	sign := func(c *Claims) string {
		c.Issuer = "test-issuer"
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("test-secret-key-at-least-32-chars"))
		require.NoError(t, err)
		return s
	}

	_, err := newTestValidator().Validate(sign(&Claims{UserID: uuid.NewString()}))
	assert.ErrorIs(t, err, ErrMissingTenantID)

	_, err = newTestValidator().Validate(sign(&Claims{TenantID: uuid.NewString()}))
	assert.ErrorIs(t, err, ErrMissingUserID)
}

func TestClaims_OperationContext(t *testing.T) {
	_, err := (&Claims{TenantID: "not-a-uuid", UserID: uuid.NewString()}).OperationContext()
	assert.ErrorIs(t, err, ErrInvalidClaims)

	_, err = (&Claims{TenantID: uuid.Nil.String(), UserID: uuid.NewString()}).OperationContext()
	assert.ErrorIs(t, err, shared.ErrMissingOperationCtx)
}
