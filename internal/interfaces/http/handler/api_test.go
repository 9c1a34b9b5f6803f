package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	approvalapp "github.com/coopledger/backend/internal/application/approval"
	bankingapp "github.com/coopledger/backend/internal/application/banking"
	billingapp "github.com/coopledger/backend/internal/application/billing"
	equipmentapp "github.com/coopledger/backend/internal/application/equipment"
	ledgerapp "github.com/coopledger/backend/internal/application/ledger"
	"github.com/coopledger/backend/internal/domain/shared"
	"github.com/coopledger/backend/internal/infrastructure/auth"
	"github.com/coopledger/backend/internal/infrastructure/cache"
	"github.com/coopledger/backend/internal/infrastructure/config"
	"github.com/coopledger/backend/internal/infrastructure/persistence"
	"github.com/coopledger/backend/internal/infrastructure/persistence/persistencetest"
	"github.com/coopledger/backend/internal/interfaces/http/dto"
	"github.com/coopledger/backend/internal/interfaces/http/handler"
	"github.com/coopledger/backend/internal/interfaces/http/middleware"
	"github.com/coopledger/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

const maxStatementSize = 64 << 10

// apiHarness serves the full API on an in-memory database. Requests are
// authenticated as the fixture's admin unless another token is passed.
type apiHarness struct {
	*persistencetest.Fixture
	engine    *gin.Engine
	validator *auth.JWTValidator
	token     string
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	f := persistencetest.NewFixture(t)

	scope := persistence.NewGormTransactionScope(f.DB)
	writer := ledgerapp.NewPostingWriter(nil)
	members := persistence.NewGormMemberDirectory(f.DB)
	machines := persistence.NewGormMachineRegistry(f.DB)
	usage := persistence.NewGormUsageEventRepository(f.DB)
	dualControl := approvalapp.NewDualControlService(cache.NewInMemoryApprovalStore(), time.Hour, nil)

	ledgerService := ledgerapp.NewLedgerService(
		scope,
		persistence.NewGormPostingRepository(f.DB),
		persistence.NewGormBalanceRepository(f.DB),
		members,
		writer,
		dualControl,
		nil,
	)
	billingService := billingapp.NewBillingService(scope, persistence.NewGormInvoiceRepository(f.DB), members, machines, usage, writer, nil)
	importService := bankingapp.NewImportService(
		persistence.NewGormImportProfileRepository(f.DB),
		persistence.NewGormBankTransactionRepository(f.DB),
		nil,
		nil,
		bankingapp.ImportOptions{MaxFileSize: maxStatementSize, MaxRowErrors: 20},
	)
	classificationService := bankingapp.NewClassificationService(scope, members, machines, writer, nil)

	validator := auth.NewJWTValidator(config.JWTConfig{Secret: "handler-test-secret-0123456789abcdef", Issuer: "coop-ledger-test"})
	engine := router.NewEngine(router.EngineConfig{
		TokenValidator: validator,
		CORS:           middleware.DefaultCORSConfig(),
		MaxBodySize:    1 << 20,
	}, router.Handlers{
		Billing:  handler.NewBillingHandler(billingService),
		Banking:  handler.NewBankingHandler(importService, classificationService, maxStatementSize),
		Ledger:   handler.NewLedgerHandler(ledgerService),
		Approval: handler.NewApprovalHandler(dualControl),
		Usage:    handler.NewUsageHandler(equipmentapp.NewUsageService(machines, usage, members)),
		System:   handler.NewSystemHandler("coop-ledger", "test", nil),
	})

	h := &apiHarness{Fixture: f, engine: engine, validator: validator}
	h.token = h.tokenFor(t, f.Op)
	return h
}

func (h *apiHarness) tokenFor(t *testing.T, op shared.OperationContext) string {
	t.Helper()
	token, err := h.validator.Issue(op, "kassenwart", time.Hour)
	require.NoError(t, err)
	return token
}

// secondAdmin returns a token for another admin of the same cooperative
func (h *apiHarness) secondAdmin(t *testing.T) string {
	t.Helper()
	return h.tokenFor(t, shared.OperationContext{CooperativeID: h.Op.CooperativeID, AdminID: uuid.New()})
}

func (h *apiHarness) send(t *testing.T, req *http.Request, token string) *httptest.ResponseRecorder {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

// do sends body as JSON with the fixture admin's token
func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return h.doAs(t, h.token, method, path, body)
}

func (h *apiHarness) doAs(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return h.send(t, req, token)
}

type envelope[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data"`
	Error   *dto.ErrorInfo `json:"error"`
	Meta    *dto.Meta      `json:"meta"`
}

// decode requires the given status and returns the response data
func decode[T any](t *testing.T, rec *httptest.ResponseRecorder, status int) T {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	var resp envelope[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success, rec.Body.String())
	return resp.Data
}

// errorCode requires the given status and returns the error code
func errorCode(t *testing.T, rec *httptest.ResponseRecorder, status int) string {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	var resp envelope[json.RawMessage]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func list[T any](t *testing.T, rec *httptest.ResponseRecorder) ([]T, *dto.Meta) {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp envelope[[]T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Meta)
	return resp.Data, resp.Meta
}
