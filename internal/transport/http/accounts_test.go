package httptransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/monitoring"
	"github.com/mailmirror/core/internal/orchestrator"
	"github.com/mailmirror/core/internal/provider"
	"github.com/mailmirror/core/internal/store/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type noopAdapter struct{}

func (noopAdapter) TestConnection(ctx context.Context) error { return nil }
func (noopAdapter) ListFolders(ctx context.Context) ([]domain.RawFolder, error) {
	return nil, nil
}
func (noopAdapter) HighestWatermark(ctx context.Context, folder string) (provider.Watermark, error) {
	return provider.Watermark{}, nil
}
func (noopAdapter) FetchSince(ctx context.Context, folder string, since provider.Watermark) ([]provider.FetchedMessage, error) {
	return nil, nil
}

type noopFactory struct{}

func (noopFactory) NewAdapter(ctx context.Context, account *domain.MailAccount) (provider.Adapter, error) {
	return noopAdapter{}, nil
}

type fakeQueue struct{}

func (fakeQueue) Enqueue(ctx context.Context, job *domain.Job) error      { return nil }
func (fakeQueue) Pop(ctx context.Context, name domain.QueueName) (*domain.Job, error) {
	return nil, nil
}
func (fakeQueue) Ack(ctx context.Context, job *domain.Job) error               { return nil }
func (fakeQueue) Retry(ctx context.Context, job *domain.Job, cause error) error { return nil }
func (fakeQueue) PurgeExpired(ctx context.Context) (int, error)                { return 0, nil }

// testMetrics is shared across this package's tests: promauto registers
// against the default registry, so constructing a fresh Metrics per
// test function would panic on the second registration.
var testMetrics = monitoring.NewMetrics()

func newTestAccountHandler(t *testing.T) (*AccountHandler, *memory.Store) {
	t.Helper()
	st := memory.New()
	orch := orchestrator.NewWithFactory(st, nil, fakeQueue{}, noopFactory{}, orchestrator.Config{}, testMetrics, zap.NewNop())
	return NewAccountHandler(orch, st), st
}

func authedContext(method, path, body string, userID string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reqBody *strings.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	} else {
		reqBody = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if userID != "" {
		c.Set("userID", userID)
	}
	return c, w
}

func TestOnboardOAuthCreatesAccount(t *testing.T) {
	h, _ := newTestAccountHandler(t)
	c, w := authedContext(http.MethodPost, "/v1/accounts", `{"email":"user@outlook.com","accessToken":"at","refreshToken":"rt"}`, "user-1")

	h.Onboard(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, w.Body.String(), "user@outlook.com")
}

func TestOnboardRejectsMissingCredential(t *testing.T) {
	h, _ := newTestAccountHandler(t)
	c, w := authedContext(http.MethodPost, "/v1/accounts", `{"email":"user@outlook.com"}`, "user-1")

	h.Onboard(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListReturnsOnlyOwnAccounts(t *testing.T) {
	h, st := newTestAccountHandler(t)
	require.NoError(t, st.CreateAccount(context.Background(), &domain.MailAccount{
		ID: "acc1", UserID: "user-1", Email: "mine@outlook.com", SyncedFolders: domain.NewStringSet(),
	}))
	require.NoError(t, st.CreateAccount(context.Background(), &domain.MailAccount{
		ID: "acc2", UserID: "user-2", Email: "other@outlook.com", SyncedFolders: domain.NewStringSet(),
	}))

	c, w := authedContext(http.MethodGet, "/v1/accounts", "", "user-1")
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "mine@outlook.com")
	require.NotContains(t, w.Body.String(), "other@outlook.com")
}

func TestGetAccountNotOwnedReturns404(t *testing.T) {
	h, st := newTestAccountHandler(t)
	require.NoError(t, st.CreateAccount(context.Background(), &domain.MailAccount{
		ID: "acc1", UserID: "user-2", Email: "other@outlook.com", SyncedFolders: domain.NewStringSet(),
	}))

	c, w := authedContext(http.MethodGet, "/v1/accounts/acc1", "", "user-1")
	c.Params = gin.Params{{Key: "id", Value: "acc1"}}
	h.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteAccountRemovesIt(t *testing.T) {
	h, st := newTestAccountHandler(t)
	require.NoError(t, st.CreateAccount(context.Background(), &domain.MailAccount{
		ID: "acc1", UserID: "user-1", Email: "mine@outlook.com", SyncedFolders: domain.NewStringSet(),
	}))

	c, w := authedContext(http.MethodDelete, "/v1/accounts/acc1", "", "user-1")
	c.Params = gin.Params{{Key: "id", Value: "acc1"}}
	h.Delete(c)
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, w.Code)
	_, err := st.GetAccount(context.Background(), "acc1")
	require.Error(t, err)
}
