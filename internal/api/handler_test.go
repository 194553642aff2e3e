package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"canteen-service/internal/models"
	"canteen-service/internal/service"
	"canteen-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
)

type HandlerSuite struct {
	suite.Suite
	repo   *store.Memory
	auth   *Authenticator
	router *gin.Engine
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	s.repo = store.NewMemory()
	s.auth = NewAuthenticator("test-secret", "canteen-test")
	retry := service.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	h := NewHandler(
		service.NewOrderService(s.repo, nil, service.OrderOptions{Retry: retry}),
		service.NewAccountService(s.repo, retry, 20000),
		service.NewCatalogService(s.repo, nil, time.Minute),
		service.NewStatsService(s.repo),
		s.auth,
	)
	s.router = gin.New()
	h.SetupRoutes(s.router)

	ctx := context.Background()
	s.Require().NoError(s.repo.CreateAccount(ctx, &models.Account{ID: "staff", Name: "Staff", IsStaff: true, IsAvailable: true}))
	s.Require().NoError(s.repo.CreateAccount(ctx, &models.Account{ID: "alice", Name: "Alice", Balance: 500, IsAvailable: true}))
	s.Require().NoError(s.repo.CreateAccount(ctx, &models.Account{ID: "bob", Name: "Bob", Balance: 500, IsAvailable: true}))

	stock := int64(2)
	s.Require().NoError(s.repo.CreateProduct(ctx, &models.Product{
		ID:             "sandwich",
		Name:           "Sandwich",
		Type:           models.ProductTypeSnack,
		SizeWithPrices: map[string]int64{"M": 300},
		IsAvailable:    true,
		Stock:          &stock,
	}))
}

func (s *HandlerSuite) token(accountID string) string {
	tok, err := s.auth.issueToken(accountID, time.Hour)
	s.Require().NoError(err)
	return tok
}

func (s *HandlerSuite) do(method, path, accountID string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			s.Require().NoError(json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if accountID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(accountID))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) decode(w *httptest.ResponseRecorder, v interface{}) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), v))
}

func (s *HandlerSuite) balance(id string) int64 {
	a, err := s.repo.GetAccount(context.Background(), id)
	s.Require().NoError(err)
	return a.Balance
}

func orderBody(account string, qty int64) gin.H {
	return gin.H{
		"account_id": account,
		"lines": []gin.H{
			{"product_id": "sandwich", "size_with_quantities": gin.H{"M": qty}},
		},
	}
}

func (s *HandlerSuite) TestHealth() {
	w := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/ready", "", nil)
	s.Equal(http.StatusOK, w.Code)
}

func (s *HandlerSuite) TestRequiresToken() {
	w := s.do(http.MethodPost, "/api/v1/orders", "", orderBody("alice", 1))
	s.Equal(http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)

	other := NewAuthenticator("other-secret", "canteen-test")
	forged, err := other.issueToken("staff", time.Hour)
	s.Require().NoError(err)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestMakeOrder() {
	w := s.do(http.MethodPost, "/api/v1/orders", "staff", orderBody("alice", 1))
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var res service.OrderResult
	s.decode(w, &res)
	s.True(res.Success)
	s.Equal(int64(300), res.Price)
	s.Equal(int64(200), s.balance("alice"))

	w = s.do(http.MethodGet, "/api/v1/transactions/"+res.TransactionID, "alice", nil)
	s.Equal(http.StatusOK, w.Code)
	var view struct {
		Kind        string       `json:"kind"`
		Transaction models.Order `json:"transaction"`
	}
	s.decode(w, &view)
	s.Equal("order", view.Kind)
	s.Equal(models.OrderStatePreparing, view.Transaction.State)

	w = s.do(http.MethodGet, "/api/v1/transactions/"+res.TransactionID, "bob", nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HandlerSuite) TestMakeOrderIgnoresClaimedPrice() {
	body := orderBody("alice", 1)
	body["price"] = 1
	body["lines"] = []gin.H{
		{"product_id": "sandwich", "size_with_quantities": gin.H{"M": 1}, "price": 1, "unit_prices": gin.H{"M": 1}},
	}

	w := s.do(http.MethodPost, "/api/v1/orders", "staff", body)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var res service.OrderResult
	s.decode(w, &res)
	s.Equal(int64(300), res.Price)
	s.Equal(int64(200), s.balance("alice"))
}

func (s *HandlerSuite) TestMakeOrderReplay() {
	first := s.do(http.MethodPost, "/api/v1/orders", "staff", orderBody("alice", 1), "Idempotency-Key", "till-1-42")
	s.Require().Equal(http.StatusCreated, first.Code)

	second := s.do(http.MethodPost, "/api/v1/orders", "staff", orderBody("alice", 1), "Idempotency-Key", "till-1-42")
	s.Require().Equal(http.StatusOK, second.Code)

	var a, b service.OrderResult
	s.decode(first, &a)
	s.decode(second, &b)
	s.Equal(a.TransactionID, b.TransactionID)
	s.True(b.Replayed)
	s.Equal(int64(200), s.balance("alice"))
}

func (s *HandlerSuite) TestMakeOrderFailureStatus() {
	tests := []struct {
		name   string
		actor  string
		body   interface{}
		status int
		kind   service.ErrorKind
	}{
		{"insufficient balance", "staff", orderBody("alice", 2), http.StatusForbidden, service.KindPermissionDenied},
		{"out of stock", "staff", orderBody("bob", 3), http.StatusConflict, service.KindResourceExhausted},
		{"unknown account", "staff", orderBody("nobody", 1), http.StatusNotFound, service.KindNotFound},
		{"customer caller", "alice", orderBody("alice", 1), http.StatusForbidden, service.KindPermissionDenied},
		{"unknown caller", "ghost", orderBody("alice", 1), http.StatusUnauthorized, service.KindUnauthenticated},
		{"negative quantity", "staff", orderBody("alice", -1), http.StatusBadRequest, service.KindInvalidArgument},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			w := s.do(http.MethodPost, "/api/v1/orders", tt.actor, tt.body)
			s.Equal(tt.status, w.Code, w.Body.String())

			var res service.OrderResult
			s.decode(w, &res)
			s.False(res.Success)
			s.Equal(tt.kind, res.ErrorKind)
		})
	}
	s.Equal(int64(500), s.balance("alice"))
}

func (s *HandlerSuite) TestMakeOrderInternalFailureHidesCause() {
	s.repo.FailOn(store.OpCommit, errors.New("disk full"))

	w := s.do(http.MethodPost, "/api/v1/orders", "staff", orderBody("alice", 1))
	s.Equal(http.StatusInternalServerError, w.Code, w.Body.String())
	s.NotContains(w.Body.String(), "disk full")

	var res service.OrderResult
	s.decode(w, &res)
	s.Equal(service.KindInternal, res.ErrorKind)
	s.Empty(res.Cause)
	s.Equal(int64(500), s.balance("alice"))
}

func (s *HandlerSuite) TestMalformedBody() {
	w := s.do(http.MethodPost, "/api/v1/orders", "staff", "{")
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestOrderLifecycle() {
	w := s.do(http.MethodPost, "/api/v1/orders", "staff", orderBody("alice", 1))
	s.Require().Equal(http.StatusCreated, w.Code)
	var res service.OrderResult
	s.decode(w, &res)

	w = s.do(http.MethodGet, "/api/v1/orders", "staff", nil)
	s.Equal(http.StatusOK, w.Code)
	var queue struct {
		Orders []models.Order `json:"orders"`
	}
	s.decode(w, &queue)
	s.Len(queue.Orders, 1)

	w = s.do(http.MethodGet, "/api/v1/orders?state=eaten", "staff", nil)
	s.Equal(http.StatusBadRequest, w.Code)

	path := "/api/v1/orders/" + res.TransactionID + "/state"
	w = s.do(http.MethodPatch, path, "staff", gin.H{"state": "served"})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPatch, path, "staff", gin.H{"state": "cancelled"})
	s.Equal(http.StatusOK, w.Code)
	s.Equal(int64(500), s.balance("alice"))

	w = s.do(http.MethodPost, "/api/v1/orders/"+res.TransactionID+"/cash-in", "staff", nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestRechargeAndLedger() {
	w := s.do(http.MethodPost, "/api/v1/accounts/alice/recharge", "staff", gin.H{"amount": 1500})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	s.Equal(int64(2000), s.balance("alice"))

	w = s.do(http.MethodPost, "/api/v1/accounts/alice/recharge", "staff", gin.H{"amount": 999999})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/accounts/alice/transactions?limit=10", "alice", nil)
	s.Equal(http.StatusOK, w.Code)
	var ledger struct {
		Transactions []struct {
			Kind string `json:"kind"`
		} `json:"transactions"`
	}
	s.decode(w, &ledger)
	s.Require().Len(ledger.Transactions, 1)
	s.Equal("recharge", ledger.Transactions[0].Kind)

	w = s.do(http.MethodGet, "/api/v1/accounts/alice/transactions?limit=x", "alice", nil)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/accounts/alice", "bob", nil)
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *HandlerSuite) TestCatalog() {
	w := s.do(http.MethodPatch, "/api/v1/products/sandwich/availability", "staff", gin.H{"is_available": false})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/v1/orders", "staff", orderBody("alice", 1))
	s.Equal(http.StatusConflict, w.Code)
	var res service.OrderResult
	s.decode(w, &res)
	s.Equal(service.KindUnavailable, res.ErrorKind)

	w = s.do(http.MethodPatch, "/api/v1/products/sandwich/availability", "staff", gin.H{})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPatch, "/api/v1/products/sandwich/stock", "staff", gin.H{"stock": nil})
	s.Require().Equal(http.StatusOK, w.Code)
	var p models.Product
	s.decode(w, &p)
	s.Nil(p.Stock)

	w = s.do(http.MethodPost, "/api/v1/products", "staff", gin.H{
		"name":             "Tea",
		"type":             "drink",
		"size_with_prices": gin.H{"S": 90},
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/v1/products", "alice", nil)
	s.Equal(http.StatusOK, w.Code)
	var listing struct {
		Products []models.Product `json:"products"`
	}
	s.decode(w, &listing)
	s.Len(listing.Products, 2)

	w = s.do(http.MethodGet, "/api/v1/stats", "staff", nil)
	s.Equal(http.StatusOK, w.Code)
}
