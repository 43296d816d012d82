package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tranvanhung2003/digital-world-cart/domain"
	"github.com/tranvanhung2003/digital-world-cart/internal/catalog"
	"github.com/tranvanhung2003/digital-world-cart/internal/repository"
	"github.com/tranvanhung2003/digital-world-cart/internal/service"
)

const testSecret = "test-secret"

type mockService struct {
	m     sync.Mutex
	carts map[string]*domain.Cart

	addErr     error
	mergeCalls [][2]string // {guestOwner, userOwner}
}

func newMockService() *mockService {
	return &mockService{carts: map[string]*domain.Cart{}}
}

func (m *mockService) GetCart(_ context.Context, ownerID string) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if cart, ok := m.carts[ownerID]; ok {
		return cart, nil
	}
	return &domain.Cart{OwnerID: ownerID}, nil
}

func (m *mockService) AddItem(_ context.Context, ownerID string, item domain.CartItem) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	cart, ok := m.carts[ownerID]
	if !ok {
		cart = &domain.Cart{OwnerID: ownerID}
		m.carts[ownerID] = cart
	}
	cart.Items = append(cart.Items, item)
	return nil
}

func (m *mockService) UpdateQuantity(_ context.Context, ownerID, itemID string, quantity int) error {
	m.m.Lock()
	defer m.m.Unlock()
	cart, ok := m.carts[ownerID]
	if !ok {
		return repository.ErrCartNotFound
	}
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			cart.Items[i].Quantity = quantity
			return nil
		}
	}
	return repository.ErrItemNotFound
}

func (m *mockService) RemoveItem(_ context.Context, ownerID, itemID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	cart, ok := m.carts[ownerID]
	if !ok {
		return repository.ErrCartNotFound
	}
	for i, item := range cart.Items {
		if item.ID == itemID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			return nil
		}
	}
	return repository.ErrItemNotFound
}

func (m *mockService) ClearCart(_ context.Context, ownerID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.carts, ownerID)
	return nil
}

func (m *mockService) MergeGuestCart(_ context.Context, guestOwnerID, userOwnerID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.mergeCalls = append(m.mergeCalls, [2]string{guestOwnerID, userOwnerID})
	return nil
}

func setupRouter(svc CartService) http.Handler {
	h := NewCartHandler(svc, 5*time.Second)
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(SessionMiddleware)
	r.Use(AuthMiddleware(HMACVerifier(testSecret)))
	r.Route("/api/v1/cart", h.Routes)
	return r
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}, mutate func(*http.Request)) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func withToken(userID string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+SignToken(testSecret, userID))
	}
}

func withSession(sessionID string) func(*http.Request) {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: sessionCookie, Value: sessionID})
	}
}

func TestGetCart_MintsGuestSessionCookie(t *testing.T) {
	router := setupRouter(newMockService())

	rec := doJSON(t, router, http.MethodGet, "/api/v1/cart", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, sessionCookie, cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
}

func TestGetCart_AuthenticatedUsesUserOwner(t *testing.T) {
	svc := newMockService()
	svc.carts["u1"] = &domain.Cart{
		OwnerID: "u1",
		Items:   []domain.CartItem{{ProductID: "P1", Quantity: 2}},
	}
	router := setupRouter(svc)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/cart", nil, withToken("u1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var cart domain.Cart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cart))
	assert.Equal(t, "u1", cart.OwnerID)
	assert.Len(t, cart.Items, 1)
}

func TestGetCart_InvalidTokenRejected(t *testing.T) {
	router := setupRouter(newMockService())

	rec := doJSON(t, router, http.MethodGet, "/api/v1/cart", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer u1.deadbeef")
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAddItem_GuestGoesToSessionCart(t *testing.T) {
	svc := newMockService()
	router := setupRouter(svc)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{
		ProductID:  "P1",
		Attributes: map[string]string{"color": "red"},
		Quantity:   2,
	}, withSession("s1"))

	require.Equal(t, http.StatusCreated, rec.Code)
	cart, ok := svc.carts["guest:s1"]
	require.True(t, ok, "item should land in the guest session cart")
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "red", cart.Items[0].Attributes["color"])
}

func TestAddItem_Validation(t *testing.T) {
	router := setupRouter(newMockService())

	tests := []struct {
		name string
		body AddItemRequestDTO
		code string
	}{
		{"missing product", AddItemRequestDTO{Quantity: 1}, "invalid_product_id"},
		{"zero quantity", AddItemRequestDTO{ProductID: "P1"}, "invalid_quantity"},
		{"excessive quantity", AddItemRequestDTO{ProductID: "P1", Quantity: 100}, "invalid_quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/v1/cart/items", tt.body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestAddItem_OutOfStockMapsTo400(t *testing.T) {
	svc := newMockService()
	svc.addErr = service.ErrOutOfStock
	router := setupRouter(svc)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{
		ProductID: "P1",
		Quantity:  5,
	}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "out_of_stock", resp.Code)
}

func TestAddItem_ProductNotFoundMapsTo404(t *testing.T) {
	svc := newMockService()
	svc.addErr = catalog.ErrProductNotFound
	router := setupRouter(svc)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{
		ProductID: "gone",
		Quantity:  1,
	}, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateQuantity_UnknownItemMapsTo404(t *testing.T) {
	svc := newMockService()
	svc.carts["u1"] = &domain.Cart{OwnerID: "u1"}
	router := setupRouter(svc)

	rec := doJSON(t, router, http.MethodPut, "/api/v1/cart/items/nope", UpdateQuantityRequestDTO{
		Quantity: 2,
	}, withToken("u1"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMerge_RequiresAuthentication(t *testing.T) {
	router := setupRouter(newMockService())

	rec := doJSON(t, router, http.MethodPost, "/api/v1/cart/merge", nil, withSession("s1"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMerge_FoldsGuestSessionIntoAccount(t *testing.T) {
	svc := newMockService()
	router := setupRouter(svc)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/cart/merge", nil, func(r *http.Request) {
		withToken("u1")(r)
		withSession("s1")(r)
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.mergeCalls, 1)
	assert.Equal(t, [2]string{"guest:s1", "u1"}, svc.mergeCalls[0])
}

func TestClearCart_Responds200(t *testing.T) {
	svc := newMockService()
	svc.carts["u1"] = &domain.Cart{
		OwnerID: "u1",
		Items:   []domain.CartItem{{ProductID: "P1", Quantity: 1}},
	}
	router := setupRouter(svc)

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/cart", nil, withToken("u1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var cart domain.Cart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cart))
	assert.Empty(t, cart.Items)
	_, ok := svc.carts["u1"]
	assert.False(t, ok)
}

func TestSignToken_RoundTrip(t *testing.T) {
	verify := HMACVerifier(testSecret)

	userID, err := verify(SignToken(testSecret, "u1"))
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	_, err = verify(SignToken("other-secret", "u1"))
	assert.Error(t, err)

	_, err = verify("garbage")
	assert.Error(t, err)
}
