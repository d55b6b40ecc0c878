package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/account"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/service/upload"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

const (
	adminPassword = "s3cret-pass"
	jwtSecret     = "test-jwt-secret"
)

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
	return logger.WithField("component", "test")
}

type testEnv struct {
	products domain.ProductRepository
	orders   domain.OrderRepository
	users    domain.UserRepository
	user     domain.User
	handler  http.Handler
}

func newTestEnv(t *testing.T, passwordHash string) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := loggerForTests()
	env := &testEnv{
		products: memory.NewProductRepository(),
		orders:   memory.NewOrderRepository(),
		users:    memory.NewUserRepository(),
	}
	timeline := memory.NewTimelineRepository()
	outbox := memory.NewOutboxRepository()

	require.NoError(t, env.products.Create(ctx, domain.Product{
		ID:         "tshirt",
		Code:       "TS-001",
		Name:       "T-Shirt",
		PriceMinor: 15000,
		Tags:       []string{"summer"},
		Sizes:      []string{"S", "M", "L"},
		Stock:      domain.Stock{"S": 2, "M": 5, "L": 0},
		CreatedAt:  time.Now().UTC(),
	}))
	user, err := env.users.Create(ctx, domain.User{
		FullName: "Bat Erdene",
		Phone:    "99112233",
		Addresses: []domain.Address{
			{Line: "Peace Ave 5", City: "Ulaanbaatar", District: "SBD"},
		},
	})
	require.NoError(t, err)
	env.user = user

	server := httpapi.NewServer(httpapi.Dependencies{
		Catalog:  catalog.NewService(env.products, logger),
		Accounts: account.NewService(env.users, logger),
		Orders:   orders.NewService(env.orders, env.users, outbox, timeline, logger),
		Checkout: checkout.NewService(env.products, env.orders, env.users,
			checkout.WithLogger(logger),
			checkout.WithOutbox(outbox),
			checkout.WithTimeline(timeline),
		),
		Uploads:     upload.NewService(t.TempDir(), upload.WithLogger(logger)),
		Auth:        httpapi.NewAuthenticator(passwordHash, jwtSecret, time.Hour),
		Idempotency: memory.NewIdempotencyRepository(),
		Metrics:     metrics.NewHTTPMetricsWithRegisterer(prometheus.NewRegistry()),
		Logger:      logger,
		Version:     "test",
	})
	env.handler = server.Handler()
	return env
}

func newEnabledEnv(t *testing.T) *testEnv {
	t.Helper()
	hash, err := httpapi.HashPassword(adminPassword)
	require.NoError(t, err)
	return newTestEnv(t, hash)
}

func (env *testEnv) do(t *testing.T, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) adminToken(t *testing.T) map[string]string {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": adminPassword}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return map[string]string{"Authorization": "Bearer " + resp.Token}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type productBody struct {
	ID      string         `json:"id"`
	Code    string         `json:"productCode"`
	Name    string         `json:"name"`
	Stock   map[string]int `json:"stock"`
	InStock bool           `json:"inStock"`
	Tags    []string       `json:"tags"`
}

type orderBody struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	ProductName string `json:"productName"`
	ProductSize string `json:"productSize"`
	Quantity    int    `json:"quantity"`
	TotalMinor  int64  `json:"totalMinor"`
	Status      string `json:"status"`
	City        string `json:"city"`
}

type placeBody struct {
	Orders  []orderBody `json:"orders"`
	Placed  int         `json:"placed"`
	Failure *struct {
		Index     int    `json:"index"`
		Size      string `json:"size"`
		Available *int   `json:"available"`
		Reason    string `json:"reason"`
	} `json:"failure"`
	Error string `json:"error"`
}

type userBody struct {
	ID        string `json:"id"`
	FullName  string `json:"fullName"`
	Phone     string `json:"phone"`
	Addresses []struct {
		ID      string `json:"id"`
		Address string `json:"address"`
		City    string `json:"city"`
	} `json:"addresses"`
	Orders []string `json:"orders"`
}

func (env *testEnv) placeRequest(items ...map[string]any) map[string]any {
	return map[string]any{
		"userId":    env.user.ID,
		"addressId": env.user.Addresses[0].ID,
		"items":     items,
	}
}

func item(size string, qty int) map[string]any {
	return map[string]any{"productId": "tshirt", "size": size, "quantity": qty}
}

func TestProducts(t *testing.T) {
	env := newEnabledEnv(t)

	rec := env.do(t, http.MethodGet, "/api/products?search=shirt", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]productBody](t, rec)
	require.Len(t, list, 1)
	require.True(t, list[0].InStock)
	require.Equal(t, 5, list[0].Stock["M"])

	rec = env.do(t, http.MethodGet, "/api/products/TS-001", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "tshirt", decode[productBody](t, rec).ID)

	rec = env.do(t, http.MethodGet, "/api/tags", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"summer"}, decode[map[string][]string](t, rec)["tags"])

	rec = env.do(t, http.MethodGet, "/api/products/missing", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestPlaceOrders_Created(t *testing.T) {
	env := newEnabledEnv(t)

	rec := env.do(t, http.MethodPost, "/api/orders", env.placeRequest(item("M", 2), item("S", 1)), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[placeBody](t, rec)
	require.Equal(t, 2, resp.Placed)
	require.Nil(t, resp.Failure)
	require.Equal(t, int64(30000), resp.Orders[0].TotalMinor)
	require.Equal(t, "pending", resp.Orders[0].Status)
	require.Equal(t, "Ulaanbaatar", resp.Orders[0].City)

	product, err := env.products.Get(context.Background(), "tshirt")
	require.NoError(t, err)
	require.Equal(t, 3, product.Stock["M"])
	require.Equal(t, 1, product.Stock["S"])

	rec = env.do(t, http.MethodGet, "/api/orders?phone=9911%202233", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]orderBody](t, rec), 2)

	rec = env.do(t, http.MethodGet, "/api/orders/"+resp.Orders[0].ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	details := decode[struct {
		Order    orderBody `json:"order"`
		Timeline []struct {
			Type string `json:"type"`
		} `json:"timeline"`
	}](t, rec)
	require.Equal(t, resp.Orders[0].ID, details.Order.ID)
	require.NotEmpty(t, details.Timeline)
}

func TestPlaceOrders_PartialInsufficientStock(t *testing.T) {
	env := newEnabledEnv(t)

	rec := env.do(t, http.MethodPost, "/api/orders", env.placeRequest(item("M", 1), item("S", 5), item("M", 1)), nil)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	resp := decode[placeBody](t, rec)
	require.Equal(t, 1, resp.Placed)
	require.Len(t, resp.Orders, 1)
	require.NotNil(t, resp.Failure)
	require.Equal(t, 1, resp.Failure.Index)
	require.Equal(t, "insufficient_stock", resp.Failure.Reason)
	require.NotNil(t, resp.Failure.Available)
	require.Equal(t, 2, *resp.Failure.Available)
	require.NotEmpty(t, resp.Error)

	product, err := env.products.Get(context.Background(), "tshirt")
	require.NoError(t, err)
	require.Equal(t, 4, product.Stock["M"])
	require.Equal(t, 2, product.Stock["S"])
}

func TestPlaceOrders_RequestErrors(t *testing.T) {
	env := newEnabledEnv(t)

	cases := []struct {
		name string
		body any
		want int
	}{
		{name: "no items", body: env.placeRequest(), want: http.StatusBadRequest},
		{name: "no user", body: map[string]any{"addressId": "a", "items": []any{item("M", 1)}}, want: http.StatusBadRequest},
		{name: "unknown user", body: map[string]any{"userId": "ghost", "addressId": "a", "items": []any{item("M", 1)}}, want: http.StatusNotFound},
		{name: "unknown product", body: env.placeRequest(map[string]any{"productId": "ghost", "size": "M", "quantity": 1}), want: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/orders", tc.body, nil)
			require.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrders_Idempotency(t *testing.T) {
	env := newEnabledEnv(t)
	headers := map[string]string{"Idempotency-Key": "cart-1"}
	body := env.placeRequest(item("M", 1))

	first := env.do(t, http.MethodPost, "/api/orders", body, headers)
	require.Equal(t, http.StatusCreated, first.Code)

	second := env.do(t, http.MethodPost, "/api/orders", body, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	require.JSONEq(t, first.Body.String(), second.Body.String())

	product, err := env.products.Get(context.Background(), "tshirt")
	require.NoError(t, err)
	require.Equal(t, 4, product.Stock["M"])

	mismatch := env.do(t, http.MethodPost, "/api/orders", env.placeRequest(item("M", 2)), headers)
	require.Equal(t, http.StatusUnprocessableEntity, mismatch.Code)
}

func TestUsers(t *testing.T) {
	env := newEnabledEnv(t)

	rec := env.do(t, http.MethodPost, "/api/users", map[string]any{"fullName": "Saraa", "phone": "8800 1122"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[userBody](t, rec)
	require.Equal(t, "88001122", created.Phone)
	require.Empty(t, created.Orders)

	rec = env.do(t, http.MethodPost, "/api/users", map[string]any{"fullName": "Saraa B", "phone": "88001122"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, created.ID, decode[userBody](t, rec).ID)

	address := map[string]any{"address": "Seoul st 12", "city": "Ulaanbaatar", "district": "CHD"}
	rec = env.do(t, http.MethodPost, "/api/users/addresses", map[string]any{"phone": "88001122", "address": address}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	withAddress := decode[userBody](t, rec)
	require.Len(t, withAddress.Addresses, 1)

	addressID := withAddress.Addresses[0].ID
	rec = env.do(t, http.MethodPut, "/api/users/addresses", map[string]any{
		"phone":   "88001122",
		"address": map[string]any{"id": addressID, "address": "Seoul st 14", "city": "Ulaanbaatar", "district": "CHD"},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "Seoul st 14", decode[userBody](t, rec).Addresses[0].Address)

	rec = env.do(t, http.MethodGet, "/api/users?phone=88001122", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Saraa B", decode[userBody](t, rec).FullName)

	rec = env.do(t, http.MethodDelete, "/api/users/addresses?phone=88001122&addressId="+addressID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[userBody](t, rec).Addresses)

	rec = env.do(t, http.MethodGet, "/api/users?phone=70000000", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/users/addresses", map[string]any{"phone": "88001122", "address": map[string]any{"city": "UB"}}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decode[map[string]any](t, rec), "fields")
}

func TestAdmin_Authorization(t *testing.T) {
	env := newEnabledEnv(t)

	rec := env.do(t, http.MethodGet, "/api/admin/orders", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/orders", nil, map[string]string{"Authorization": "Bearer garbage"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	viewer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, httpapi.Claims{
		Role: "viewer",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	rec = env.do(t, http.MethodGet, "/api/admin/orders", nil, map[string]string{"Authorization": "Bearer " + viewer})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/orders", nil, env.adminToken(t))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdmin_LoginDisabled(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": adminPassword}, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/orders", nil, map[string]string{"Authorization": "Bearer anything"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdmin_CatalogManagement(t *testing.T) {
	env := newEnabledEnv(t)
	auth := env.adminToken(t)

	rec := env.do(t, http.MethodPost, "/api/admin/products", map[string]any{
		"name":       "Hoodie",
		"priceMinor": 45000,
		"tags":       []string{"winter", "summer"},
		"sizes":      []string{"M", "L"},
		"totalStock": 7,
	}, auth)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	hoodie := decode[productBody](t, rec)
	require.Equal(t, map[string]int{"M": 3, "L": 3}, hoodie.Stock)

	rec = env.do(t, http.MethodPut, "/api/admin/products/"+hoodie.ID, map[string]any{
		"name":       "Hoodie v2",
		"priceMinor": 40000,
		"tags":       []string{"winter", "summer"},
		"sizes":      []string{"M", "L"},
	}, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[productBody](t, rec)
	require.Equal(t, "Hoodie v2", updated.Name)
	require.Equal(t, map[string]int{"M": 3, "L": 3}, updated.Stock)

	rec = env.do(t, http.MethodPost, "/api/admin/products", map[string]any{"priceMinor": 10}, auth)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/admin/tags/summer", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(2), decode[map[string]any](t, rec)["products"])

	rec = env.do(t, http.MethodDelete, "/api/admin/products/"+hoodie.ID, nil, auth)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/products/"+hoodie.ID, nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_OrderManagement(t *testing.T) {
	env := newEnabledEnv(t)
	auth := env.adminToken(t)

	rec := env.do(t, http.MethodPost, "/api/orders", env.placeRequest(item("M", 1), item("S", 1)), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	placed := decode[placeBody](t, rec).Orders

	rec = env.do(t, http.MethodGet, "/api/admin/orders?limit=1", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]orderBody](t, rec), 1)

	rec = env.do(t, http.MethodPut, "/api/admin/orders/"+placed[0].ID+"/status", map[string]string{"status": "Delivered"}, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "delivered", decode[orderBody](t, rec).Status)

	rec = env.do(t, http.MethodPut, "/api/admin/orders/"+placed[0].ID+"/status", map[string]string{"status": "lost"}, auth)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/admin/orders/"+placed[1].ID, nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)

	user, err := env.users.Get(context.Background(), env.user.ID)
	require.NoError(t, err)
	require.Equal(t, []string{placed[0].ID}, user.OrderIDs)

	require.NoError(t, env.users.ReplaceOrderIDs(context.Background(), env.user.ID, nil))

	rec = env.do(t, http.MethodPost, "/api/admin/users/"+env.user.ID+"/reindex", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []any{placed[0].ID}, decode[map[string]any](t, rec)["orders"])
}

func TestAdmin_Upload(t *testing.T) {
	env := newEnabledEnv(t)
	auth := env.adminToken(t)

	send := func(name string, content []byte) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/admin/upload", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", auth["Authorization"])
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		return rec
	}

	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}
	rec := send("photo.png", png)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	saved := decode[map[string]any](t, rec)
	url, _ := saved["url"].(string)
	require.True(t, strings.HasPrefix(url, "/uploads/"))
	require.True(t, strings.HasSuffix(url, ".png"))

	rec = env.do(t, http.MethodGet, url, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, png, rec.Body.Bytes())

	rec = send("notes.txt", []byte("plain text is not an image"))
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestOpenAPIDocument(t *testing.T) {
	env := newEnabledEnv(t)

	rec := env.do(t, http.MethodGet, "/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	doc := decode[struct {
		Info struct {
			Version string `json:"version"`
		} `json:"info"`
		Paths      map[string]map[string]any `json:"paths"`
		Components struct {
			SecuritySchemes map[string]any `json:"securitySchemes"`
		} `json:"components"`
	}](t, rec)
	require.Equal(t, "test", doc.Info.Version)
	require.Contains(t, doc.Paths, "/api/orders")
	require.Contains(t, doc.Paths["/api/orders"], "post")
	require.Contains(t, doc.Paths["/api/admin/orders/{id}/status"], "put")
	require.Contains(t, doc.Components.SecuritySchemes, "bearerAuth")
}
