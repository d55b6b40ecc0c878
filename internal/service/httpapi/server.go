package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/account"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/service/upload"
)

const tracerName = "github.com/vladislavdragonenkov/storefront/internal/service/httpapi"

// Dependencies — сервисы, которые обслуживает HTTP API.
// Idempotency, Metrics, Uploads и Tracer необязательны.
type Dependencies struct {
	Catalog     *catalog.Service
	Accounts    *account.Service
	Orders      *orders.Service
	Checkout    *checkout.Service
	Uploads     *upload.Service
	Auth        *Authenticator
	Idempotency domain.IdempotencyRepository
	Metrics     *metrics.HTTPMetrics
	Tracer      trace.Tracer
	Logger      *log.Entry
	Version     string
}

// Server — HTTP JSON API витрины.
type Server struct {
	catalog  *catalog.Service
	accounts *account.Service
	orders   *orders.Service
	checkout *checkout.Service
	uploads  *upload.Service
	auth     *Authenticator
	idemRepo domain.IdempotencyRepository
	metrics  *metrics.HTTPMetrics
	tracer   trace.Tracer
	logger   *log.Entry
	version  string

	validate   *validator.Validate
	propagator propagation.TextMapPropagator

	docOnce sync.Once
	doc     []byte
	docErr  error
}

// NewServer собирает HTTP API.
func NewServer(deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	auth := deps.Auth
	if auth == nil {
		auth = NewAuthenticator("", "", 0)
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	return &Server{
		catalog:    deps.Catalog,
		accounts:   deps.Accounts,
		orders:     deps.Orders,
		checkout:   deps.Checkout,
		uploads:    deps.Uploads,
		auth:       auth,
		idemRepo:   deps.Idempotency,
		metrics:    deps.Metrics,
		tracer:     tracer,
		logger:     logger,
		version:    version,
		validate:   newValidator(),
		propagator: propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	}
}

// route описывает маршрут; та же таблица используется для OpenAPI-документа.
type route struct {
	method   string
	path     string
	summary  string
	admin    bool
	query    []string
	request  any
	response any
	status   int
	handler  http.HandlerFunc
}

func (s *Server) routes() []route {
	return []route{
		{method: http.MethodGet, path: "/api/products", summary: "List products", query: []string{"search", "tag", "limit"}, response: []productResponse{}, handler: s.listProducts},
		{method: http.MethodGet, path: "/api/products/{id}", summary: "Get product by id or legacy code", response: productResponse{}, handler: s.getProduct},
		{method: http.MethodGet, path: "/api/tags", summary: "List tags", response: tagsResponse{}, handler: s.listTags},

		{method: http.MethodPost, path: "/api/orders", summary: "Place orders for a cart", request: placeOrdersRequest{}, response: placeOrdersResponse{}, status: http.StatusCreated, handler: s.idempotent(s.placeOrders)},
		{method: http.MethodGet, path: "/api/orders", summary: "List orders of a user", query: []string{"userId", "phone", "limit"}, response: []orderResponse{}, handler: s.listOrders},
		{method: http.MethodGet, path: "/api/orders/{id}", summary: "Get order with timeline", response: orderDetailsResponse{}, handler: s.getOrder},

		{method: http.MethodGet, path: "/api/users", summary: "Find user by phone", query: []string{"phone"}, response: userResponse{}, handler: s.findUser},
		{method: http.MethodPost, path: "/api/users", summary: "Create or update user", request: registerRequest{}, response: userResponse{}, status: http.StatusCreated, handler: s.registerUser},
		{method: http.MethodPost, path: "/api/users/addresses", summary: "Add address", request: addressRequest{}, response: userResponse{}, handler: s.addAddress},
		{method: http.MethodPut, path: "/api/users/addresses", summary: "Update address", request: addressRequest{}, response: userResponse{}, handler: s.updateAddress},
		{method: http.MethodDelete, path: "/api/users/addresses", summary: "Remove address", query: []string{"phone", "addressId"}, response: userResponse{}, handler: s.removeAddress},

		{method: http.MethodPost, path: "/api/admin/login", summary: "Admin login", request: loginRequest{}, response: loginResponse{}, handler: s.login},
		{method: http.MethodPost, path: "/api/admin/products", summary: "Create product", admin: true, request: productRequest{}, response: productResponse{}, status: http.StatusCreated, handler: s.createProduct},
		{method: http.MethodPut, path: "/api/admin/products/{id}", summary: "Update product", admin: true, request: productRequest{}, response: productResponse{}, handler: s.updateProduct},
		{method: http.MethodDelete, path: "/api/admin/products/{id}", summary: "Delete product", admin: true, status: http.StatusNoContent, handler: s.deleteProduct},
		{method: http.MethodDelete, path: "/api/admin/tags/{tag}", summary: "Remove tag from all products", admin: true, response: removeTagResponse{}, handler: s.removeTag},
		{method: http.MethodGet, path: "/api/admin/orders", summary: "List all orders", admin: true, query: []string{"limit"}, response: []orderResponse{}, handler: s.listAllOrders},
		{method: http.MethodPut, path: "/api/admin/orders/{id}/status", summary: "Update order status", admin: true, request: statusRequest{}, response: orderResponse{}, handler: s.idempotent(s.updateOrderStatus)},
		{method: http.MethodDelete, path: "/api/admin/orders/{id}", summary: "Delete order", admin: true, response: orderResponse{}, handler: s.deleteOrder},
		{method: http.MethodPost, path: "/api/admin/users/{id}/reindex", summary: "Rebuild user order index", admin: true, response: reindexResponse{}, handler: s.reindexUser},
		{method: http.MethodPost, path: "/api/admin/upload", summary: "Upload product image", admin: true, response: uploadResponse{}, status: http.StatusCreated, handler: s.uploadImage},
	}
}

// Handler возвращает корневой обработчик со всеми маршрутами.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	requireAdmin := s.auth.RequireRole(RoleAdmin)

	for _, rt := range s.routes() {
		var h http.Handler = rt.handler
		if rt.admin {
			h = requireAdmin(h)
		}
		mux.Handle(rt.method+" "+rt.path, h)
	}

	mux.HandleFunc("GET /openapi.json", s.openAPI)
	if s.uploads != nil {
		prefix := s.uploads.PublicPrefix() + "/"
		mux.Handle("GET "+prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(s.uploads.Dir()))))
	}

	return s.observe(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// observe извлекает W3C trace context, открывает span запроса, проставляет
// X-Request-ID, пишет метрики и лог.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := s.propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx, span := s.tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
				attribute.String("request.id", requestID),
			),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		req := r.WithContext(ctx)
		next.ServeHTTP(rec, req)

		route := req.Pattern
		if route != "" {
			span.SetName(route)
		}
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", rec.status),
		)
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		} else {
			span.SetStatus(codes.Ok, "")
		}

		elapsed := time.Since(start)
		s.metrics.Observe(r.Method, route, rec.status, elapsed)

		fields := log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": elapsed.Milliseconds(),
			"request_id":  requestID,
		}
		if sc := span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
		}
		s.logger.WithFields(fields).Debug("http request")
	})
}
