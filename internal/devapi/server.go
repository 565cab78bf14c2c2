package devapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/five82/kiosk/internal/shop"
)

const (
	headerTenant   = "X-Tenant-ID"
	headerCustomer = "X-Customer-ID"

	maxBodyBytes = 64 * 1024
)

type ctxKey int

const (
	tenantKey ctxKey = iota
	customerKey
)

// Options configure a Server.
type Options struct {
	Store           *Store
	Logger          *slog.Logger
	ProcessingDelay time.Duration
	// Seed installs the demo catalog the first time a tenant is seen.
	Seed bool
}

// Server serves the storefront REST API from a Store.
type Server struct {
	store  *Store
	logger *slog.Logger
	delay  time.Duration
	seed   bool
	now    func() time.Time

	seeded sync.Map // tenant -> struct{}
}

// NewServer returns a Server over opts.Store.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		store:  opts.Store,
		logger: logger.With("component", "devapi"),
		delay:  opts.ProcessingDelay,
		seed:   opts.Seed,
		now:    time.Now,
	}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireTenant)

		r.Get("/products", s.handleListProducts)
		r.Get("/products/{id}", s.handleGetProduct)
		r.Post("/products/{id}/images", s.handleUploadImage)

		for _, kind := range []shop.Kind{shop.KindCart, shop.KindWishlist} {
			r.Route("/"+string(kind), func(r chi.Router) {
				r.Use(requireCustomer)
				r.Get("/", s.collection(kind, s.listItems))
				r.Delete("/", s.collection(kind, s.clearItems))
				r.Post("/items", s.collection(kind, s.addItem))
				r.Patch("/items/{itemId}", s.collection(kind, s.updateItem))
				r.Delete("/items/{itemId}", s.collection(kind, s.removeItem))
			})
		}
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		level := slog.LevelInfo
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := strings.TrimSpace(r.Header.Get(headerTenant))
		if tenant == "" {
			writeError(w, http.StatusBadRequest, headerTenant+" header is required")
			return
		}
		if err := s.ensureSeeded(r.Context(), tenant); err != nil {
			s.logger.Error("seed catalog failed", "tenant", tenant, "error", err)
			writeError(w, http.StatusInternalServerError, "Could not prepare catalog")
			return
		}
		ctx := context.WithValue(r.Context(), tenantKey, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		customer := strings.TrimSpace(r.Header.Get(headerCustomer))
		if customer == "" {
			writeError(w, http.StatusBadRequest, headerCustomer+" header is required")
			return
		}
		ctx := context.WithValue(r.Context(), customerKey, customer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) ensureSeeded(ctx context.Context, tenant string) error {
	if !s.seed {
		return nil
	}
	if _, ok := s.seeded.Load(tenant); ok {
		return nil
	}
	if err := s.store.Seed(ctx, tenant); err != nil {
		return err
	}
	s.seeded.Store(tenant, struct{}{})
	return nil
}

func tenantFrom(ctx context.Context) string {
	v, _ := ctx.Value(tenantKey).(string)
	return v
}

func ownerFrom(ctx context.Context, kind shop.Kind) Owner {
	customer, _ := ctx.Value(customerKey).(string)
	return Owner{Tenant: tenantFrom(ctx), Customer: customer, Kind: kind}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.store.ListProducts(r.Context(), tenantFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shop.ProductListResponse{Items: products})
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.store.GetProduct(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

type uploadRequest struct {
	ImageURL string `json:"imageUrl"`
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if !decode(w, r, &req) {
		return
	}
	readyAt := s.now().Add(s.delay)
	product, err := s.store.SetImage(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"), strings.TrimSpace(req.ImageURL), readyAt)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("image processing started", "product", product.ID, "ready_at", readyAt)
	writeJSON(w, http.StatusAccepted, product)
}

type collectionHandler func(r *http.Request, o Owner) ([]shop.Item, error)

// collection adapts a collection operation to a handler that always answers
// with the full resulting collection.
func (s *Server) collection(kind shop.Kind, op collectionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := op(r, ownerFrom(r.Context(), kind))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, shop.Collection{Items: items})
	}
}

func (s *Server) listItems(r *http.Request, o Owner) ([]shop.Item, error) {
	return s.store.ListItems(r.Context(), o)
}

func (s *Server) clearItems(r *http.Request, o Owner) ([]shop.Item, error) {
	return s.store.ClearItems(r.Context(), o)
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
}

func (s *Server) addItem(r *http.Request, o Owner) ([]shop.Item, error) {
	var req addItemRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ProductID) == "" {
		return nil, fmt.Errorf("%w: productId is required", ErrInvalid)
	}
	return s.store.AddItem(r.Context(), o, req.ProductID, req.VariantID, req.Quantity)
}

func (s *Server) updateItem(r *http.Request, o Owner) ([]shop.Item, error) {
	var req updateItemRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if req.Quantity == nil {
		return nil, fmt.Errorf("%w: quantity is required", ErrInvalid)
	}
	return s.store.UpdateItem(r.Context(), o, chi.URLParam(r, "itemId"), *req.Quantity)
}

func (s *Server) removeItem(r *http.Request, o Owner) ([]shop.Item, error) {
	return s.store.RemoveItem(r.Context(), o, chi.URLParam(r, "itemId"))
}

func decodeBody(r *http.Request, dest any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("%w: request body must be JSON", ErrInvalid)
	}
	return nil
}

func decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeBody(r, dest); err != nil {
		writeError(w, http.StatusBadRequest, "Request body must be JSON")
		return false
	}
	return true
}

// fail maps store errors to status codes with a human readable message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, notFoundMessage(err))
	case errors.Is(err, ErrInvalid):
		writeError(w, http.StatusBadRequest, invalidMessage(err))
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func notFoundMessage(err error) string {
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "product"):
		return "Product not found"
	case strings.HasPrefix(msg, "variant"):
		return "Variant not found"
	case strings.HasPrefix(msg, "item"):
		return "Item not found"
	default:
		return "Not found"
	}
}

func invalidMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	if msg == "" {
		return "Invalid request"
	}
	return msg
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, shop.ErrorResponse{Message: message})
}
