package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/services"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI serves a fixed library over the same routes as the real server and counts requests
type fakeAPI struct {
	mu    sync.Mutex
	hits  map[string]int
	fines map[int64]models.Fine
}

func (f *fakeAPI) hit(pattern string) {
	f.mu.Lock()
	f.hits[pattern]++
	f.mu.Unlock()
}

func (f *fakeAPI) count(pattern string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[pattern]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newFakeAPI(t *testing.T) (*fakeAPI, *Client) {
	t.Helper()
	api := &fakeAPI{
		hits: map[string]int{},
		fines: map[int64]models.Fine{
			1: {ID: 1, TransactionID: 10, MemberID: 1, Amount: decimal.RequireFromString("2.50"), FineType: models.FineLateReturn, Status: models.FinePending},
			2: {ID: 2, TransactionID: 11, MemberID: 2, Amount: decimal.RequireFromString("20.00"), FineType: models.FineDamagedItem, Status: models.FinePaid},
		},
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			api.hit(req.Method + " " + chi.RouteContext(req.Context()).RoutePattern())
		})
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/books", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, []models.Book{
				{ID: 1, Title: "Dune", TotalCopies: 3, AvailableCopies: 1},
				{ID: 2, Title: "Emma", TotalCopies: 2, AvailableCopies: 2},
			})
		})
		r.Get("/books/{id}", func(w http.ResponseWriter, req *http.Request) {
			if chi.URLParam(req, "id") != "1" {
				writeJSON(w, http.StatusNotFound, services.ErrorResponse{Error: "Book not found"})
				return
			}
			writeJSON(w, http.StatusOK, models.Book{ID: 1, Title: "Dune", TotalCopies: 3, AvailableCopies: 1})
		})
		r.Get("/members", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, []models.Member{
				{ID: 1, Name: "Ada", MembershipStatus: models.MembershipActive},
				{ID: 2, Name: "Grace", MembershipStatus: models.MembershipInactive},
			})
		})
		r.Get("/transactions/overdue", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, []models.Transaction{{ID: 10, BookID: 1, MemberID: 1, Status: models.TransactionOverdue}})
		})
		r.Post("/transactions/borrow", func(w http.ResponseWriter, req *http.Request) {
			var body models.BorrowRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, services.ErrorResponse{Error: "Invalid request body"})
				return
			}
			borrowed := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
			writeJSON(w, http.StatusCreated, models.Transaction{
				ID: 12, BookID: body.BookID, MemberID: body.MemberID, Status: models.TransactionBorrowed,
				BorrowDate: borrowed, DueDate: models.DueDateFor(borrowed, 14),
			})
		})
		r.Get("/fines/pending", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, services.FineSummary{
				FineTotal: models.FineTotal{Status: models.FinePending, Total: decimal.RequireFromString("2.50"), Count: 1},
				Fines:     []models.Fine{api.fines[1]},
			})
		})
		r.Get("/fines/collected", func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Query().Get("from") == "" || req.URL.Query().Get("to") == "" {
				writeJSON(w, http.StatusBadRequest, services.ErrorResponse{Error: "Invalid date range"})
				return
			}
			writeJSON(w, http.StatusOK, models.FineTotal{Status: models.FinePaid, Total: decimal.RequireFromString("20.00"), Count: 1})
		})
		r.Put("/fines/update-fines", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, services.SweepResult{RunID: "run-1", Repriced: 1})
		})
		r.Get("/fines/{id}", func(w http.ResponseWriter, req *http.Request) {
			id, _ := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
			api.mu.Lock()
			f, ok := api.fines[id]
			api.mu.Unlock()
			if !ok {
				writeJSON(w, http.StatusNotFound, services.ErrorResponse{Error: "Fine not found"})
				return
			}
			writeJSON(w, http.StatusOK, f)
		})
		r.Put("/fines/{id}/{action}", func(w http.ResponseWriter, req *http.Request) {
			id, _ := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
			api.mu.Lock()
			defer api.mu.Unlock()
			f, ok := api.fines[id]
			if !ok {
				writeJSON(w, http.StatusNotFound, services.ErrorResponse{Error: "Fine not found"})
				return
			}
			if err := f.Apply(models.FineAction(chi.URLParam(req, "action")), time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)); err != nil {
				writeJSON(w, http.StatusConflict, services.ErrorResponse{Error: err.Error()})
				return
			}
			api.fines[id] = f
			writeJSON(w, http.StatusOK, f)
		})
		r.Get("/notifications/stats", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, models.NotificationStats{Total: 4, ByStatus: map[models.NotificationStatus]int{models.NotificationSent: 3, models.NotificationFailed: 1}})
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return api, NewClient(srv.URL+"/", srv.Client())
}

func TestClient_GetIsCached(t *testing.T) {
	api, client := newFakeAPI(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b, err := client.GetBook(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Dune", b.Title)
	}
	assert.Equal(t, 1, api.count("GET /api/books/{id}"))

	// listing primes the cache for every entity it returns
	_, err := client.ListBooks(ctx, "")
	require.NoError(t, err)
	_, err = client.GetBook(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, api.count("GET /api/books/{id}"))
}

func TestClient_APIError(t *testing.T) {
	api, client := newFakeAPI(t)
	ctx := context.Background()

	_, err := client.GetBook(ctx, 99)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Book not found", apiErr.Message)
	assert.True(t, IsNotFound(err))

	cause, ok := errors.Cause(err).(*APIError)
	require.True(t, ok)
	assert.Equal(t, apiErr, cause)

	// failures are not cached
	_, err = client.GetBook(ctx, 99)
	require.Error(t, err)
	assert.Equal(t, 2, api.count("GET /api/books/{id}"))
}

func TestClient_FineActionsRefreshCache(t *testing.T) {
	api, client := newFakeAPI(t)
	ctx := context.Background()

	f, err := client.GetFine(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.FinePending, f.Status)

	paid, err := client.PayFine(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.FinePaid, paid.Status)

	f, err = client.GetFine(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.FinePaid, f.Status)
	assert.Equal(t, 1, api.count("GET /api/fines/{id}"))

	// paying twice is rejected and drops the cached copy
	_, err = client.PayFine(ctx, 1)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	_, err = client.GetFine(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, api.count("GET /api/fines/{id}"))

	reversed, err := client.ReverseFine(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.FinePending, reversed.Status)
	assert.Nil(t, reversed.PaidDate)
}

func TestClient_UpdateFinesClearsFineCache(t *testing.T) {
	api, client := newFakeAPI(t)
	ctx := context.Background()

	_, err := client.GetFine(ctx, 1)
	require.NoError(t, err)
	_, err = client.GetFine(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, client.fines.len())

	result, err := client.UpdateFines(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", result.RunID)
	assert.Zero(t, client.fines.len())

	_, err = client.GetFine(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, api.count("GET /api/fines/{id}"))
}

func TestClient_BorrowDropsBook(t *testing.T) {
	api, client := newFakeAPI(t)
	ctx := context.Background()

	_, err := client.GetBook(ctx, 1)
	require.NoError(t, err)

	tx, err := client.Borrow(ctx, models.BorrowRequest{BookID: 1, MemberID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(12), tx.ID)

	cached, err := client.GetTransaction(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cached.BookID)

	_, err = client.GetBook(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, api.count("GET /api/books/{id}"))
}

func TestClient_Dashboard(t *testing.T) {
	_, client := newFakeAPI(t)

	d, err := client.Dashboard(context.Background(), time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 2, d.Titles)
	assert.Equal(t, 5, d.TotalCopies)
	assert.Equal(t, 2, d.CopiesOnLoan)
	assert.Equal(t, 2, d.Members)
	assert.Equal(t, 1, d.ActiveMembers)
	require.Len(t, d.Overdue, 1)
	assert.Equal(t, int64(10), d.Overdue[0].ID)
	assert.Equal(t, "2.5", d.Pending.Total.String())
	assert.Equal(t, "20", d.CollectedMonth.Total.String())
	assert.Equal(t, 4, d.NotificationStat.Total)
}

func TestClient_DashboardFailsFast(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/books", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusInternalServerError, services.ErrorResponse{Error: "Internal server error"})
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, services.ErrorResponse{Error: "unavailable"})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client()).Dashboard(context.Background(), time.Now())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.GreaterOrEqual(t, apiErr.StatusCode, http.StatusInternalServerError)
}

func TestClient_CachedLoanTurnsOverdue(t *testing.T) {
	_, client := newFakeAPI(t)
	ctx := context.Background()
	clock := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return clock }

	tx, err := client.Borrow(ctx, models.BorrowRequest{BookID: 1, MemberID: 1})
	require.NoError(t, err)

	cached, err := client.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionBorrowed, cached.Status)

	clock = tx.DueDate.Add(time.Hour)
	cached, err = client.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionOverdue, cached.Status)
}
