// Package gateway is a typed client for the library REST API. Single-entity reads are served
// from a per-resource cache keyed by id, and every mutation refreshes or drops what it touched.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/services"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// APIError is a non-2xx response from the server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: %d %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time

	books        *cache[models.Book]
	members      *cache[models.Member]
	transactions *cache[models.Transaction]
	fines        *cache[models.Fine]
}

// NewClient talks to the API rooted at baseURL (e.g. http://localhost:8080). A nil httpClient
// uses one with a 15 second timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/") + "/api",
		http:         httpClient,
		now:          time.Now,
		books:        newCache[models.Book](),
		members:      newCache[models.Member](),
		transactions: newCache[models.Transaction](),
		fines:        newCache[models.Fine](),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrapf(err, "build %s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp services.ErrorResponse
		msg := resp.Status
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return errors.WithStack(&APIError{StatusCode: resp.StatusCode, Message: msg})
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s", method, path)
	}
	return nil
}

// getCached serves one entity from its cache, fetching and remembering it on a miss
func getCached[T any](ctx context.Context, c *Client, store *cache[T], path string, id int64) (*T, error) {
	if v, ok := store.get(id); ok {
		return &v, nil
	}
	var v T
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%d", path, id), nil, &v); err != nil {
		return nil, err
	}
	store.put(id, v)
	return &v, nil
}

func (c *Client) ListBooks(ctx context.Context, query string) ([]models.Book, error) {
	path := "/books"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	var books []models.Book
	if err := c.do(ctx, http.MethodGet, path, nil, &books); err != nil {
		return nil, err
	}
	for _, b := range books {
		c.books.put(b.ID, b)
	}
	return books, nil
}

func (c *Client) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	return getCached(ctx, c, c.books, "/books", id)
}

func (c *Client) ListMembers(ctx context.Context) ([]models.Member, error) {
	var members []models.Member
	if err := c.do(ctx, http.MethodGet, "/members", nil, &members); err != nil {
		return nil, err
	}
	for _, m := range members {
		c.members.put(m.ID, m)
	}
	return members, nil
}

func (c *Client) GetMember(ctx context.Context, id int64) (*models.Member, error) {
	return getCached(ctx, c, c.members, "/members", id)
}

func (c *Client) SetMembershipStatus(ctx context.Context, id int64, status models.MembershipStatus) (*models.Member, error) {
	var m models.Member
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/members/%d/%s", id, status), nil, &m); err != nil {
		c.members.drop(id)
		return nil, err
	}
	c.members.put(m.ID, m)
	return &m, nil
}

func (c *Client) ListTransactions(ctx context.Context) ([]models.Transaction, error) {
	var txs []models.Transaction
	if err := c.do(ctx, http.MethodGet, "/transactions", nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (c *Client) ListOverdue(ctx context.Context) ([]models.Transaction, error) {
	var txs []models.Transaction
	if err := c.do(ctx, http.MethodGet, "/transactions/overdue", nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// GetTransaction re-derives the status of a cached loan so a copy fetched before its due date
// still reads OVERDUE afterwards.
func (c *Client) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	t, err := getCached(ctx, c, c.transactions, "/transactions", id)
	if err != nil {
		return nil, err
	}
	t.Status = models.DeriveStatus(*t, c.now())
	return t, nil
}

// Borrow lends a book. The book's copy counter changed, so its cached copy is dropped.
func (c *Client) Borrow(ctx context.Context, req models.BorrowRequest) (*models.Transaction, error) {
	var tx models.Transaction
	err := c.do(ctx, http.MethodPost, "/transactions/borrow", req, &tx)
	c.books.drop(req.BookID)
	if err != nil {
		return nil, err
	}
	c.transactions.put(tx.ID, tx)
	return &tx, nil
}

func (c *Client) Return(ctx context.Context, id int64) (*services.ReturnResult, error) {
	var result services.ReturnResult
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/transactions/%d/return", id), nil, &result)
	if err != nil {
		c.transactions.drop(id)
		return nil, err
	}
	if t := result.Transaction; t != nil {
		c.transactions.put(t.ID, *t)
		c.books.drop(t.BookID)
	}
	if f := result.LateFee; f != nil {
		c.fines.put(f.ID, *f)
	}
	return &result, nil
}

func (c *Client) ListFines(ctx context.Context) ([]models.Fine, error) {
	var fines []models.Fine
	if err := c.do(ctx, http.MethodGet, "/fines", nil, &fines); err != nil {
		return nil, err
	}
	for _, f := range fines {
		c.fines.put(f.ID, f)
	}
	return fines, nil
}

func (c *Client) GetFine(ctx context.Context, id int64) (*models.Fine, error) {
	return getCached(ctx, c, c.fines, "/fines", id)
}

func (c *Client) PendingFines(ctx context.Context) (*services.FineSummary, error) {
	var summary services.FineSummary
	if err := c.do(ctx, http.MethodGet, "/fines/pending", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// CollectedTotal sums fines paid between two calendar days, both inclusive
func (c *Client) CollectedTotal(ctx context.Context, from, to time.Time) (*models.FineTotal, error) {
	q := url.Values{}
	q.Set("from", from.Format("2006-01-02"))
	q.Set("to", to.Format("2006-01-02"))
	var total models.FineTotal
	if err := c.do(ctx, http.MethodGet, "/fines/collected?"+q.Encode(), nil, &total); err != nil {
		return nil, err
	}
	return &total, nil
}

// CreateFine opens a fine. amount must be nil for LATE_RETURN.
func (c *Client) CreateFine(ctx context.Context, transactionID int64, fineType models.FineType, amount *decimal.Decimal) (*models.Fine, error) {
	path := fmt.Sprintf("/fines/%d/%s", transactionID, fineType)
	if amount != nil {
		path += "?amount=" + url.QueryEscape(amount.String())
	}
	var f models.Fine
	if err := c.do(ctx, http.MethodPost, path, nil, &f); err != nil {
		return nil, err
	}
	c.fines.put(f.ID, f)
	return &f, nil
}

func (c *Client) PayFine(ctx context.Context, id int64) (*models.Fine, error) {
	return c.fineAction(ctx, id, models.FineActionPay)
}

func (c *Client) CancelFine(ctx context.Context, id int64) (*models.Fine, error) {
	return c.fineAction(ctx, id, models.FineActionCancel)
}

func (c *Client) ReverseFine(ctx context.Context, id int64) (*models.Fine, error) {
	return c.fineAction(ctx, id, models.FineActionReverse)
}

// fineAction applies a transition. On a rejected transition the cached copy is dropped since
// it is evidently stale.
func (c *Client) fineAction(ctx context.Context, id int64, action models.FineAction) (*models.Fine, error) {
	var f models.Fine
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/fines/%d/%s", id, action), nil, &f); err != nil {
		c.fines.drop(id)
		return nil, err
	}
	c.fines.put(f.ID, f)
	return &f, nil
}

// UpdateFines triggers the server-side sweep. The sweep may create or re-price any fine, so the
// whole fine cache is dropped; callers re-fetch with ListFines.
func (c *Client) UpdateFines(ctx context.Context) (*services.SweepResult, error) {
	var result services.SweepResult
	err := c.do(ctx, http.MethodPut, "/fines/update-fines", nil, &result)
	c.fines.clear()
	c.transactions.clear()
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) NotificationStats(ctx context.Context) (*models.NotificationStats, error) {
	var stats models.NotificationStats
	if err := c.do(ctx, http.MethodGet, "/notifications/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
