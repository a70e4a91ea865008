package gateway

import (
	"context"
	"time"

	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/services"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Dashboard is a point-in-time summary of the library
type Dashboard struct {
	GeneratedAt      time.Time                 `json:"generatedAt"`
	Titles           int                       `json:"titles"`
	TotalCopies      int                       `json:"totalCopies"`
	CopiesOnLoan     int                       `json:"copiesOnLoan"`
	Members          int                       `json:"members"`
	ActiveMembers    int                       `json:"activeMembers"`
	Overdue          []models.Transaction      `json:"overdue"`
	Pending          *services.FineSummary     `json:"pending"`
	CollectedMonth   *models.FineTotal         `json:"collectedThisMonth"`
	NotificationStat *models.NotificationStats `json:"notifications"`
}

// Dashboard fetches every resource it needs concurrently. The first failure cancels the rest.
func (c *Client) Dashboard(ctx context.Context, now time.Time) (*Dashboard, error) {
	d := &Dashboard{GeneratedAt: now}
	var (
		books   []models.Book
		members []models.Member
	)

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		books, err = c.ListBooks(gctx, "")
		return errors.Wrap(err, "books")
	})
	g.Go(func() (err error) {
		members, err = c.ListMembers(gctx)
		return errors.Wrap(err, "members")
	})
	g.Go(func() (err error) {
		d.Overdue, err = c.ListOverdue(gctx)
		return errors.Wrap(err, "overdue loans")
	})
	g.Go(func() (err error) {
		d.Pending, err = c.PendingFines(gctx)
		return errors.Wrap(err, "pending fines")
	})
	g.Go(func() (err error) {
		d.CollectedMonth, err = c.CollectedTotal(gctx, monthStart, now)
		return errors.Wrap(err, "collected fines")
	})
	g.Go(func() (err error) {
		d.NotificationStat, err = c.NotificationStats(gctx)
		return errors.Wrap(err, "notification stats")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d.Titles = len(books)
	for _, b := range books {
		d.TotalCopies += b.TotalCopies
		d.CopiesOnLoan += b.OnLoan()
	}
	d.Members = len(members)
	for _, m := range members {
		if m.MembershipStatus == models.MembershipActive {
			d.ActiveMembers++
		}
	}
	return d, nil
}
