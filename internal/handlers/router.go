package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mW "github.com/libraryhub/backend/internal/middleware"
	"github.com/libraryhub/backend/internal/services"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Services is everything the HTTP layer serves
type Services struct {
	Books         *services.BookService
	Members       *services.MemberService
	Transactions  *services.TransactionService
	Fines         *services.FineService
	Notifications *services.NotificationService
}

type RouterOptions struct {
	AllowedOrigins []string
	SwaggerURL     string
	// AccessLog enables chi's request logger
	AccessLog bool
}

func NewRouter(svc Services, opts RouterOptions) *chi.Mux {
	books := NewBookHandler(svc.Books)
	members := NewMemberHandler(svc.Members)
	transactions := NewTransactionHandler(svc.Transactions)
	fines := NewFineHandler(svc.Fines)
	notifications := NewNotificationHandler(svc.Notifications)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	if opts.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	if opts.SwaggerURL != "" {
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(opts.SwaggerURL)))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(mW.NoCache)

		r.Route("/books", func(r chi.Router) {
			r.Get("/", books.ListBooks)
			r.Post("/", books.CreateBook)
			r.Get("/{id}", books.GetBook)
			r.Put("/{id}", books.UpdateBook)
			r.Delete("/{id}", books.DeleteBook)
		})

		r.Route("/members", func(r chi.Router) {
			r.Get("/", members.ListMembers)
			r.Post("/", members.CreateMember)
			r.Get("/{id}", members.GetMember)
			r.Put("/{id}", members.UpdateMember)
			r.Delete("/{id}", members.DeleteMember)
			r.Get("/{id}/card", members.GetMemberCard)
			r.Put("/{id}/{status}", members.SetMembershipStatus)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", transactions.ListTransactions)
			r.Post("/", transactions.Borrow)
			r.Post("/borrow", transactions.Borrow)
			r.Post("/update-overdue", transactions.UpdateOverdue)
			r.Get("/overdue", transactions.ListOverdue)
			r.Get("/member/{id}", transactions.ListMemberTransactions)
			r.Get("/book/{id}", transactions.ListBookTransactions)
			r.Get("/{id}", transactions.GetTransaction)
			r.Put("/{id}/return", transactions.Return)
		})

		r.Route("/fines", func(r chi.Router) {
			r.Get("/", fines.ListFines)
			r.Put("/update-fines", fines.UpdateFines)
			r.Get("/pending", fines.ListPending)
			r.Get("/collected", fines.CollectedTotal)
			r.Get("/member/{id}", fines.ListMemberFines)
			r.Get("/member/{id}/total", fines.MemberPendingTotal)
			r.Get("/{id}", fines.GetFine)
			r.Delete("/{id}", fines.DeleteFine)
			r.Put("/{id}/pay", fines.PayFine)
			r.Put("/{id}/cancel", fines.CancelFine)
			r.Put("/{id}/reverse", fines.ReverseFine)
			r.Post("/{transactionId}/{fineType}", fines.CreateFine)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notifications.ListNotifications)
			r.Get("/stats", notifications.Stats)
			r.Post("/custom", notifications.SendCustom)
			r.Post("/fines/process", notifications.ProcessFines)
			r.Post("/overdue/process", notifications.ProcessOverdue)
			r.Get("/member/{id}", notifications.ListMemberNotifications)
			r.Get("/status/{status}", notifications.ListByStatus)
			r.Get("/{id}", notifications.GetNotification)
		})
	})

	return r
}
