package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mW "github.com/libraryhub/backend/internal/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Deps is everything the router mounts
type Deps struct {
	Identity   mW.IdentityResolver
	Auth       *AuthHandler
	Catalog    *CatalogHandler
	Loans      *LoanHandler
	Fines      *FineHandler
	Payments   *PaymentHandler
	Students   *StudentHandler
	Dashboards *DashboardHandler

	AllowedOrigins []string
	RequestTimeout time.Duration
	CoverDir       string
	OpenAPIPath    string
}

func NewRouter(d Deps) http.Handler {
	if len(d.AllowedOrigins) == 0 {
		d.AllowedOrigins = []string{"https://*", "http://*"}
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.Timeout(d.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", callbackTokenHeader},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	if d.OpenAPIPath != "" {
		r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, d.OpenAPIPath)
		})
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	}

	if d.CoverDir != "" {
		r.Handle("/static/covers/*", http.StripPrefix("/static/covers/", mW.CoverServer(d.CoverDir)))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mW.Identify(d.Identity))

		r.Post("/auth/login", d.Auth.Login)
		r.Post("/auth/logout", d.Auth.Logout)
		r.Get("/auth/me", d.Auth.Me)

		r.Post("/students/register", d.Auth.Register)
		r.Post("/students/reset-password", d.Auth.ResetPassword)
		r.Get("/students", d.Students.Search)
		r.Get("/students/{id}", d.Students.Get)
		r.Put("/students/{id}", d.Students.Update)
		r.Put("/students/{id}/status", d.Students.UpdateStatus)
		r.Put("/students/{id}/password", d.Students.SetPassword)
		r.Delete("/students/{id}", d.Students.Delete)

		r.Get("/books", d.Catalog.ListBooks)
		r.Get("/categories", d.Catalog.Categories)
		r.Post("/books", d.Catalog.CreateBook)
		r.Get("/books/{id}", d.Catalog.GetBook)
		r.Put("/books/{id}", d.Catalog.UpdateBook)
		r.Delete("/books/{id}", d.Catalog.DeleteBook)
		r.Post("/books/{id}/request", d.Loans.RequestBook)

		r.Get("/authors", d.Catalog.ListAuthors)
		r.Post("/authors", d.Catalog.CreateAuthor)
		r.Get("/authors/{id}", d.Catalog.GetAuthor)
		r.Put("/authors/{id}", d.Catalog.UpdateAuthor)
		r.Delete("/authors/{id}", d.Catalog.DeleteAuthor)

		r.Get("/loans", d.Loans.ListLoans)
		r.Get("/loans/{id}", d.Loans.GetLoan)
		r.Post("/loans/{id}/accept", d.Loans.Accept)
		r.Post("/loans/{id}/reject", d.Loans.Reject)
		r.Post("/loans/{id}/return", d.Loans.Return)
		r.Post("/loans/{id}/reevaluate", d.Loans.Reevaluate)

		r.Get("/fines", d.Fines.ListFines)
		r.Post("/fines", d.Fines.CreateFine)
		r.Get("/fines/export", d.Fines.ExportFines)
		r.Post("/fines/{id}/pay", d.Fines.MarkPaid)
		r.Delete("/fines/{id}", d.Fines.DeleteFine)
		r.Post("/fines/{id}/payments", d.Payments.Initiate)
		r.Post("/payments/callback", d.Payments.Callback)

		r.Get("/me/loans", d.Loans.MyLoans)
		r.Get("/me/fines", d.Fines.MyFines)
		r.Get("/me/notifications", d.Students.Notifications)
		r.Post("/me/notifications/{id}/read", d.Students.MarkRead)

		r.Get("/stats", d.Dashboards.Summary)
		r.Get("/admin/dashboard", d.Dashboards.Admin)
		r.Get("/me/dashboard", d.Dashboards.Student)
	})

	return r
}
