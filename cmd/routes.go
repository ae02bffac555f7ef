package main

import (
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/carlink/internal/config"
	"github.com/ukydev/carlink/internal/handlers"
	"github.com/ukydev/carlink/internal/middleware"
)

type application struct {
	logger  log.FieldLogger
	authMW  *middleware.AuthMiddleware
	limiter *middleware.RateLimitMiddleware
	cfg     *config.Config

	auth     *handlers.AuthHandler
	cars     *handlers.CarHandler
	requests *handlers.BuyRequestHandler
	health   http.Handler
}

func (app *application) routes() http.Handler {
	baseMiddleware := alice.New(middleware.Recover(app.logger), middleware.Logger(app.logger), middleware.SecureHeaders, middleware.JSONContentType)
	standardMiddleware := baseMiddleware.Append(app.limiter.RateLimit(app.cfg.RateLimitRequests, app.cfg.RateLimitWindow))
	authMiddleware := standardMiddleware.Append(app.authMW.Authenticate)

	mux := pat.New()

	// Auth
	mux.Post("/api/auth/signup", standardMiddleware.ThenFunc(app.auth.Signup))
	mux.Post("/api/auth/login", standardMiddleware.ThenFunc(app.auth.Login))
	mux.Post("/api/auth/logout", standardMiddleware.ThenFunc(app.auth.Logout))
	mux.Get("/api/auth/check-auth", authMiddleware.ThenFunc(app.auth.CheckAuth))

	// Cars: fixed paths before /:id
	mux.Get("/api/cars/featured", standardMiddleware.ThenFunc(app.cars.Featured))
	mux.Get("/api/cars/popular-brands", standardMiddleware.ThenFunc(app.cars.PopularBrands))
	mux.Get("/api/cars/user/my-cars", authMiddleware.ThenFunc(app.cars.MyCars))
	mux.Get("/api/cars/:id", standardMiddleware.ThenFunc(app.cars.Get))
	mux.Put("/api/cars/:id", authMiddleware.ThenFunc(app.cars.Update))
	mux.Del("/api/cars/:id", authMiddleware.ThenFunc(app.cars.Delete))
	mux.Get("/api/cars", standardMiddleware.ThenFunc(app.cars.List))
	mux.Post("/api/cars", authMiddleware.ThenFunc(app.cars.Create))

	// Buy requests
	mux.Post("/api/buy-requests", authMiddleware.ThenFunc(app.requests.Create))
	mux.Get("/api/buy-requests/seller", authMiddleware.ThenFunc(app.requests.Seller))
	mux.Get("/api/buy-requests/buyer", authMiddleware.ThenFunc(app.requests.Buyer))
	mux.Put("/api/buy-requests/:id/accept", authMiddleware.ThenFunc(app.requests.Accept))
	mux.Put("/api/buy-requests/:id/decline", authMiddleware.ThenFunc(app.requests.Decline))

	mux.Get("/health", baseMiddleware.Then(app.health))

	mux.NotFound = baseMiddleware.ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"message":"Route not found"}`))
	})
	return mux
}
