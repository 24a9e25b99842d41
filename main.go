package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fernway/admin"
	"fernway/auth"
	"fernway/carts"
	"fernway/checkout"
	"fernway/config"
	"fernway/customers"
	"fernway/db"
	"fernway/giftcards"
	"fernway/inventory"
	"fernway/middleware"
	"fernway/notify"
	"fernway/payment"
	"fernway/products"
	"fernway/ratelim"
	"fernway/rdx"
	"fernway/reports"
	"fernway/routes"

	"github.com/joho/godotenv"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

// securityHeaders applies a set of recommended HTTP security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request method, path, remote address, and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s from %s - %v", r.Method, r.RequestURI, r.RemoteAddr, time.Since(start))
	})
}

// Index is a simple health check handler.
func Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fmt.Fprint(w, "200")
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found; using system environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	store, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	cancel()
	if err != nil {
		log.Fatalf("mongo: %v", err)
	}
	ctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
	if err := store.EnsureIndexes(ctx); err != nil {
		cancel()
		log.Fatalf("mongo indexes: %v", err)
	}
	cancel()

	cache := rdx.New(cfg.RedisAddr)
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if err := cache.Ping(ctx); err != nil {
		cancel()
		log.Fatalf("redis: %v", err)
	}
	cancel()

	gateway, err := payment.New(cfg)
	if err != nil {
		log.Fatalf("payment: %v", err)
	}
	log.Printf("payment provider: %s", gateway.Provider())

	mailer := notify.NewMailer(cfg)
	mw := middleware.New(cfg.JWTSecret, store.Customers)

	inventorySvc := inventory.NewService(store)
	cartSvc := carts.NewService(store)
	checkoutSvc := checkout.NewService(store, cache, gateway, cfg, mailer, inventorySvc)
	giftCardSvc := giftcards.NewService(store, cfg.JWTSecret, mailer)
	customerSvc := customers.NewService(store)
	authSvc := auth.NewService(store, mw)
	productSvc := products.NewService(store, inventorySvc, "static/productpic")
	adminSvc := admin.NewService(store, inventorySvc, gateway, cache, mailer)
	reportSvc := reports.NewService(store)
	stream := admin.NewStream(cache)

	// Checkout and auth endpoints are rate limited; catalog reads are not.
	rateLimiter := ratelim.NewRateLimiter(2, 5)

	router := httprouter.New()
	router.GET("/health", Index)
	routes.AddStaticRoutes(router)
	routes.AddAuthRoutes(router, authSvc, mw, rateLimiter)
	routes.AddProductRoutes(router, productSvc, mw)
	routes.AddCartRoutes(router, cartSvc, mw)
	routes.AddCheckoutRoutes(router, checkoutSvc, store.Idempotency, mw, rateLimiter)
	routes.AddGiftCardRoutes(router, giftCardSvc, mw)
	routes.AddCustomerRoutes(router, customerSvc, mw)
	routes.AddAdminRoutes(router, adminSvc, stream, mw)
	routes.AddInventoryRoutes(router, inventorySvc, mw)
	routes.AddReportRoutes(router, reportSvc, mw)

	// Background workers share one cancellation scope with the server.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	go stream.Run(workerCtx)
	sweeper := &notify.Sweeper{Store: store, Mailer: mailer, Interval: cfg.SweepInterval}
	go sweeper.Run(workerCtx)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Idempotency-Key", "X-Session-Token"},
		AllowCredentials: true,
	}).Handler(router)

	handler := loggingMiddleware(securityHeaders(corsHandler))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("shutdown signal received; shutting down gracefully...")
	stopWorkers()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}

	if err := store.Close(shutdownCtx); err != nil {
		log.Println("mongo close:", err)
	}
	if err := cache.Close(); err != nil {
		log.Println("redis close:", err)
	}

	log.Println("server stopped cleanly")
}
