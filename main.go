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

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/blackmoney/storefront/internal/api"
	"github.com/blackmoney/storefront/internal/cart"
	"github.com/blackmoney/storefront/internal/checkout"
	"github.com/blackmoney/storefront/internal/client"
	"github.com/blackmoney/storefront/internal/coupon"
	"github.com/blackmoney/storefront/internal/localstore"
	"github.com/blackmoney/storefront/internal/metrics"
	"github.com/blackmoney/storefront/internal/payment"
	"github.com/blackmoney/storefront/internal/wishlist"
	"github.com/blackmoney/storefront/pkg/config"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Initialize OpenTelemetry metrics
	ctx := context.Background()
	appMetrics, meterProvider, err := metrics.InitMetrics(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down meter provider: %v", err)
		}
	}()

	// Initialize durable local storage for the cart and wishlist
	backing, err := localstore.New(cfg.CartStoreDir)
	if err != nil {
		log.Fatalf("Failed to open local store at %s: %v", cfg.CartStoreDir, err)
	}
	cartStore, err := cart.New(backing)
	if err != nil {
		log.Fatalf("Failed to load cart: %v", err)
	}
	wishlistStore, err := wishlist.New(backing)
	if err != nil {
		log.Fatalf("Failed to load wishlist: %v", err)
	}

	// Outbound HTTP client, instrumented for traces and metrics
	httpClient := &http.Client{
		Timeout:   15 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	// Marketplace backend clients
	base := client.NewBase(cfg.BackendBaseURL, cfg.BackendToken, httpClient)
	base.SetRecorder(appMetrics)
	orderClient := client.NewOrderClient(base)
	settingsClient := client.NewSettingsClient(base)
	addressClient := client.NewAddressClient(base)

	couponResolver := coupon.NewHTTPResolver(cfg.BackendBaseURL, httpClient)
	paymentAdapter := payment.NewHTTPAdapter(cfg.PaymentBaseURL, cfg.BackendToken, httpClient)

	orchestrator := checkout.NewOrchestrator(
		cartStore,
		couponResolver,
		orderClient,
		paymentAdapter,
		settingsClient,
		addressClient,
	)

	// Initialize app
	app := api.NewApp(cfg, appMetrics, cartStore, wishlistStore, orchestrator, couponResolver, settingsClient, orderClient)

	// Setup router
	router := mux.NewRouter()
	app.SetupRoutes(router)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.AppPort)
		log.Printf("Backend: %s, OTLP endpoint: %s", cfg.BackendBaseURL, cfg.OTELExporterOTLPEndpoint)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
