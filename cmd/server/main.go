package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orra-dev/agent-fragile-to-prod-guide/cmd/server/config"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/adapters/ws"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/catalog"
	ordersdb "github.com/orra-dev/agent-fragile-to-prod-guide/internal/db/orders"
	sagadb "github.com/orra-dev/agent-fragile-to-prod-guide/internal/db/saga"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/docstore"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/inventory"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/notify"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/observability"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/orders"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/purchase"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/saga"

	"github.com/joho/godotenv"
	grpcpkg "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func run(ctx context.Context) error {
	docs, cleanupDocs, err := buildDocStore(ctx)
	if err != nil {
		return err
	}
	defer cleanupDocs()

	productStore := catalog.NewProductStore(docs)
	userStore := catalog.NewUserStore(docs)
	if err := seedCatalog(ctx, productStore, userStore); err != nil {
		return err
	}

	orderLedger, compLog, attempts, cleanupDB, err := buildDurableStores(ctx, docs)
	if err != nil {
		return err
	}
	defer cleanupDB()

	metrics := observability.NewMetrics()
	invLedger := inventory.NewLedger(productStore)

	paymentCfg, err := config.LoadPayment()
	if err != nil {
		return err
	}
	gateway := purchase.NewGuardedGateway(
		purchase.NewSimulatedGateway(paymentCfg.SuccessRate),
		purchase.NewRateLimiter(paymentCfg.RateLimitInterval, paymentCfg.RateLimitBurst),
		purchase.NewCircuitBreaker(purchase.CircuitBreakerConfig{
			MaxFailures:  paymentCfg.BreakerThreshold,
			ResetTimeout: paymentCfg.BreakerCooldown,
		}),
		paymentCfg.Timeout,
	)

	hub := notify.NewHub(log.Printf)
	go hub.Run(ctx)
	notifier := notify.Fanout{
		notify.NewHubNotifier(hub),
		notify.NewStoreNotifier(notify.NewDocNotificationStore(docs)),
	}

	workflow := purchase.NewWorkflow(userStore, productStore, gateway, orderLedger, notifier, log.Printf)

	comp := saga.NewCompensationHandler(invLedger, compLog, purchase.RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}, log.Printf)

	inventoryParticipant := saga.NewInventoryParticipant(invLedger, comp, metrics, log.Printf)
	purchasingParticipant := saga.NewPurchasingParticipant(workflow, attempts, metrics, log.Printf)

	if coordinator := config.LoadParticipant(); coordinator.CoordinatorURL != "" {
		for _, participant := range []*saga.Participant{inventoryParticipant, purchasingParticipant} {
			client := ws.NewClient(coordinator.CoordinatorURL, participant, log.Printf)
			if err := client.Connect(ctx); err != nil {
				return err
			}
			name := participant.Registration().Name
			go func() {
				if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("participant %s disconnected: %v", name, err)
				}
			}()
			log.Printf("participant %s registered with coordinator", name)
		}
	}

	grpcAddr := os.Getenv("GRPC_ADDR")
	if grpcAddr == "" {
		grpcAddr = ":50051"
	}
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return err
	}

	server := grpcpkg.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("inventory-service", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("purchasing-service", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	if env := os.Getenv("APP_ENV"); env != "production" {
		reflection.Register(server)
		log.Println("gRPC reflection enabled (APP_ENV=", env, ")")
	}

	obsSrv := startObservabilityServer(metrics, hub)

	log.Printf("server running on %s...", grpcAddr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		healthServer.SetServingStatus("inventory-service", healthpb.HealthCheckResponse_NOT_SERVING)
		healthServer.SetServingStatus("purchasing-service", healthpb.HealthCheckResponse_NOT_SERVING)
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		server.GracefulStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = obsSrv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// buildDurableStores wires the order ledger, the compensation log, and the
// attempt journal. With DATABASE_URL set all three live in Postgres;
// otherwise orders go through the document store, the compensation log is
// in-memory, and the attempt journal is off.
func buildDurableStores(ctx context.Context, docs docstore.Store) (orders.Ledger, saga.CompensationLog, saga.AttemptStore, func(), error) {
	storeCfg := config.LoadStore()
	if storeCfg.DatabaseURL == "" {
		return orders.NewDocLedger(docs), saga.NewMemoryCompensationLog(), nil, func() {}, nil
	}

	db, err := openDB("pgx", storeCfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	orderStore, err := ordersdb.NewOrderStoreWithSchema(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, nil, err
	}
	attemptStore, err := sagadb.NewAttemptStoreWithSchema(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, nil, err
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Printf("close db: %v", err)
		}
	}
	return orderStore, attemptStore, attemptStore, cleanup, nil
}

func startObservabilityServer(metrics *observability.Metrics, hub *notify.Hub) *http.Server {
	cfg := config.LoadObservability()

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(metrics))
	mux.Handle("/healthz", observability.HealthHandler())
	mux.HandleFunc("/notifications", hub.ServeWS)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("observability server error: %v", err)
		}
	}()

	return srv
}
