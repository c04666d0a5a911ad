package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bindery-orders/internal/config"
	httpctrl "bindery-orders/internal/controllers/http"
	"bindery-orders/internal/domain"
	"bindery-orders/internal/infra"
	"bindery-orders/internal/infra/fakegateway"
	"bindery-orders/internal/infra/kafka"
	mmysql "bindery-orders/internal/infra/mysql"
	"bindery-orders/internal/infra/portone"
	"bindery-orders/internal/infra/rabbitmq"
	"bindery-orders/internal/infra/redisstore"
	"bindery-orders/internal/logging"
	"bindery-orders/internal/metrics"
	"bindery-orders/internal/pricing"
	"bindery-orders/internal/repository/memory"
	mysqlrepo "bindery-orders/internal/repository/mysql"
	"bindery-orders/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load(".env", ".env.local")

	port := flag.Int("port", cfg.Port, "listen port")
	logJSON := flag.Bool("log-json", cfg.LogJSON, "log as JSON")
	mintToken := flag.String("token", "", "print a development token for user[:role] and exit")
	flag.Parse()
	cfg.Port = *port
	cfg.LogJSON = *logJSON

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.New(cfg.LogJSON, cfg.LogLevel)

	if *mintToken != "" {
		if cfg.IsProduction() {
			log.Fatal("-token is not available in production")
		}
		user, role, _ := strings.Cut(*mintToken, ":")
		tok, err := httpctrl.IssueToken([]byte(cfg.JWTSecret), user, role, 24*time.Hour)
		if err != nil {
			log.Fatalf("token: %v", err)
		}
		fmt.Println(tok)
		return
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	deps := services.Deps{
		Metrics: m,
		Pricing: pricing.Rules{Currency: cfg.StoreCurrency, MaxShippingFee: cfg.MaxShippingFee},
	}
	var closers []func()

	switch cfg.Storage {
	case "mysql":
		db, err := mmysql.Open(mmysql.DSN(cfg.MySQL), cfg.MySQL)
		if err != nil {
			log.Fatalf("db: connect: %v", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			closers = append(closers, func() { sqlDB.Close() })
		}
		deps.Ledger = mysqlrepo.NewOrderRepository(db)
		deps.Carts = mysqlrepo.NewCartRepository(db)
		deps.Audit = mysqlrepo.NewAuditRepository(db)
		deps.Tx = mysqlrepo.NewTransactor(db)
		deps.Catalog = infra.NewProductClient(cfg.ProductServiceURL, cfg.CatalogTimeout)
	default:
		store := memory.NewStore()
		seedDemo(store)
		deps.Ledger, deps.Carts, deps.Audit, deps.Tx, deps.Catalog = store, store, store, store, store
		slog.Warn("using in-memory storage, orders are lost on restart")
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     50,
			MinIdleConns: 5,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		cancel()
		closers = append(closers, func() { rdb.Close() })
		deps.Locker = redisstore.NewLocker(rdb, cfg.LockTTL, cfg.LockWait)
		deps.Intents = redisstore.NewIntentStore(rdb, cfg.CheckoutIntentTTL)
	} else {
		deps.Locker = memory.NewLocker(cfg.LockWait)
		deps.Intents = memory.NewIntents(cfg.CheckoutIntentTTL)
	}

	switch cfg.EventBroker {
	case "rabbitmq":
		pub, err := rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			log.Fatalf("failed to init publisher: %v", err)
		}
		closers = append(closers, pub.Close)
		deps.Publisher = pub
	case "kafka":
		pub := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		closers = append(closers, func() { pub.Close() })
		deps.Publisher = pub
	}

	switch cfg.Gateway {
	case "portone":
		deps.Gateway = portone.New(portone.Config{
			BaseURL:   cfg.PortOne.APIURL,
			APIKey:    cfg.PortOne.APIKey,
			APISecret: cfg.PortOne.APISecret,
			Sandbox:   !cfg.IsProduction(),
			Timeout:   cfg.GatewayTimeout,
		}, portone.WithMetrics(m))
	default:
		deps.Gateway = fakegateway.New()
		slog.Warn("using the fake payment gateway")
	}

	orders := services.NewOrderService(deps)
	checkout := services.NewCheckoutService(deps, orders)
	handler := httpctrl.NewHandler(orders, checkout, cfg.JWTSecret, cfg.PortOne.WebhookSecret)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), httpctrl.AccessLog(), m.Middleware())
	r.GET("/metrics", gin.WrapH(m.Handler()))
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("starting order service", "port", cfg.Port, "env", cfg.Env, "storage", cfg.Storage, "broker", cfg.EventBroker, "gateway", cfg.Gateway)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server run: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("graceful shutdown failed", "err", err)
	}
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// seedDemo gives in-memory runs a small catalog and a cart for user "demo".
func seedDemo(s *memory.Store) {
	s.PutProduct(domain.Product{
		ID: "coptic-a5", SKU: "BND-COP-A5", Name: "Coptic stitch journal A5", Price: 28000, ShippingFee: 3000,
		Images: []domain.ProductImage{{URL: "https://cdn.example.com/coptic-a5.jpg", PublicID: "coptic-a5", IsPrimary: true}},
	})
	s.PutProduct(domain.Product{
		ID: "leather-b6", SKU: "BND-LTH-B6", Name: "Leather long-stitch notebook B6", Price: 42000, ShippingFee: 4000,
	})
	s.AddCartItem("demo", "coptic-a5", 1, domain.SelectedOption{Name: "thread", Value: "indigo"})
	s.AddCartItem("demo", "leather-b6", 1)
}
