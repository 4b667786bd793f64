package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"menuqr.app/internal/authz"
	"menuqr.app/internal/config"
	"menuqr.app/internal/httpapi"
	"menuqr.app/internal/identity"
	"menuqr.app/internal/ids"
	"menuqr.app/internal/notify"
	"menuqr.app/internal/obs"
	"menuqr.app/internal/payment"
	"menuqr.app/internal/store/pg"
	"menuqr.app/internal/verify"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	tokens, err := identity.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		log.Fatalf("identity: %v", err)
	}

	codes, err := verify.NewIssuer(verify.NewMemoryStore(), notify.LogSender{}, verify.WithTTL(cfg.CodeTTL))
	if err != nil {
		log.Fatalf("verify: %v", err)
	}

	allocator, err := ids.NewOrderRefAllocator(cfg.OrderRefPrefix)
	if err != nil {
		log.Fatalf("ids: %v", err)
	}

	var signer *payment.Signer
	if cfg.GatewayConfigured() {
		signer, err = payment.NewSigner(cfg.MerchantID, cfg.MerchantKey, cfg.MerchantSalt)
		if err != nil {
			log.Fatalf("payment: %v", err)
		}
	} else {
		log.Printf("payment gateway credentials missing, payment endpoints disabled")
	}

	var (
		store    *pg.Store
		resolver authz.RoleResolver
		orders   httpapi.OrderRefStore
		creds    httpapi.CredentialStore
	)
	if cfg.DatabaseURL != "" {
		store, err = pg.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		resolver = store
		orders = store
		creds = store
	} else {
		log.Printf("DATABASE_URL missing, running without the identity/payment store")
	}

	opts := httpapi.Options{
		Version:     version,
		Tokens:      tokens,
		Resolver:    resolver,
		Codes:       codes,
		Signer:      signer,
		Allocator:   allocator,
		Orders:      orders,
		Credentials: creds,
		TestMode:    os.Getenv("GATEWAY_TEST_MODE") == "1",
	}
	if store != nil {
		opts.Ready = httpapi.ReadyProbe{DB: store.DB()}
	}
	api := httpapi.New(opts)

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting menuqr-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if store != nil {
		_ = store.Close()
	}
	log.Println("Stopped")
}
