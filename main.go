package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/paylinkd/walletlink_service/api"
	"github.com/paylinkd/walletlink_service/chain"
	"github.com/paylinkd/walletlink_service/config"
	"github.com/paylinkd/walletlink_service/db"
	"github.com/paylinkd/walletlink_service/domain"
	"github.com/paylinkd/walletlink_service/repository"
	"github.com/paylinkd/walletlink_service/service"
)

func main() {
	log := logrus.New()

	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.WithError(err).Fatal("config load failed")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. MongoDB
	if err := db.InitMongo(ctx, cfg.MongoURI, cfg.MongoDB); err != nil {
		log.WithError(err).Fatal("mongo init failed")
	}
	defer db.MongoDB.Close(context.Background())

	// 2. Dependencies
	linkRepo := repository.NewLinkRepo()
	paymentRepo := repository.NewPaymentRepo()
	session := domain.NewSession()
	bus := domain.NewBus()
	relay := chain.NewRelayProvider()
	ethChain := chain.NewETHChain(cfg.Eth, cfg.Watcher, log)

	watcher := service.NewSettlementWatcher(paymentRepo, ethChain, bus, cfg.Watcher, log)
	sweeper := service.NewExpirationSweeper(paymentRepo, bus, cfg.Sweeper.Interval, log)
	identityService := service.NewIdentityService(linkRepo, session, bus, log)
	switcher := service.NewSwitcher(relay, session, bus, log)
	paymentService := service.NewPaymentService(paymentRepo, session, bus, watcher, ethChain, log)

	// 3. Gin
	r := gin.Default()

	identityHandler := api.NewIdentityHandler(identityService, switcher)
	paymentHandler := api.NewPaymentHandler(paymentService)
	providerHandler := api.NewProviderHandler(relay)

	r.POST("/identity/connect", identityHandler.Connect)
	r.POST("/identity/disconnect", identityHandler.Disconnect)
	r.GET("/identity/session", identityHandler.GetSession)
	r.GET("/identity/links", identityHandler.ListLinks)
	r.GET("/identity/links/message", identityHandler.LinkMessage)
	r.POST("/identity/links", identityHandler.AddLink)
	r.DELETE("/identity/links/:address", identityHandler.RemoveLink)
	r.POST("/identity/switch", identityHandler.Switch)
	r.POST("/identity/switch/retry", identityHandler.RetrySwitch)
	r.POST("/identity/switch/cancel", identityHandler.CancelSwitch)

	r.POST("/payments", paymentHandler.Create)
	r.GET("/payments", paymentHandler.List)
	r.GET("/payments/:id", paymentHandler.Get)
	r.POST("/payments/:id/cancel", paymentHandler.Cancel)
	r.GET("/pay/:id", paymentHandler.ShareLink)

	r.POST("/provider/account", providerHandler.ReportAccount)

	server := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	// 4. Background tasks + HTTP under one lifecycle
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return watcher.Run(groupCtx) })
	group.Go(func() error { return sweeper.Run(groupCtx) })
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		return server.Shutdown(context.Background())
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.WithError(err).Fatal("server exited")
	}
}
