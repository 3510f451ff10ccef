package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/muscleupgym/gymgate/internal/config"
	"github.com/muscleupgym/gymgate/internal/db"
	"github.com/muscleupgym/gymgate/internal/devicelink"
	"github.com/muscleupgym/gymgate/internal/gymgate/service"
	sqlitestore "github.com/muscleupgym/gymgate/internal/gymgate/store/sqlite"
	"github.com/muscleupgym/gymgate/internal/httpapi"
	"github.com/muscleupgym/gymgate/internal/metrics"
)

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "gymgate-server ", log.LstdFlags|log.LUTC)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatalf("load timezone %q: %v", cfg.Timezone, err)
	}

	// Storage
	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if cfg.Env == "dev" {
		if err := db.SeedDev(ctx, conn); err != nil {
			logger.Printf("dev seed: %v", err)
		}
	}

	writer := db.NewWorker(conn)
	defer writer.Close()

	memberStore := sqlitestore.NewMemberStore(conn)
	logStore := sqlitestore.NewAccessLogStore(conn, writer)

	// Services
	restrictionPolicy := service.RestrictionFailOpen
	if cfg.RestrictionFailClosed {
		restrictionPolicy = service.RestrictionFailClosed
	}

	accessSvc := service.NewAccessService(memberStore, logStore, service.AccessConfig{
		DeviceID:          cfg.DeviceID,
		Location:          loc,
		DecideTimeout:     cfg.DecideTimeout,
		RestrictionPolicy: restrictionPolicy,
	}, logger)

	pruner := service.NewLogPruner(logStore, service.PrunerConfig{
		RetentionDays: cfg.LogRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	// DeviceLink
	link := devicelink.New(devicelink.Options{
		URL:            cfg.DeviceWSURL,
		AutoReconnect:  cfg.AutoReconnect,
		ReconnectDelay: cfg.ReconnectDelay,
		CallTimeout:    cfg.CallTimeout,
		Logger:         logger,
	})
	defer link.Close()

	events, unsubscribe := link.Subscribe(32)
	defer unsubscribe()
	go watchLink(logger, link, events)

	if err := link.Connect(ctx); err != nil {
		// Not fatal: auto-reconnect keeps trying, and the decision path
		// does not depend on the device channel.
		logger.Printf("device link connect: %v", err)
	}

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:        logger,
		Addr:          cfg.HTTPAddr,
		AccessService: accessSvc,
		Link:          link,
		LogStore:      logStore,
		AuthSecret:    cfg.AuthSecret,
		TokenTTL:      cfg.TokenTTL,
	})

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.Start(); err != nil {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// watchLink mirrors device-link events into logs and metrics gauges.
func watchLink(logger *log.Logger, link *devicelink.Link, events <-chan devicelink.Event) {
	for ev := range events {
		switch ev.Kind {
		case devicelink.EventTransportConnected:
			metrics.LinkState.Set(1)
			logger.Printf("device link connected")
		case devicelink.EventTransportDisconnected:
			metrics.LinkState.Set(0)
			metrics.DeviceConnected.Set(0)
			logger.Printf("device link disconnected")
		case devicelink.EventDeviceStatus:
			if link.IsDeviceConnected() {
				metrics.DeviceConnected.Set(1)
			} else {
				metrics.DeviceConnected.Set(0)
			}
			metrics.DeviceMessages.WithLabelValues("device_status").Inc()
			logger.Printf("device status: %s", ev.Status)
		case devicelink.EventError:
			metrics.DeviceMessages.WithLabelValues("error").Inc()
			logger.Printf("device error: %s", ev.Message)
		}
	}
}
