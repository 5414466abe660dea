package main

import (
	"context"
	"log"
	"time"

	"rtpsend/internal"
)

// initializeServices initializes the components enabled in the configuration
func (a *App) initializeServices(receiveMode bool) error {
	if a.config.Metrics.Enabled {
		if err := a.startMetricsServer(); err != nil {
			return err
		}
	}

	if receiveMode {
		log.Println("✅ Receive mode: capture and report stores skipped")
		return nil
	}

	if a.config.Capture.Enabled {
		capture, err := internal.OpenPacketCapture(a.config.Capture.Path)
		if err != nil {
			return err
		}
		a.capture = capture
	}

	if err := a.initializeReportStores(); err != nil {
		return err
	}

	log.Println("✅ All services initialized successfully")
	return nil
}

// startMetricsServer exposes /metrics, /health and /config
func (a *App) startMetricsServer() error {
	server, err := internal.StartMetricsServer(a.config.Metrics.Address, a.metrics, a.health, a.config)
	if err != nil {
		return err
	}
	a.metricsServer = server
	return nil
}

// initializeReportStores connects the configured report backends
func (a *App) initializeReportStores() error {
	ctx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
	defer cancel()

	a.reports = internal.MultiReportStore{internal.LogReportStore{}}

	if a.config.Database.MySQLDSN != "" {
		store, err := internal.NewMySQLReportStore(ctx, a.config.Database.MySQLDSN)
		if err != nil {
			return err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return err
		}
		a.reports = append(a.reports, store)
		a.health.Register("mysql", store.HealthCheck)
	} else {
		log.Println("⚠️ MySQL report store disabled (no DSN provided)")
	}

	if a.config.Database.RedisEnabled {
		store, err := internal.NewRedisReportStore(ctx, a.config.Database)
		if err != nil {
			return err
		}
		a.reports = append(a.reports, store)
		a.health.Register("redis", store.HealthCheck)
	}

	return nil
}
