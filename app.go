package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"rtpsend/internal"
)

// App owns the configuration and the optional services around a burst
type App struct {
	config        *internal.Config
	metrics       *internal.Metrics
	health        *internal.HealthChecker
	metricsServer *internal.MetricsServer
	capture       *internal.PacketCapture
	reports       internal.MultiReportStore
	sender        *internal.Sender
	ctx           context.Context
	cancel        context.CancelFunc
	mu            sync.Mutex
	shutdown      bool
}

// NewApp creates an App for a validated configuration
func NewApp(cfg *internal.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		config:  cfg,
		metrics: internal.NewMetrics(),
		health:  internal.NewHealthChecker(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start wires signal handling and the services enabled in the configuration
func (a *App) Start(receiveMode bool) error {
	a.setupSignalHandler()

	if err := a.initializeServices(receiveMode); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	return nil
}

// setupSignalHandler cancels the running burst on SIGINT/SIGTERM
func (a *App) setupSignalHandler() {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-signalChan:
			log.Println("🛑 Shutdown signal received")
			a.cancel()
		case <-a.ctx.Done():
		}
		signal.Stop(signalChan)
	}()
}

// RunSender sends one burst and stores its report
func (a *App) RunSender() (*internal.RunReport, error) {
	senderCfg, err := a.config.SenderConfig()
	if err != nil {
		return nil, internal.NewError(err, internal.ErrCodeConfiguration, "app", "sender config")
	}

	sender := internal.NewSender(senderCfg)
	sender.Metrics = a.metrics
	sender.Verbose = a.config.Verbose
	if a.capture != nil {
		sender.Recorder = a.capture
	}

	if a.config.SRTP.Enabled {
		session, err := internal.NewSRTPSession(a.config.SRTP)
		if err != nil {
			return nil, err
		}
		sender.Protector = session
	}

	a.mu.Lock()
	a.sender = sender
	a.mu.Unlock()
	a.health.Register("sender", sender.HealthCheck)

	report, runErr := sender.Run(a.ctx)

	if report != nil && len(a.reports) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.reports.SaveReport(ctx, report); err != nil {
			log.Printf("⚠️ Failed to store run report: %v", err)
		}
		cancel()
	}

	return report, runErr
}

// RunReceiver collects one burst on the listen address and verifies it
func (a *App) RunReceiver() error {
	var unprotector internal.Unprotector
	if a.config.SRTP.Enabled {
		session, err := internal.NewSRTPSession(a.config.SRTP)
		if err != nil {
			return err
		}
		unprotector = session
	}

	receiver, err := internal.ListenReceiver(a.config.Receiver.ListenAddr, unprotector)
	if err != nil {
		return err
	}
	defer receiver.Close()

	receiver.Metrics = a.metrics
	receiver.Verbose = a.config.Verbose

	ctx, cancel := context.WithTimeout(a.ctx, a.config.ReceiveTimeout())
	defer cancel()

	pkts, err := receiver.Collect(ctx, a.config.Stream.Count)

	senderCfg, cfgErr := a.config.SenderConfig()
	if cfgErr != nil {
		return cfgErr
	}
	stats := internal.ComputeReceiveStats(pkts, internal.ExpectationFor(senderCfg), senderCfg.Interval)
	log.Printf("📊 Burst statistics: %s", stats)
	for _, alert := range internal.CheckAlerts(stats, a.config.Receiver.Alerts) {
		a.metrics.Alert(alert)
	}

	if err != nil {
		return err
	}

	return a.verify(internal.PlainDatagrams(pkts))
}

// VerifyCapture checks a burst recorded by -pcap
func (a *App) VerifyCapture(path string) error {
	datagrams, err := internal.ReadCapturedDatagrams(path)
	if err != nil {
		return err
	}

	var unprotector internal.Unprotector
	if a.config.SRTP.Enabled {
		session, err := internal.NewSRTPSession(a.config.SRTP)
		if err != nil {
			return err
		}
		unprotector = session
	}

	plain := make([][]byte, 0, len(datagrams))
	for _, d := range datagrams {
		p := d.Payload
		if unprotector != nil {
			if p, err = unprotector.Unprotect(p); err != nil {
				return err
			}
		}
		plain = append(plain, p)
	}

	return a.verify(plain)
}

func (a *App) verify(datagrams [][]byte) error {
	senderCfg, err := a.config.SenderConfig()
	if err != nil {
		return err
	}

	if err := internal.VerifyBurst(datagrams, internal.ExpectationFor(senderCfg)); err != nil {
		a.metrics.Error(internal.ErrorCode(err))
		return err
	}

	log.Printf("✅ Verified %d packets of %d bytes (mode=%s)",
		len(datagrams), senderCfg.Template.Size(), senderCfg.Mode)
	return nil
}

// Shutdown releases every service. It is safe to call more than once.
func (a *App) Shutdown() {
	a.mu.Lock()
	if a.shutdown {
		a.mu.Unlock()
		return
	}
	a.shutdown = true
	a.mu.Unlock()

	a.cancel()

	if a.capture != nil {
		if err := a.capture.Close(); err != nil {
			log.Printf("⚠️ Error closing capture: %v", err)
		}
	}

	if len(a.reports) > 0 {
		if err := a.reports.Close(); err != nil {
			log.Printf("⚠️ Error closing report stores: %v", err)
		}
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Stop(); err != nil {
			log.Printf("⚠️ Error stopping metrics server: %v", err)
		}
	}

	log.Println("✅ Shutdown completed")
}
