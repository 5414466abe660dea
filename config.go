package main

import (
	"fmt"
	"log"
	"time"

	"rtpsend/internal"
)

// loadConfig loads the configuration file and applies command line overrides
func loadConfig(opts *cliOptions) (*internal.Config, error) {
	if opts.configPath != "" {
		log.Printf("🛠 Loading configuration from %s...", opts.configPath)
	}

	cfg, err := internal.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	if err := applyOverrides(cfg, opts); err != nil {
		return nil, err
	}

	if err := internal.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// wholeMilliseconds converts a flag duration into the millisecond fields of the config
func wholeMilliseconds(name string, d time.Duration) (int, error) {
	if d%time.Millisecond != 0 {
		return 0, internal.NewError(
			fmt.Errorf("-%s %s is not a whole number of milliseconds", name, d),
			internal.ErrCodeConfiguration, "config", "flags")
	}
	return int(d / time.Millisecond), nil
}

// applyOverrides copies every flag given on the command line into cfg
func applyOverrides(cfg *internal.Config, opts *cliOptions) error {
	if opts.set["host"] {
		cfg.Destination.Host = opts.host
	}
	if opts.set["port"] {
		cfg.Destination.Port = opts.port
	}
	if opts.set["count"] {
		cfg.Stream.Count = opts.count
	}
	if opts.set["interval"] {
		ms, err := wholeMilliseconds("interval", opts.interval)
		if err != nil {
			return err
		}
		cfg.Stream.IntervalMs = ms
	}
	if opts.set["mode"] {
		cfg.Stream.CounterMode = opts.mode
	}
	if opts.set["listen"] {
		cfg.Receiver.ListenAddr = opts.listen
	}
	if opts.set["timeout"] {
		ms, err := wholeMilliseconds("timeout", opts.timeout)
		if err != nil {
			return err
		}
		cfg.Receiver.TimeoutMs = ms
	}
	if opts.set["pcap"] {
		cfg.Capture.Enabled = opts.pcap != ""
		cfg.Capture.Path = opts.pcap
	}
	if opts.set["metrics-addr"] {
		cfg.Metrics.Enabled = opts.metricsAddr != ""
		cfg.Metrics.Address = opts.metricsAddr
	}
	if opts.set["dscp"] {
		cfg.Transport.DSCP = opts.dscp
	}
	if opts.set["verbose"] {
		cfg.Verbose = opts.verbose
	}
	return nil
}
