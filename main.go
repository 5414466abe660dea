package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// cliOptions holds the command line; zero values mean "keep the config file value"
type cliOptions struct {
	configPath  string
	receive     bool
	verifyPCAP  string
	host        string
	port        int
	count       int
	interval    time.Duration
	mode        string
	listen      string
	timeout     time.Duration
	pcap        string
	metricsAddr string
	dscp        int
	verbose     bool

	set map[string]bool
}

func parseFlags(args []string, output io.Writer) (*cliOptions, error) {
	opts := &cliOptions{set: make(map[string]bool)}

	fs := flag.NewFlagSet("rtpsend", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&opts.configPath, "config", "", "JSON configuration file")
	fs.BoolVar(&opts.receive, "receive", false, "Listen for a burst and verify it instead of sending")
	fs.StringVar(&opts.verifyPCAP, "verify-pcap", "", "Verify a burst recorded in a pcap file and exit")
	fs.StringVar(&opts.host, "host", "", "Destination host")
	fs.IntVar(&opts.port, "port", 0, "Destination port")
	fs.IntVar(&opts.count, "count", 0, "Number of packets")
	fs.DurationVar(&opts.interval, "interval", 0, "Pause after each packet")
	fs.StringVar(&opts.mode, "mode", "", "Counter mode: legacy, byte or rtp")
	fs.StringVar(&opts.listen, "listen", "", "Listen address in receive mode")
	fs.DurationVar(&opts.timeout, "timeout", 0, "How long to wait for the burst in receive mode")
	fs.StringVar(&opts.pcap, "pcap", "", "Record sent datagrams to this pcap file")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.IntVar(&opts.dscp, "dscp", 0, "DSCP class for outgoing packets (46 = EF)")
	fs.BoolVar(&opts.verbose, "verbose", false, "Log every packet")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	fs.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})

	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return
		}
		log.Fatalf("❌ %v", err)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	app := NewApp(cfg)

	if opts.verifyPCAP != "" {
		err := app.VerifyCapture(opts.verifyPCAP)
		if err != nil {
			log.Fatalf("❌ Capture verification failed: %v", err)
		}
		return
	}

	log.Println("🚀 Starting RTP sender...")

	if err := app.Start(opts.receive); err != nil {
		app.Shutdown()
		log.Fatalf("❌ Error starting: %v", err)
	}

	if opts.receive {
		err = app.RunReceiver()
	} else {
		_, err = app.RunSender()
	}

	app.Shutdown()

	if err != nil {
		log.Fatalf("❌ %v", err)
	}
}
