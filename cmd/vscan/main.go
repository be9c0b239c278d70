package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vscan/vscan/internal/cache"
	"github.com/vscan/vscan/internal/config"
	"github.com/vscan/vscan/internal/discovery"
	"github.com/vscan/vscan/internal/engine"
	"github.com/vscan/vscan/internal/eventbus"
	"github.com/vscan/vscan/internal/filter"
	"github.com/vscan/vscan/internal/logging"
	"github.com/vscan/vscan/internal/model"
	"github.com/vscan/vscan/internal/notifications"
	"github.com/vscan/vscan/internal/progress"
	"github.com/vscan/vscan/internal/resolver"
	"github.com/vscan/vscan/internal/statusserver"
)

func main() {
	os.Exit(run())
}

func run() int {
	extensionsDir := flag.String("extensions-dir", "", "extensions directory to scan (default: platform auto-detect)")
	cacheDir := flag.String("cache-dir", defaultCacheDir(), "directory for the local verdict cache")
	baseURL := flag.String("resolver-url", "", "base URL of the remote analyzer (required)")
	workers := flag.Int("workers", 3, "worker pool size, 1..5")
	requestDelay := flag.Float64("request-delay", 2.0, "minimum seconds between requests from one worker")
	maxRetries := flag.Int("max-retries", 3, "maximum retry attempts per request")
	retryBaseDelay := flag.Float64("retry-base-delay", 1.0, "base backoff delay in seconds")
	cacheMaxAgeDays := flag.Int("cache-max-age-days", 7, "cache entry max age in days")
	useCache := flag.Bool("use-cache", true, "consult and populate the local cache")
	refreshCache := flag.Bool("refresh-cache", false, "bypass cache reads for this scan")
	detailed := flag.Bool("detailed", false, "retain raw analyzer payloads in verdicts")
	includeIDs := flag.String("include", "", "comma-separated extension_id allowlist")
	excludeIDs := flag.String("exclude", "", "comma-separated extension_id denylist")
	publisher := flag.String("publisher", "", "restrict to one publisher")
	minRiskLevel := flag.String("min-risk-level", "", "minimum risk_level to report")
	riskPolicyPath := flag.String("risk-policy", "", "optional risk-policy.yaml path")
	statusAddr := flag.String("status-addr", "", "optional localhost status server address, e.g. 127.0.0.1:8787")
	eventBusEnabled := flag.Bool("event-bus", false, "enable the embedded NATS event bus")
	debug := flag.Bool("debug", false, "verbose logging")

	flag.Parse()

	log := logging.New(os.Stderr, *debug)

	if *baseURL == "" {
		fmt.Fprintln(os.Stderr, "resolver-url is required")
		return engine.ExitScanIncomplete
	}

	policy := filter.Policy{}
	if *riskPolicyPath != "" {
		p, ok, err := filter.LoadPolicy(*riskPolicyPath)
		if err != nil {
			log.Errorf("loading risk policy: %v", err)
			return engine.ExitScanIncomplete
		}
		if ok {
			policy = p
		}
	}

	minRisk := policy.MinRiskLevelParsed()
	if *minRiskLevel != "" {
		minRisk = model.ParseRiskLevel(*minRiskLevel)
	}

	builder := config.DefaultBuilder()
	builder.Workers = *workers
	builder.RequestDelay = durationFromSeconds(*requestDelay)
	builder.MaxRetries = *maxRetries
	builder.RetryBaseDelay = durationFromSeconds(*retryBaseDelay)
	builder.CacheMaxAge = time.Duration(*cacheMaxAgeDays) * 24 * time.Hour
	builder.UseCache = *useCache
	builder.RefreshCache = *refreshCache
	builder.CacheDir = *cacheDir
	builder.ExtensionsDir = *extensionsDir
	builder.Detailed = *detailed
	builder.Filters = config.Filters{
		IncludeIDs:   splitCSV(*includeIDs),
		ExcludeIDs:   splitCSV(*excludeIDs),
		Publisher:    *publisher,
		MinRiskLevel: minRisk,
	}

	cfg, err := builder.Freeze()
	if err != nil {
		log.Errorf("invalid configuration: %v", err)
		return engine.ExitScanIncomplete
	}

	extDir := cfg.ExtensionsDir().String()
	if cfg.ExtensionsDirAuto() {
		dir, err := discovery.DefaultExtensionsDir()
		if err != nil {
			log.Errorf("resolving default extensions directory: %v", err)
			return engine.ExitScanIncomplete
		}
		extDir = dir
	}

	refs, err := discovery.Discover(extDir, log)
	if err != nil {
		log.Errorf("discovery failed: %v", err)
		return engine.ExitScanIncomplete
	}

	var store *cache.Store
	if cfg.UseCache() {
		store, err = cache.Open(cfg.CacheDir().String())
		if err != nil {
			log.Errorf("opening cache: %v", err)
			return engine.ExitScanIncomplete
		}
		defer store.Close()
		if store.RegeneratedKey() {
			log.Warnf("cache key regenerated; all prior cache entries invalidated")
		}
	}

	ports := []progress.Port{progress.NewLogPort(log)}

	var bus *eventbus.Server
	if *eventBusEnabled {
		bus, err = eventbus.NewServer(eventbus.Config{})
		if err != nil {
			log.Errorf("creating event bus: %v", err)
		} else if err := bus.Start(5 * time.Second); err != nil {
			log.Errorf("starting event bus: %v", err)
			bus = nil
		} else {
			conn, err := bus.Connect()
			if err != nil {
				log.Errorf("connecting to event bus: %v", err)
			} else {
				ports = append(ports, eventbus.NewPublisher(conn))
			}
			defer bus.Shutdown()
		}
	}

	var status *statusserver.Server
	if *statusAddr != "" {
		status = statusserver.New(*statusAddr, store)
		if err := status.Start(); err != nil {
			log.Errorf("starting status server: %v", err)
		} else {
			ports = append(ports, status.Port())
			defer status.Shutdown(context.Background())
		}
	}

	notifier := notifications.NewToastNotifier("vscan", "", policy.ExitThresholdParsed())
	if notifier.IsSupported() {
		ports = append(ports, notifier)
	}

	port := progress.Multi{Ports: ports}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := engine.New(cfg, store, func() resolver.Resolver {
		r, err := resolver.New(resolver.Options{
			BaseURL:           *baseURL,
			RequestDelay:      cfg.RequestDelay(),
			MaxRetries:        cfg.MaxRetries(),
			RetryBaseDelay:    cfg.RetryBaseDelay(),
			MaxResponseBytes:  cfg.MaxResponseBytes(),
			PerRequestTimeout: cfg.PerRequestTimeout(),
			Detailed:          cfg.Detailed(),
		})
		if err != nil {
			log.Errorf("building resolver client: %v", err)
			return resolver.Nop{}
		}
		return r
	}, filter.Set{
		IncludeIDs:   cfg.Filters().IncludeIDs,
		ExcludeIDs:   cfg.Filters().ExcludeIDs,
		Publisher:    cfg.Filters().Publisher,
		MinRiskLevel: cfg.Filters().MinRiskLevel,
	}, port, log)

	result := e.Run(ctx, refs, policy.ExitThresholdParsed())
	return result.ExitCode
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vscan-cache"
	}
	return home + string(os.PathSeparator) + ".vscan" + string(os.PathSeparator) + "cache"
}
