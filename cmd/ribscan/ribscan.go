package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/emunet/ribscan/audit"
	"github.com/emunet/ribscan/fleet"
	"github.com/emunet/ribscan/probe"
	"github.com/emunet/ribscan/substrate"
	"github.com/emunet/ribscan/vrpcheck"

	"github.com/cloudflare/gortr/prefixfile"
	"github.com/rs/cors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	// Debugging
	"net/http/pprof"

	"github.com/getsentry/sentry-go"
	"github.com/opentracing/opentracing-go"
	jcfg "github.com/uber/jaeger-client-go/config"
)

var (
	version    = ""
	buildinfos = ""
	AppVersion = "RIBScan " + version + " " + buildinfos

	// Probe Options
	Parallel     = flag.Int("probe.parallel", 4, "Maximum concurrent probes")
	ProbeTimeout = flag.Duration("probe.timeout", time.Second*10, "Per-attempt probe timeout")
	Retries      = flag.Int("probe.retries", 2, "Maximum probe attempts per router")
	Backoff      = flag.Duration("probe.backoff", time.Millisecond*500, "Pause between attempts on the same router")
	ProbeCommand = flag.String("probe.command", "birdc show route", "RIB dump command run inside each router")

	// Substrate Options
	DockerBin       = flag.String("docker.bin", substrate.DefaultBin(), "The docker binary to use")
	DiscoverTimeout = flag.Duration("discover.timeout", time.Second*30, "Inventory listing timeout")

	// Fleet Options
	Namespace   = flag.String("fleet.namespace", "emu", "Name prefix of fleet instances")
	FleetConfig = flag.String("fleet.config", "", "YAML file overriding the fleet naming convention")

	Mode    = flag.String("mode", "oneoff", "Select audit mode (server/oneoff)")
	Refresh = flag.Duration("refresh", time.Minute*5, "Re-audit interval in server mode")

	// Serving Options
	Addr        = flag.String("http.addr", ":8082", "Listening address")
	ReportPath  = flag.String("http.report", "/report", "Report endpoint")
	MetricsPath = flag.String("http.metrics", "/metrics", "Prometheus metrics endpoint")
	HealthPath  = flag.String("http.health", "/health", "Health URL")

	CorsOrigins = flag.String("cors.origins", "*", "Cors origins separated by comma")
	CorsCreds   = flag.Bool("cors.creds", false, "Cors enable credentials")

	// File option
	OutputJSON = flag.String("output.json", "", "Also write the JSON report envelope to this file")

	// VRP correlation
	VRPFile   = flag.String("vrp.file", "", "VRP file or HTTP URL (GoRTR output.json format) for the origin check")
	VRPASN    = flag.Uint("vrp.asn", 0, "Origin AS to check the audited prefix against")
	UserAgent = flag.String("useragent", fmt.Sprintf("RIBScan/%v (+https://github.com/emunet/ribscan)", version), "User-Agent header")

	LogLevel = flag.String("loglevel", "info", "Log level")

	// Debugging options
	Pprof     = flag.Bool("pprof", false, "Enable pprof endpoint")
	Tracer    = flag.Bool("tracer", false, "Enable tracer")
	SentryDSN = flag.String("sentry.dsn", "", "Send errors to Sentry")

	Version = flag.Bool("version", false, "Print version")
)

var (
	MetricFleetSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_instances",
			Help: "Instances discovered in the last audit, per kind.",
		},
		[]string{"kind"},
	)
	MetricRouterOutcome = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audit_outcomes",
			Help: "Routers per outcome in the last audit.",
		},
		[]string{"outcome"},
	)
	MetricProbeRetries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "probe_retries",
			Help: "Extra probe attempts consumed in the last audit.",
		},
	)
	MetricState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "state",
			Help: "State of the auditor (1 = report available, 0 = none).",
		},
	)
	MetricLastAudit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "last_audit",
			Help: "Timestamp of last completed audit.",
		},
	)
	MetricOperationTime = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "operation_time",
			Help:       "Time to run an operation.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(MetricFleetSize)
	prometheus.MustRegister(MetricRouterOutcome)
	prometheus.MustRegister(MetricProbeRetries)
	prometheus.MustRegister(MetricState)
	prometheus.MustRegister(MetricLastAudit)
	prometheus.MustRegister(MetricOperationTime)
}

type RIBScan struct {
	Sub     substrate.Substrate
	Conv    *fleet.Convention
	Target  *probe.Matcher
	Pool    *probe.Pool
	Command string

	VRPIndex *vrpcheck.Index
	VRPASN   uint32

	Envelope   *audit.Envelope
	EnvelopeMu sync.RWMutex

	tracer opentracing.Tracer
}

func NewRIBScan(target *probe.Matcher, conv *fleet.Convention) *RIBScan {
	sub := &substrate.Docker{
		Bin: *DockerBin,
		Log: log.StandardLogger(),
	}
	return &RIBScan{
		Sub:     sub,
		Conv:    conv,
		Target:  target,
		Command: *ProbeCommand,
		Pool: &probe.Pool{
			Workers:     *Parallel,
			MaxAttempts: *Retries,
			Backoff:     *Backoff,
			Timeout:     *ProbeTimeout,
			Prober: &probe.RIBProber{
				Sub:     sub,
				Command: strings.Fields(*ProbeCommand),
				Log:     log.StandardLogger(),
			},
			Log: log.StandardLogger(),
		},
		tracer: opentracing.GlobalTracer(),
	}
}

func captureError(err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		if errC, ok := err.(interface{ SetSentryScope(*sentry.Scope) }); ok {
			errC.SetSentryScope(scope)
		}
		sentry.CaptureException(err)
	})
}

// audit performs one full pass: discover, probe, aggregate, annotate.
// Only a failed discovery returns an error; per-router failures are
// findings inside the report.
func (s *RIBScan) audit(ctx context.Context) (*audit.Envelope, error) {
	span := s.tracer.StartSpan("audit")
	defer span.Finish()
	span.SetTag("prefix", s.Target.Prefix())

	started := time.Now().UTC()

	dSpan := s.tracer.StartSpan("discover", opentracing.ChildOf(span.Context()))
	t1 := time.Now()
	dctx, cancel := context.WithTimeout(ctx, *DiscoverTimeout)
	inv, err := fleet.Discover(dctx, s.Sub, s.Conv)
	cancel()
	MetricOperationTime.With(prometheus.Labels{"type": "discover"}).Observe(time.Since(t1).Seconds())
	if err != nil {
		dSpan.SetTag("error", true)
		dSpan.Finish()
		return nil, err
	}
	dSpan.SetTag("routers", len(inv.Routers))
	dSpan.SetTag("validators", len(inv.Validators))
	dSpan.Finish()

	for _, warning := range inv.Warnings {
		log.Warnf("discovery: skipping %s: %s", warning.Name, warning.Reason)
	}
	MetricFleetSize.With(prometheus.Labels{"kind": "router"}).Set(float64(len(inv.Routers)))
	MetricFleetSize.With(prometheus.Labels{"kind": "validator"}).Set(float64(len(inv.Validators)))
	MetricFleetSize.With(prometheus.Labels{"kind": "warning"}).Set(float64(len(inv.Warnings)))

	pSpan := s.tracer.StartSpan("probe", opentracing.ChildOf(span.Context()))
	pSpan.SetTag("routers", len(inv.Routers))
	t1 = time.Now()
	results := s.Pool.ProbeAll(ctx, inv.Routers, s.Target)
	MetricOperationTime.With(prometheus.Labels{"type": "probe"}).Observe(time.Since(t1).Seconds())
	pSpan.Finish()

	var retries int
	for _, res := range results {
		retries += res.Attempts - 1
		if res.State == probe.STATE_INDETERMINATE {
			captureError(probe.NewProbeErrorExhausted(res))
		}
	}
	MetricProbeRetries.Set(float64(retries))

	aSpan := s.tracer.StartSpan("aggregate", opentracing.ChildOf(span.Context()))
	t1 = time.Now()
	report := audit.Aggregate(s.Target.Prefix(), results, inv.Validators)
	MetricOperationTime.With(prometheus.Labels{"type": "aggregate"}).Observe(time.Since(t1).Seconds())
	aSpan.Finish()

	if s.VRPIndex != nil {
		verdict, err := s.VRPIndex.Validate(s.Target.Prefix(), s.VRPASN)
		if err != nil {
			log.Errorf("vrp check failed: %v", err)
		} else {
			report.VRP = &audit.VRPVerdict{
				ASN:      s.VRPASN,
				State:    vrpcheck.StateToName[verdict.State],
				Covering: verdict.Descriptions(),
			}
		}
	}

	MetricRouterOutcome.With(prometheus.Labels{"outcome": audit.OUTCOME_HIJACKED}).Set(float64(report.HijackedCount))
	MetricRouterOutcome.With(prometheus.Labels{"outcome": audit.OUTCOME_CLEAN}).Set(float64(report.CleanCount))
	MetricRouterOutcome.With(prometheus.Labels{"outcome": audit.OUTCOME_FAILED}).Set(float64(report.FailedCount))
	MetricLastAudit.Set(float64(time.Now().Unix()))

	warnings := make([]string, 0, len(inv.Warnings))
	for _, warning := range inv.Warnings {
		warnings = append(warnings, fmt.Sprintf("%s: %s", warning.Name, warning.Reason))
	}

	return &audit.Envelope{
		RunID:      uuid.New().String(),
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Params: audit.Params{
			Prefix:      s.Target.Prefix(),
			Namespace:   s.Conv.Namespace,
			Command:     s.Command,
			Workers:     s.Pool.Workers,
			MaxAttempts: s.Pool.MaxAttempts,
			Timeout:     s.Pool.Timeout.String(),
			Backoff:     s.Pool.Backoff.String(),
		},
		Warnings: warnings,
		Report:   report,
	}, nil
}

func (s *RIBScan) setEnvelope(envelope *audit.Envelope) {
	s.EnvelopeMu.Lock()
	defer s.EnvelopeMu.Unlock()

	s.Envelope = envelope
}

func (s *RIBScan) getEnvelope() *audit.Envelope {
	s.EnvelopeMu.RLock()
	defer s.EnvelopeMu.RUnlock()

	return s.Envelope
}

func (s *RIBScan) ServeReport(w http.ResponseWriter, r *http.Request) {
	envelope := s.getEnvelope()
	if envelope == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Report not ready yet"))
		return
	}

	w.Header().Set("Content-Type", "application/json")

	etag := sha256.New()
	etag.Write([]byte(envelope.RunID))
	etagSumHex := hex.EncodeToString(etag.Sum(nil))

	if match := r.Header.Get("If-None-Match"); match != "" {
		if match == etagSumHex {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.Header().Set("Etag", etagSumHex)
	audit.WriteJSON(w, envelope)
}

func (s *RIBScan) ServeHealth(w http.ResponseWriter, r *http.Request) {
	if s.getEnvelope() != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("Not ready yet"))
}

func (s *RIBScan) Serve(addr string, path string, metricsPath string, healthPath string, corsOrigin string, corsCreds bool) {
	fullPath := path
	if len(path) > 0 && string(path[0]) != "/" {
		fullPath = "/" + path
	}
	log.Infof("Serving HTTP on %v%v", addr, fullPath)

	r := http.NewServeMux()

	r.HandleFunc(fullPath, s.ServeReport)
	r.HandleFunc(healthPath, s.ServeHealth)
	r.Handle(metricsPath, promhttp.Handler())

	if *Pprof {
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.HandleFunc("/debug/pprof/", pprof.Index)
	}

	corsReq := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(corsOrigin, ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowCredentials: corsCreds,
	}).Handler(r)

	log.Fatal(http.ListenAndServe(addr, corsReq))
}

func (s *RIBScan) auditLoop(ctx context.Context) {
	for {
		envelope, err := s.audit(ctx)
		if err != nil {
			MetricState.Set(float64(0))
			captureError(err)
			log.Errorf("Audit failed: %v", err)
		} else {
			s.setEnvelope(envelope)
			MetricState.Set(float64(1))
			r := envelope.Report
			log.Infof("Audit %s done: %d routers, %d hijacked, %d clean, %d failed",
				envelope.RunID, r.TotalRouters, r.HijackedCount, r.CleanCount, r.FailedCount)
		}

		log.Infof("Re-auditing in %v", *Refresh)
		<-time.After(*Refresh)
	}
}

func (s *RIBScan) oneoff(ctx context.Context) {
	envelope, err := s.audit(ctx)
	if err != nil {
		captureError(err)
		log.Fatalf("Audit failed: %v", err)
	}
	s.setEnvelope(envelope)

	rSpan := s.tracer.StartSpan("render")
	t1 := time.Now()
	if err := audit.Render(os.Stdout, envelope.Report); err != nil {
		log.Fatalf("Unable to render report: %v", err)
	}
	MetricOperationTime.With(prometheus.Labels{"type": "render"}).Observe(time.Since(t1).Seconds())
	rSpan.Finish()

	if *OutputJSON != "" {
		if err := writeEnvelope(envelope, *OutputJSON); err != nil {
			log.Fatalf("Output failed: %v", err)
		}
	}
}

func writeEnvelope(envelope *audit.Envelope, path string) error {
	var buf bytes.Buffer
	if err := audit.WriteJSON(&buf, envelope); err != nil {
		return fmt.Errorf("unable to marshal report envelope: %v", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("Unable to write report to %q: %v", path, err)
	}

	return nil
}

func makeConvention() (*fleet.Convention, error) {
	if *FleetConfig != "" {
		return fleet.LoadConvention(*FleetConfig)
	}
	conv := fleet.DefaultConvention()
	conv.Namespace = *Namespace
	return conv, nil
}

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	flag.Parse()
	if *Version {
		fmt.Println(AppVersion)
		os.Exit(0)
	}

	lvl, _ := log.ParseLevel(*LogLevel)
	log.SetLevel(lvl)

	if err := godotenv.Load(); err == nil {
		log.Debug("Loaded environment from .env")
	}

	sentryDsn := *SentryDSN
	if sentryDsn == "" {
		sentryDsn = os.Getenv("SENTRY_DSN")
	}
	if sentryDsn != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn: sentryDsn,
		})
		if err != nil {
			log.Fatalf("failed initializing sentry: %s", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if *Tracer {
		cfg, err := jcfg.FromEnv()
		if err != nil {
			log.Fatal(err)
		}
		tracer, closer, err := cfg.NewTracer()
		if err != nil {
			log.Fatal(err)
		}
		defer closer.Close()
		opentracing.SetGlobalTracer(tracer)
	}

	prefix := flag.Arg(0)
	if prefix == "" {
		prefix = os.Getenv("RIBSCAN_PREFIX")
	}
	if prefix == "" {
		fmt.Fprintln(os.Stderr, "missing target prefix (CIDR) argument")
		flag.Usage()
		os.Exit(2)
	}

	target, err := probe.NewMatcher(prefix)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	conv, err := makeConvention()
	if err != nil {
		log.Fatalf("Unable to load fleet convention: %v", err)
	}

	s := NewRIBScan(target, conv)

	if *VRPFile != "" {
		if *VRPASN == 0 {
			log.Warn("vrp.file given without vrp.asn, skipping origin check")
		} else {
			var roalist *prefixfile.ROAList
			var err error
			if strings.HasPrefix(*VRPFile, "http://") || strings.HasPrefix(*VRPFile, "https://") {
				fetcher := &vrpcheck.Fetcher{
					UserAgent: *UserAgent,
					Client: &http.Client{
						Timeout: time.Second * 30,
					},
				}
				roalist, err = fetcher.GetVRPs(*VRPFile)
			} else {
				roalist, err = vrpcheck.Load(*VRPFile)
			}
			if err != nil {
				log.Fatalf("Unable to load VRP file: %v", err)
			}

			vrps := vrpcheck.FilterDuplicates(vrpcheck.FilterInvalidVRPs(roalist.Data))
			if dropped := len(roalist.Data) - len(vrps); dropped > 0 {
				log.Warnf("Dropped %d invalid or duplicate VRPs from %s", dropped, *VRPFile)
			}

			s.VRPIndex = vrpcheck.NewIndex(vrps)
			s.VRPASN = uint32(*VRPASN)
			log.Infof("Loaded %d VRPs from %s", len(vrps), *VRPFile)
		}
	}

	log.Infof("Audit started for %s (namespace: %s)", target.Prefix(), conv.Namespace)

	if *Mode == "server" {
		go s.Serve(*Addr, *ReportPath, *MetricsPath, *HealthPath, *CorsOrigins, *CorsCreds)
		s.auditLoop(context.Background())
	} else if *Mode == "oneoff" {
		s.oneoff(context.Background())
	} else {
		log.Fatalf("Mode %v is not specified. Choose either server or oneoff", *Mode)
	}
}
