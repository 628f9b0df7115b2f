package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/accessterm/cardid-go"
	"github.com/accessterm/cardid-go/config"
	"github.com/accessterm/cardid-go/metrics"
	"github.com/accessterm/cardid-go/reader"
	"github.com/accessterm/cardid-go/relay"
	"github.com/accessterm/cardid-go/report"
	"github.com/accessterm/cardid-go/sink"
	"github.com/accessterm/cardid-go/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var logger = log.New("package", "cardid/cmd/cardprobe")

type flags struct {
	logLevel    string
	reader      string
	timeout     time.Duration
	quick       bool
	watch       bool
	card        string
	output      string
	revealPAN   bool
	panKey      string
	scanAllSFI  bool
	metricsAddr string
	natsURL     string
	natsSubject string
	natsToken   string
	unlock      bool
	allow       string
	pulse       time.Duration
}

func parseFlags(cfg *config.Config) *flags {
	f := &flags{}
	flag.StringVar(&f.logLevel, "l", cfg.LogLevel, `Log level, one of: "ERROR", "WARN", "INFO", "DEBUG", and "TRACE"`)
	flag.StringVar(&f.reader, "r", cfg.Reader, "reader name, the first reader when empty")
	flag.DurationVar(&f.timeout, "timeout", cfg.Timeout, "timeout of a single apdu round trip")
	flag.BoolVar(&f.quick, "quick", false, "identify one card, export it and print the report")
	flag.BoolVar(&f.watch, "watch", false, "identify every card presented until interrupted")
	flag.StringVar(&f.card, "card", "", "card name used with --quick")
	flag.StringVar(&f.output, "output", "", "JSON export file")
	flag.BoolVar(&f.revealPAN, "reveal-pan", false, "export plaintext PANs")
	flag.StringVar(&f.panKey, "pan-key", cfg.PANKey, "key of the PAN fingerprint")
	flag.BoolVar(&f.scanAllSFI, "scan-all-sfi", cfg.ScanAllSFI, "read records of every SFI from 1 to 31")
	flag.StringVar(&f.metricsAddr, "metrics-addr", cfg.MetricsAddr, "serve prometheus metrics on this address")
	flag.StringVar(&f.natsURL, "nats-url", cfg.NATSURL, "publish sessions to this NATS server")
	flag.StringVar(&f.natsSubject, "nats-subject", cfg.NATSSubject, "NATS subject of the sessions")
	flag.StringVar(&f.natsToken, "nats-token", cfg.NATSToken, "NATS auth token")
	flag.BoolVar(&f.unlock, "unlock", false, "pulse the door relay for allowed cards")
	flag.StringVar(&f.allow, "allow", cfg.Allow, "comma separated kinds, brands or identifiers that open the door")
	flag.DurationVar(&f.pulse, "pulse", cfg.Pulse, "door relay pulse duration")
	flag.Parse()

	return f
}

func initLogger(level string) {
	if level == "" {
		level = "info"
	}

	lvl, err := log.LvlFromString(strings.ToLower(level))
	if err != nil {
		stdlog.Fatal(err)
	}

	handler := log.StreamHandler(os.Stderr, log.TerminalFormat(true))
	filteredHandler := log.LvlFilterHandler(lvl, handler)
	log.Root().SetHandler(filteredHandler)
}

func fail(msg string, ctx ...interface{}) {
	logger.Error(msg, ctx...)
	os.Exit(1)
}

// tester keeps the sessions of one run of the tool.
type tester struct {
	runID   string
	monitor *reader.Monitor
	flags   *flags
	relay   relay.Relay
	allow   relay.AllowList

	sessions []*types.CardSession
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		stdlog.Fatal(err)
	}

	f := parseFlags(cfg)
	initLogger(f.logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if f.metricsAddr != "" {
		m = serveMetrics(f.metricsAddr)
	}

	sinks := sink.Multi{sink.LogSink{}}
	if f.natsURL != "" {
		conn, err := sink.ConnectNATS(f.natsURL, f.natsToken)
		if err != nil {
			fail("error connecting to nats", "error", err)
		}
		defer conn.Close()
		sinks = append(sinks, sink.NewNATSSink(conn, f.natsSubject))
	}

	pcsc, err := reader.EstablishContext()
	if err != nil {
		fail("error establishing card context", "error", err)
	}

	identifier := cardid.NewIdentifier(cardid.Options{
		PANKey:     []byte(f.panKey),
		ScanAllSFI: f.scanAllSFI,
		Metrics:    m,
	})

	monitor, err := reader.NewMonitor(pcsc, f.reader, identifier, sinks, f.timeout)
	if err != nil {
		fail("error opening reader", "error", err)
	}
	monitor.SetReconnect(reader.EstablishContext)
	defer func() {
		if err := monitor.Close(); err != nil {
			logger.Error("error releasing context", "error", err)
		}
	}()

	t := &tester{
		runID:   uuid.NewString()[:8],
		monitor: monitor,
		flags:   f,
		allow:   relay.ParseAllowList(f.allow),
	}
	if f.unlock {
		t.relay = &relay.LogRelay{}
	}

	switch {
	case f.quick:
		err = t.quickTest(ctx, f.card, f.output)
	case f.watch:
		err = monitor.Run(ctx, func(s *types.CardSession, _ error) {
			t.unlock(s)
		})
	default:
		err = t.menu(ctx)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fail("error", "error", err)
	}
}

func serveMetrics(addr string) *metrics.Metrics {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	return m
}

// probe waits for a card and identifies it. Aborted sessions are kept too.
func (t *tester) probe(ctx context.Context, name string) (*types.CardSession, error) {
	fmt.Printf("present the card to %s...\n", t.monitor.Reader())
	if err := t.monitor.WaitForCard(ctx); err != nil {
		return nil, err
	}

	s, err := t.monitor.Probe(ctx, name)
	if s != nil {
		t.sessions = append(t.sessions, s)
		t.unlock(s)
	}

	if err != nil {
		fmt.Printf("card not identified: %v\n", err)
		return s, nil
	}

	fmt.Printf("%s: %s (%s) %s\n", name, s.Classification.Label, s.Classification.Kind, s.Classification.Identifier)
	return s, nil
}

func (t *tester) unlock(s *types.CardSession) {
	if t.relay == nil || s == nil {
		return
	}

	if _, err := relay.Unlock(t.relay, t.allow, s, t.flags.pulse); err != nil {
		logger.Error("error pulsing relay", "error", err)
	}
}

func (t *tester) quickTest(ctx context.Context, name, output string) error {
	if name == "" {
		name = "quick test"
	}

	if _, err := t.probe(ctx, name); err != nil {
		return err
	}

	if output == "" {
		output = fmt.Sprintf("quicktest_%s.json", t.runID)
	}

	if err := t.save(ctx, output); err != nil {
		return err
	}

	return t.report()
}

func (t *tester) save(ctx context.Context, path string) error {
	f := sink.NewFileSink(path, t.flags.revealPAN)
	for _, s := range t.sessions {
		if err := f.Record(ctx, s); err != nil {
			return err
		}
	}

	fmt.Printf("results saved to %s\n", path)
	return nil
}

func (t *tester) report() error {
	path := fmt.Sprintf("report_%s.txt", t.runID)
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	now := time.Now()
	if err := report.Write(os.Stdout, t.runID, t.sessions, now); err != nil {
		return err
	}

	if err := report.Write(out, t.runID, t.sessions, now); err != nil {
		return err
	}

	fmt.Printf("\nreport saved to %s\n", path)
	return nil
}

func (t *tester) menu(ctx context.Context) error {
	for {
		fmt.Print("\nOptions:\n\n")
		fmt.Println("1. test one card")
		fmt.Println("2. test several cards")
		fmt.Println("3. compare the first two cards")
		fmt.Println("4. save results")
		fmt.Println("5. write report")
		fmt.Println("6. quick test")
		fmt.Println("7. quit")

		choice, err := ask("choice (1-7)")
		if err != nil {
			return err
		}

		switch choice {
		case "1":
			name, err := ask("card name")
			if err != nil {
				return err
			}
			if _, err := t.probe(ctx, name); err != nil {
				return err
			}
		case "2":
			if err := t.several(ctx); err != nil {
				return err
			}
		case "3":
			if len(t.sessions) < 2 {
				fmt.Println("test at least two cards first")
				continue
			}
			if err := report.Compare(os.Stdout, t.sessions[0], t.sessions[1]); err != nil {
				return err
			}
		case "4":
			path := t.flags.output
			if path == "" {
				path = fmt.Sprintf("cardprobe_%s.json", t.runID)
			}
			if err := t.save(ctx, path); err != nil {
				logger.Error("error saving results", "error", err)
			}
		case "5":
			if err := t.report(); err != nil {
				logger.Error("error writing report", "error", err)
			}
		case "6":
			if err := t.quickTest(ctx, "quick test", "quicktest.json"); err != nil {
				return err
			}
		case "7":
			return nil
		default:
			fmt.Println("invalid choice")
		}
	}
}

func (t *tester) several(ctx context.Context) error {
	answer, err := ask("number of cards")
	if err != nil {
		return err
	}

	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 {
		fmt.Println("invalid number")
		return nil
	}

	for i := 0; i < n; i++ {
		fmt.Printf("\ncard %d of %d\n", i+1, n)
		name, err := ask("card name")
		if err != nil {
			return err
		}

		if _, err := t.probe(ctx, name); err != nil {
			return err
		}

		if i < n-1 {
			fmt.Println("remove the card")
			if err := t.monitor.WaitForRemoval(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

var stdin = bufio.NewReader(os.Stdin)

func ask(description string) (string, error) {
	fmt.Printf("%s: ", description)
	text, err := stdin.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(text), nil
}
