package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/banshee-data/sample.return/internal/config"
	"github.com/banshee-data/sample.return/internal/db"
	"github.com/banshee-data/sample.return/internal/httputil"
	"github.com/banshee-data/sample.return/internal/monitoring"
	"github.com/banshee-data/sample.return/internal/rover/l4grid"
	"github.com/banshee-data/sample.return/internal/rover/l5decision"
	"github.com/banshee-data/sample.return/internal/rover/monitor"
	"github.com/banshee-data/sample.return/internal/rover/pipeline"
	"github.com/banshee-data/sample.return/internal/rover/storage/sqlite"
	"github.com/banshee-data/sample.return/internal/serialmux"
	"github.com/banshee-data/sample.return/internal/telemetry"
	"github.com/banshee-data/sample.return/internal/timeutil"
	"github.com/banshee-data/sample.return/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", ":9090", "gRPC health listen address (empty disables)")
	port        = flag.String("port", "/dev/ttyUSB0", "Serial port of the rover link")
	baud        = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	replayFile  = flag.String("replay", "", "Replay a .jsonl telemetry recording instead of the serial link")
	replayRate  = flag.Float64("replay-rate", 0, "Replayed frames per second (0 = as fast as possible)")
	dryRun      = flag.Bool("dry-run", false, "Log commands instead of sending them to the rover")
	configFile  = flag.String("config", "", "Tuning config JSON file (default: built-in defaults)")
	dbFile      = flag.String("db", "rover.db", "Path to the SQLite mission database")
	restoreMap  = flag.Bool("restore", false, "Start from the latest stored map snapshot")
	logLevel    = flag.String("log-level", "ops", "Rover log streams to enable: ops, diag or trace")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// logCommands is the command sink used for replay and -dry-run.
type logCommands struct{}

func (logCommands) SendCommand(line string) error {
	log.Printf("[dry-run] %s", line)
	return nil
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		path, args := splitDBFlag(os.Args[2:], "rover.db")
		if err := db.RunMigrateCommand(args, path, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}
	log.Printf("rover %s", version.String())
	monitoring.SetLogger(log.Printf)
	if err := setupLogging(*logLevel, os.Stderr); err != nil {
		log.Fatal(err)
	}

	tuning := config.DefaultTuningConfig()
	if *configFile != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(*configFile); err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}
	cfg := pipeline.ConfigFromTuning(tuning)

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()
	store := sqlite.NewMissionStore(database.DB)

	var link serialmux.SerialMuxInterface
	var commands pipeline.CommandSink = logCommands{}
	source := *replayFile
	if *replayFile != "" {
		link = serialmux.NewDisabledSerialMux()
	} else {
		serialLink, err := serialmux.NewRealSerialMux(*port, serialmux.PortOptions{BaudRate: *baud})
		if err != nil {
			log.Fatalf("failed to open rover link: %v", err)
		}
		link = serialLink
		source = *port
		if !*dryRun {
			commands = serialLink
		}
	}
	defer link.Close()

	rect, closeRect, err := newRectifier(cfg.Vision)
	if err != nil {
		log.Fatalf("failed to create rectifier: %v", err)
	}
	defer closeRect()

	tuningJSON, err := json.Marshal(tuning)
	if err != nil {
		log.Fatalf("failed to encode tuning config: %v", err)
	}
	mission := &sqlite.Mission{Source: source, WorldSize: cfg.Grid.Size, TuningJSON: string(tuningJSON)}
	if err := store.StartMission(mission); err != nil {
		log.Fatalf("failed to start mission: %v", err)
	}
	log.Printf("mission %s started (source %s)", mission.MissionID, source)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	p, err := pipeline.New(cfg, pipeline.Options{
		MissionID: mission.MissionID,
		Commands:  commands,
		Recorder:  store,
		Maps:      store,
		Metrics:   metrics,
		Rectifier: rect,
	})
	if err != nil {
		log.Fatalf("failed to create pipeline: %v", err)
	}
	if *restoreMap {
		if err := restoreLatest(p, store); err != nil {
			log.Printf("starting with an empty map: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	step := func(f telemetry.Frame) error {
		_, err := p.Step(ctx, f)
		if errors.Is(err, pipeline.ErrClosed) || ctx.Err() != nil {
			return err
		}
		// Sink failures are logged and counted by the pipeline.
		return nil
	}
	handler := serialmux.NewLinkHandler(step)

	mon := monitor.NewServer(monitor.ServerConfig{
		Address:     *listen,
		GRPCAddress: *grpcListen,
		Source:      p,
		Gatherer:    reg,
	})
	link.AttachAdminRoutes(mon.Mux())
	if err := database.AttachAdminRoutes(mon.Mux()); err != nil {
		log.Printf("failed to attach database admin routes: %v", err)
	}
	mon.Mux().HandleFunc("/api/link", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w, http.MethodGet)
			return
		}
		state := map[string]any{"device": handler.DeviceState()}
		if d, ok := link.(interface{ Dropped() uint64 }); ok {
			state["dropped_lines"] = d.Dropped()
		}
		httputil.WriteJSONOK(w, state)
	})

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mon.Start(ctx); err != nil {
			log.Printf("monitor failed: %v", err)
			stop()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := link.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor rover link: %v", err)
			stop()
		}
		log.Print("link monitor terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if *replayFile != "" {
			runReplay(ctx, *replayFile, *replayRate, step)
			stop()
			return
		}
		if err := serialmux.Pump(ctx, link, handler); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("link pump stopped: %v", err)
		}
	}()

	<-ctx.Done()
	wg.Wait()

	if err := p.Close(); err != nil {
		log.Printf("failed to close pipeline: %v", err)
	}
	view := p.View()
	if err := store.EndMission(mission.MissionID, view.Controller.Mode, view.Cycles); err != nil {
		log.Printf("failed to end mission: %v", err)
	}
	log.Printf("mission %s ended in %s after %d cycles; coverage %+v",
		mission.MissionID, view.Controller.Mode, view.Cycles, view.Coverage)
}

func runReplay(ctx context.Context, path string, rate float64, step func(telemetry.Frame) error) {
	f, err := os.Open(path)
	if err != nil {
		log.Printf("failed to open replay file: %v", err)
		return
	}
	defer f.Close()

	var period time.Duration
	if rate > 0 {
		period = time.Duration(float64(time.Second) / rate)
	}
	n, err := telemetry.Replay(ctx, f, timeutil.RealClock{}, period, step)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("replay stopped after %d frames: %v", n, err)
		return
	}
	log.Printf("replayed %d frames from %s", n, path)
}

// restoreLatest loads the newest stored map into p.
func restoreLatest(p *pipeline.Pipeline, store *sqlite.MissionStore) error {
	snap, err := store.LatestMapSnapshot()
	if err != nil {
		return err
	}
	if snap == nil {
		return errors.New("no stored snapshot")
	}
	return p.Restore(snap)
}

// setupLogging enables the rover packages' log streams up to level.
func setupLogging(level string, w io.Writer) error {
	var ops, diag, trace io.Writer
	switch strings.ToLower(level) {
	case "trace":
		trace = w
		fallthrough
	case "diag":
		diag = w
		fallthrough
	case "ops":
		ops = w
	case "off":
	default:
		return fmt.Errorf("unknown log level %q: want ops, diag, trace or off", level)
	}
	l4grid.SetLogWriters(ops, diag, trace)
	l5decision.SetLogWriters(ops, diag, trace)
	pipeline.SetLogWriters(ops, diag, trace)
	return nil
}

// splitDBFlag extracts -db/--db from the migrate arguments, which may
// appear anywhere after the action.
func splitDBFlag(args []string, def string) (string, []string) {
	path := def
	var rest []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-db" || a == "--db":
			if i+1 < len(args) {
				path = args[i+1]
				i++
			}
		case strings.HasPrefix(a, "-db="):
			path = strings.TrimPrefix(a, "-db=")
		case strings.HasPrefix(a, "--db="):
			path = strings.TrimPrefix(a, "--db=")
		default:
			rest = append(rest, a)
		}
	}
	return path, rest
}
