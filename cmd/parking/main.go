package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/parking.report/internal/config"
	"github.com/banshee-data/parking.report/internal/db"
	"github.com/banshee-data/parking.report/internal/metrics"
	"github.com/banshee-data/parking.report/internal/monitor"
	"github.com/banshee-data/parking.report/internal/monitoring"
	"github.com/banshee-data/parking.report/internal/parking/engine"
	"github.com/banshee-data/parking.report/internal/parking/sink"
	"github.com/banshee-data/parking.report/internal/parking/supervisor"
	"github.com/banshee-data/parking.report/internal/timeutil"
	"github.com/banshee-data/parking.report/internal/version"
)

var (
	configFile      = flag.String("config", config.DefaultConfigPath, "Occupancy tuning JSON file (empty uses built-in defaults)")
	lotsFile        = flag.String("lots", "lots.yaml", "Lots YAML file")
	dbFile          = flag.String("db", "parking.db", "SQLite report database (empty disables history)")
	listen          = flag.String("listen", ":8090", "Monitor HTTP listen address (empty disables the monitor)")
	logLevel        = flag.String("log-level", "ops", "Log streams to enable: quiet, ops, diag or trace")
	logReports      = flag.Bool("log-reports", false, "Write one log line per report")
	maxParallel     = flag.Int("max-parallel", 0, "Maximum lots processed at once (0 = all)")
	mqttBroker      = flag.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (empty disables MQTT)")
	mqttClientID    = flag.String("mqtt-client-id", "parking-report", "MQTT client id")
	mqttTopic       = flag.String("mqtt-topic-prefix", sink.DefaultTopicPrefix, "MQTT topic prefix; the lot id is appended")
	mqttUser        = flag.String("mqtt-user", "", "MQTT username")
	mqttQoS         = flag.Int("mqtt-qos", 1, "MQTT publish QoS (0, 1 or 2)")
	detectorTimeout = flag.Duration("detector-timeout", 10*time.Second, "Timeout for HTTP detector requests")
	retention       = flag.Duration("retention", 0, "Delete stored reports older than this (0 keeps everything)")
	showVersion     = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	// Runs after every other deferred close.
	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	if *showVersion {
		v := version.Get()
		fmt.Printf("parking %s (%s, built %s)\n", v.Version, v.GitSHA, v.BuildTime)
		return
	}

	level, err := monitoring.ParseLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	monitoring.NewStreams(level, os.Stderr).Apply(engine.SetLogWriters, supervisor.SetLogWriters)

	occupancy := &config.OccupancyConfig{}
	if *configFile != "" {
		occupancy, err = config.LoadOccupancyConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load occupancy config: %v", err)
		}
	}
	lots, err := config.LoadLots(*lotsFile)
	if err != nil {
		log.Fatalf("failed to load lots: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	sinks := sink.Multi{sink.Metrics{Observer: m}}
	if *logReports {
		sinks = append(sinks, sink.NewLog(os.Stdout))
	}

	var store *db.ReportStore
	if *dbFile != "" {
		database, err := db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()
		store = db.NewReportStore(database)
		sinks = append(sinks, store)
	}

	if *mqttBroker != "" {
		if *mqttQoS < 0 || *mqttQoS > 2 {
			log.Fatalf("mqtt-qos must be 0, 1 or 2, got %d", *mqttQoS)
		}
		client, publish, err := sink.DialMQTT(sink.MQTTOptions{
			Broker:   *mqttBroker,
			ClientID: *mqttClientID,
			Username: *mqttUser,
			Password: os.Getenv("PARKING_MQTT_PASSWORD"),
			QoS:      byte(*mqttQoS),
		})
		if err != nil {
			log.Fatalf("failed to connect to MQTT broker: %v", err)
		}
		defer client.Disconnect(250)
		sinks = append(sinks, sink.NewMQTT(*mqttTopic, publish))
		log.Printf("publishing reports to %s under %s/", *mqttBroker, *mqttTopic)
	}

	specs := buildLotSpecs(lots, buildDeps{
		occupancy:       occupancy,
		baseDir:         filepath.Dir(*lotsFile),
		sink:            sinks,
		clock:           timeutil.RealClock{},
		detectorTimeout: *detectorTimeout,
	})

	sup := supervisor.New(
		supervisor.WithMaxParallel(*maxParallel),
		supervisor.WithStartHook(m.RegisterEngine),
	)

	var wg sync.WaitGroup

	// HTTP monitor
	if *listen != "" {
		srv := monitor.NewServer(monitor.Config{
			Address: *listen,
			Lots:    sup,
			Reports: reportsOrNil(store),
			Metrics: m.Handler(),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil {
				log.Printf("monitor server error: %v", err)
			}
		}()
	}

	// report retention
	if store != nil && *retention > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pruneLoop(ctx, store, *retention)
		}()
	}

	log.Printf("running %d lots", len(specs))
	runErr := sup.Run(ctx, specs)
	for _, st := range sup.Status() {
		log.Printf("lot %s: %s %s", st.LotID, st.State, st.Err)
	}

	// Sources are finite when replaying; keep serving the monitor until
	// a signal arrives.
	if *listen != "" && ctx.Err() == nil {
		log.Printf("all lots finished; monitor still serving on %s", *listen)
	}
	<-waitOrSignal(ctx, *listen == "" && (store == nil || *retention == 0))
	stop()
	wg.Wait()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Printf("finished with errors: %v", runErr)
		exitCode = 1
		return
	}
	log.Printf("graceful shutdown complete")
}

// reportsOrNil keeps a nil *db.ReportStore from becoming a non-nil
// interface.
func reportsOrNil(s *db.ReportStore) monitor.Reports {
	if s == nil {
		return nil
	}
	return s
}

// waitOrSignal returns a channel that is closed at once when nothing
// else needs the process alive, or when ctx ends.
func waitOrSignal(ctx context.Context, exitNow bool) <-chan struct{} {
	if exitNow {
		c := make(chan struct{})
		close(c)
		return c
	}
	return ctx.Done()
}

func pruneLoop(ctx context.Context, store *db.ReportStore, keep time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := store.PruneBefore(ctx, time.Now().Add(-keep))
		if err != nil && ctx.Err() == nil {
			log.Printf("failed to prune reports: %v", err)
		} else if n > 0 {
			log.Printf("pruned %d reports older than %s", n, keep)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
