// Command seatagd is the tracker firmware's super-loop (spec.md §5): a
// single-threaded cooperative scheduler calling, in turn, the top-level
// state machine, the protocol engine, and the log-ring drain — the Go
// stand-in for the target MCU's main() when built without devhw, or the
// devhw-tagged bench harness wired to real flash and an FTDI SPI bridge.
package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/seatag/firmware/cfgstore"
	"github.com/seatag/firmware/conf"
	"github.com/seatag/firmware/flashfs"
	"github.com/seatag/firmware/proto"
	"github.com/seatag/firmware/ringbuf"
	"github.com/seatag/firmware/senslog"
	"github.com/seatag/firmware/sm"
	"github.com/seatag/firmware/transport/wstransport"
)

const logRingSlots = 8

func main() {
	boardConfig := flag.String("board-config", "", "path to a board configuration JSON file")
	listenAddr := flag.String("listen", "127.0.0.1:7326", "address the transport-bridge websocket listens on")
	logLevel := flag.String("log-level", "info", "logrus level (debug, info, warn, error)")
	flag.Parse()

	if lvl, err := log.ParseLevel(*logLevel); err == nil {
		log.SetLevel(lvl)
	}

	cfg, err := conf.LoadFile(*boardConfig)
	if err != nil {
		log.WithError(err).Fatal("seatagd: loading board configuration")
	}

	dev := newBlockDevice(cfg)
	if err := flashfs.Init(dev, cfg); err != nil {
		log.WithError(err).Info("seatagd: formatting fresh flash")
		if err := flashfs.Format(dev, cfg); err != nil {
			log.WithError(err).Fatal("seatagd: formatting flash")
		}
	}
	fs, err := flashfs.Mount(dev, cfg)
	if err != nil {
		log.WithError(err).Fatal("seatagd: mounting flash file system")
	}

	store, err := cfgstore.Restore(fs)
	if err != nil {
		log.WithError(err).Warn("seatagd: no persisted configuration, starting unconfigured")
		store = cfgstore.New()
	}

	gpsHW := &stubGPSHardware{}
	gpsSub := sm.NewGPSMachine(gpsHW)
	engine := proto.New(fs, store, cfg.TransportPacketLen,
		&gpsBridge{sub: gpsSub, hw: stubGPSPassthrough{}},
		bleBridge{})

	platform := &devicePlatform{
		fs:      fs,
		store:   store,
		engine:  engine,
		sensors: fixedSensors{},
		gps:     gpsSub,
		logRing: ringbuf.New(256, logRingSlots),
	}
	flushPeriod := time.Duration(cfg.LogFlushPeriodSec) * time.Second
	usbBudget := time.Duration(cfg.USBEnumerateBudgetS) * time.Second
	machine := sm.New(platform, flushPeriod, usbBudget)

	recorder := senslog.NewRecorder(platform.logRing, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/bridge", func(w http.ResponseWriter, r *http.Request) {
		if _, err := wstransport.Upgrade(w, r, engine); err != nil {
			log.WithError(err).Warn("seatagd: websocket upgrade failed")
		}
	})
	server := &http.Server{Addr: *listenAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("seatagd: transport-bridge listener")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	log.WithField("listen", *listenAddr).Info("seatagd: entering super-loop")

	for {
		select {
		case <-sigCh:
			log.Info("seatagd: shutting down")
			_ = store.Save(fs)
			_ = server.Close()
			return
		case now := <-ticker.C:
			runOnce(machine, engine, platform, recorder, now)
		}
	}
}

// runOnce is one pass of the super-loop: top_sm.iterate(), then
// protocol_engine.iterate(), then the sensor-log drain, in that order
// (spec.md §5).
func runOnce(machine *sm.Machine, engine *proto.Engine, platform *devicePlatform, recorder *senslog.Recorder, now time.Time) {
	if err := machine.Iterate(now); err != nil {
		log.WithError(err).Error("seatagd: fatal state-machine fault, resetting")
		os.Exit(1) // stands in for the watchdog reset spec.md §7.3 specifies
	}

	if err := engine.Iterate(now); err != nil {
		log.WithError(err).Warn("seatagd: protocol engine iterate")
	}

	if err := platform.gps.Tick(now); err != nil {
		log.WithError(err).Warn("seatagd: GPS sub-machine tick")
	}

	if machine.Current() != sm.Operational || platform.logH == nil {
		return
	}
	recorder.SetDateTimeStamp(platform.store.IsSet(cfgstore.TagLoggingDateTimeStamp))
	if _, err := senslog.Drain(platform.logRing, platform.logH); err != nil {
		if errors.Is(err, flashfs.ErrFileSystemFull) {
			machine.ReportLogWriteFull()
			return
		}
		log.WithError(err).Warn("seatagd: log drain")
	}
}
