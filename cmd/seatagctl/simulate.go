package main

import (
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/seatag/firmware/cfgstore"
	"github.com/seatag/firmware/conf"
	"github.com/seatag/firmware/flashfs"
	"github.com/seatag/firmware/flashfs/memdevice"
	"github.com/seatag/firmware/proto"
	"github.com/seatag/firmware/transport/wstransport"
)

// startSimulated boots an in-memory device stand-in — memdevice flash,
// a fresh config store, and a proto.Engine — and exposes it over a local
// websocket listener, giving --simulate a real seatagd to talk to
// without any hardware (spec.md §1's flash/transport drivers are out of
// scope; memdevice and wstransport are this repository's own stand-ins,
// and memdevice is the same flash stand-in flashfs's and proto's test
// suites use).
func startSimulated() (addr string, stop func(), err error) {
	cfg := conf.Default()
	dev := memdevice.New(cfg.SectorSize, cfg.NumSectors)
	if err := flashfs.Format(dev, cfg); err != nil {
		return "", nil, err
	}
	fs, err := flashfs.Mount(dev, cfg)
	if err != nil {
		return "", nil, err
	}
	store := cfgstore.New()
	engine := proto.New(fs, store, cfg.TransportPacketLen, nil, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/bridge", func(w http.ResponseWriter, r *http.Request) {
		if _, err := wstransport.Upgrade(w, r, engine); err != nil {
			log.WithError(err).Warn("seatagctl: simulate upgrade failed")
		}
	})
	server := &http.Server{Handler: mux}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				if err := engine.Iterate(now); err != nil {
					log.WithError(err).Warn("seatagctl: simulate engine iterate")
				}
			}
		}
	}()
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("seatagctl: simulate listener exited")
		}
	}()

	stop = func() {
		close(done)
		_ = server.Close()
	}
	return "ws://" + ln.Addr().String() + "/bridge", stop, nil
}
