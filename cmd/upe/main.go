// Command upe runs the userspace packet engine against a live
// interface pair: one for ingress capture, one (possibly the same) for
// transmit. SIGINT/SIGTERM drain and stop the engine; SIGHUP reloads
// the rule file in place.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package main

import (
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/momentics/upe/buf"
	"github.com/momentics/upe/control"
	"github.com/momentics/upe/engine"
	"github.com/momentics/upe/ingress"
	"github.com/momentics/upe/neighbor"
	"github.com/momentics/upe/ruletable/rulefile"
	"github.com/momentics/upe/txsink"
)

func main() {
	rxIface := flag.String("rx-iface", "", "interface to capture frames from (required)")
	txIface := flag.String("tx-iface", "", "interface to transmit frames on (defaults to rx-iface)")
	rulesPath := flag.String("rules", "", "path to an INI-format rule file (required)")
	txMACFlag := flag.String("tx-mac", "", "hex MAC (aa:bb:cc:dd:ee:ff) used as eth.src on forwarded frames")
	workers := flag.Int("workers", 4, "worker count; must be a power of two")
	ringSize := flag.Int("ring-size", 1024, "per-worker ring capacity; must be a power of two")
	poolSize := flag.Int("pool-size", 65536, "buffer pool capacity")
	localCache := flag.Int("local-cache", buf.DefaultLocalCacheCapacity, "per-worker local buffer cache capacity")
	arpCap := flag.Int("arp-capacity", 4096, "ARP table fixed capacity")
	ndpCap := flag.Int("ndp-capacity", 4096, "NDP table fixed capacity")
	metricsEvery := flag.Duration("metrics-interval", 5*time.Second, "observability reporting interval")
	flag.Parse()

	if *rxIface == "" || *rulesPath == "" {
		log.Fatal("upe: -rx-iface and -rules are required")
	}
	if *txIface == "" {
		*txIface = *rxIface
	}

	txMAC, err := parseMAC(*txMACFlag)
	if err != nil {
		log.Fatalf("upe: -tx-mac: %v", err)
	}

	rulesFile, err := os.Open(*rulesPath)
	if err != nil {
		log.Fatalf("upe: opening rule file: %v", err)
	}
	initialRules, err := rulefile.Load(rulesFile, nil)
	rulesFile.Close()
	if err != nil {
		log.Fatalf("upe: loading rule file: %v", err)
	}
	log.Printf("upe: loaded %d rules from %s", initialRules.Len(), *rulesPath)

	source, err := ingress.NewAFPacketSource(*rxIface)
	if err != nil {
		log.Fatalf("upe: opening capture source on %s: %v", *rxIface, err)
	}
	sink, err := txsink.NewAFPacketSink(*txIface)
	if err != nil {
		log.Fatalf("upe: opening transmit sink on %s: %v", *txIface, err)
	}

	// cfgStore holds the engine's dynamic tunables and the active
	// rule-file path; engine.ConfigFromStore overlays the former onto
	// the static flag defaults, and reloader.WatchConfig below turns a
	// change to the latter into a rule-table hot-swap.
	cfgStore := control.NewConfigStore()
	cfgStore.Set(control.Settings{
		PoolCapacity:       *poolSize,
		RingCapacity:       *ringSize,
		WorkerCount:        *workers,
		LocalCacheCapacity: *localCache,
		ArpCapacity:        *arpCap,
		NdpCapacity:        *ndpCap,
		RulesPath:          *rulesPath,
	})
	cfg := engine.ConfigFromStore(cfgStore, engine.Config{TxMAC: txMAC})

	e, err := engine.New(cfg, source, sink, initialRules)
	if err != nil {
		log.Fatalf("upe: building engine: %v", err)
	}

	reloader := control.NewRuleReloader(e.RuleTable, nil, func(err error) {
		log.Printf("upe: rule reload failed: %v", err)
	})
	reloader.WatchConfig(cfgStore)

	e.Start()
	log.Printf("upe: running with %d workers, rx=%s tx=%s", *workers, *rxIface, *txIface)

	stopMetrics := make(chan struct{})
	go reportMetrics(e, *metricsEvery, stopMetrics)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for range hupCh {
			log.Printf("upe: SIGHUP received, reloading %s", *rulesPath)
			cfgStore.Update(func(s *control.Settings) { s.RulesPath = *rulesPath })
		}
	}()

	<-sigCh
	log.Println("upe: shutdown signal received, draining workers")

	close(stopMetrics)
	e.Stop()
	reloader.Close()
	source.Close()
	sink.Close()

	if err := e.PumpErr(); err != nil {
		log.Printf("upe: ingress pump exited with error: %v", err)
	}
	for _, pinErr := range e.PinFailures() {
		log.Printf("upe: worker CPU pin failed: %v", pinErr)
	}
	log.Println("upe: shutdown complete")
}

func reportMetrics(e *engine.Engine, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, w := range e.Workers {
				c := w.Counters()
				log.Printf("upe: worker=%d pkts_in=%d parsed=%d matched=%d forwarded=%d dropped=%d",
					w.ID, c.PktsIn, c.Parsed, c.Matched, c.Forwarded, c.Dropped)
			}
		}
	}
}

func parseMAC(s string) (neighbor.MAC, error) {
	var mac neighbor.MAC
	if s == "" {
		return mac, nil
	}
	hw, err := net.ParseMAC(s)
	if err != nil {
		return mac, err
	}
	copy(mac[:], hw)
	return mac, nil
}
