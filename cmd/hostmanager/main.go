// Command hostmanager owns container lifecycle for the storage cluster: it
// consumes scale intents published by the load balancer and drives the
// desired container set through a runtime adapter, republishing completion
// events for anyone listening (including the load balancer, which registers
// and unregisters nodes from them).
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soft40051/storagelb/internal/bus"
	"github.com/soft40051/storagelb/internal/config"
	"github.com/soft40051/storagelb/internal/containerrt"
	"github.com/soft40051/storagelb/internal/hostmanager"
	"github.com/soft40051/storagelb/internal/model"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	runtime := containerrt.NewExecRuntime(cfg.ContainerRuntimeBin)

	var busImpl bus.PubSub
	mqttBus, err := bus.NewMQTTBus(cfg.MQTTBrokerHost, cfg.MQTTBrokerPort, "hostmanager")
	if err != nil {
		log.Printf("hostmanager: mqtt broker unavailable (%v), running against the in-process log bus", err)
		busImpl = bus.NewLogBus()
	} else {
		log.Printf("hostmanager: connected to mqtt broker %s:%d", cfg.MQTTBrokerHost, cfg.MQTTBrokerPort)
		busImpl = mqttBus
		defer mqttBus.Close()
	}

	reconcilerCfg := hostmanager.DefaultConfig()
	reconcilerCfg.Min = cfg.MinContainers
	reconcilerCfg.Max = cfg.MaxContainers
	reconcilerCfg.Prefix = cfg.ContainerPrefix
	reconcilerCfg.BasePort = cfg.BaseContainerPort
	reconcilerCfg.Image = cfg.ContainerImage
	reconcilerCfg.UnhealthyReset = cfg.UnhealthyResetTicks

	recon := hostmanager.New(reconcilerCfg, runtime, busImpl)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := recon.Bootstrap(bootCtx); err != nil {
		log.Printf("hostmanager: bootstrap failed, starting from an empty desired set: %v", err)
	}
	bootCancel()
	log.Printf("hostmanager: bootstrapped with %d active containers", recon.ActiveCount())

	if err := busImpl.Subscribe(model.TopicScaleRequests, func(ev bus.Event) {
		var intent model.ScaleIntent
		if err := json.Unmarshal(ev.Payload, &intent); err != nil {
			log.Printf("hostmanager: failed to decode scale intent: %v", err)
			return
		}
		recon.HandleIntent(intent)
	}); err != nil {
		log.Fatalf("hostmanager: failed to subscribe to %s: %v", model.TopicScaleRequests, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.HostManagerPort),
		Handler: mux,
	}

	stop := make(chan struct{})
	go recon.Run(stop)

	go func() {
		log.Printf("hostmanager: listening on %s (min=%d max=%d image=%s)", srv.Addr, cfg.MinContainers, cfg.MaxContainers, cfg.ContainerImage)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("hostmanager: server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("hostmanager: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("hostmanager: http shutdown error: %v", err)
	}

	close(stop)
	log.Println("hostmanager: stopped")
}

