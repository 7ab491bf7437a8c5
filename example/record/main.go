package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/avetra/sensorlink"
)

// Connects to a bench device over the socket transport, records for one
// minute, and saves the session.
func main() {
	cfg, err := sensorlink.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	rt, err := sensorlink.NewRuntime(cfg)
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dev := sensorlink.Device{
		ID:   "192.168.1.40:9000",
		Name: "bench probe",
		Kind: sensorlink.TransportSocket,
	}
	if err := rt.Manager().ConnectToDevice(ctx, dev); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer rt.Manager().DisconnectFromDevice(context.Background())

	recordCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := rt.Record(recordCtx, map[string]string{"operator": "bench"}); err != nil {
		log.Fatalf("record: %v", err)
	}

	infos, err := rt.Store().List()
	if err != nil {
		log.Fatalf("list artifacts: %v", err)
	}
	for _, info := range infos {
		log.Printf("saved %s (%d readings)", info.Name, info.ReadingCount)
	}
}
