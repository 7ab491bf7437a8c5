package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avetra/sensorlink"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "scan":
		err = scanCommand(os.Args[2:])
	case "files":
		err = filesCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("sensorlink %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file")
	device := fs.String("device", "", "host:port of a socket device to connect and record from")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := sensorlink.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := sensorlink.NewRuntime(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *device != "" {
		dev := sensorlink.Device{
			ID:   *device,
			Name: "cli",
			Kind: sensorlink.TransportSocket,
		}
		if err := rt.Manager().ConnectToDevice(ctx, dev); err != nil {
			return fmt.Errorf("connect %s: %w", *device, err)
		}
		go func() {
			if err := rt.Record(ctx, map[string]string{"source": "cli"}); err != nil {
				log.Printf("record: %v", err)
			}
		}()
	}

	return rt.Run(ctx)
}

func scanCommand(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file")
	window := fs.Duration("window", 10*time.Second, "How long to scan before exiting")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := sensorlink.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := sensorlink.NewRuntime(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *window)
	defer cancel()

	fmt.Printf("Scanning for %s (Ctrl+C to stop)\n", *window)
	for snapshot := range rt.Manager().ScanForDevices(ctx) {
		fmt.Printf("--- %d device(s) ---\n", len(snapshot))
		for _, d := range snapshot {
			fmt.Printf("  %-8s %-24s %s (signal %d%%)\n", d.Kind, d.Name, d.ID, d.SignalQuality)
		}
	}
	return nil
}

func filesCommand(args []string) error {
	fs := flag.NewFlagSet("files", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := sensorlink.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := sensorlink.NewRuntime(cfg)
	if err != nil {
		return err
	}

	infos, err := rt.Store().List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no session artifacts yet")
		return nil
	}
	for _, info := range infos {
		fmt.Printf("%-36s %8d bytes  %4d readings  device=%s  %s\n",
			info.Name, info.Size, info.ReadingCount, info.DeviceID,
			info.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := sensorlink.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func printUsage() {
	fmt.Printf(`sensorlink CLI

Usage:
  sensorlink <command> [flags]

Commands:
  run        Start the runtime: health monitor, metrics, and status feed
  scan       Discover devices on both transports and print snapshots
  files      List saved session artifacts
  validate   Load and validate a config file without starting the runtime

Examples:
  sensorlink run -config ./data/config.yaml -device 192.168.1.40:9000
  sensorlink scan -window 15s
  sensorlink files
`)
}
