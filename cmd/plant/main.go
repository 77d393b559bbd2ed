// Command plant runs a single power-plant process: it binds the peer
// RPC server, registers with the administration service, subscribes to
// the energy-request topic, and starts its pollution aggregator.
// Grounded on fluxforge/agent/main.go's signal-handling and retry-loop
// shape, generalized from "retry a single HTTP registration call" to
// spec.md §7's requirement that a plant operator be able to fix a
// PortInUse or RegistrationConflict in place (re-enter a free port or
// id) rather than have the process exit.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/nic0-o1/DPS-DESM/internal/config"
	"github.com/nic0-o1/DPS-DESM/internal/orchestrator"
	"github.com/nic0-o1/DPS-DESM/internal/rpcerr"
	"github.com/nic0-o1/DPS-DESM/internal/wire"
)

func main() {
	configPath := flag.String("config", "", "path to plant YAML config")
	flag.Parse()

	cfg, err := config.LoadPlant(*configPath)
	if err != nil {
		log.Fatalf("plant: failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("plant: received shutdown signal")
		cancel()
	}()

	reader := bufio.NewReader(os.Stdin)
	plantInstance, err := startWithRetry(ctx, cfg, reader)
	if err != nil {
		log.Fatalf("plant: failed to start: %v", err)
	}

	log.Printf("plant %d: started, listening on port %d", cfg.PlantID, cfg.Port)
	log.Println("plant: type 'exit' and press enter to shut down")

	go waitForExitCommand(reader, cancel)

	<-ctx.Done()
	log.Println("plant: shutting down")
	plantInstance.Stop(context.Background())
}

// startWithRetry attempts orchestrator.Start, and on rpcerr.PortInUse or
// rpcerr.RegistrationConflict prompts the operator for a replacement
// value instead of exiting (spec.md §7).
func startWithRetry(ctx context.Context, cfg *config.Plant, reader *bufio.Reader) (*orchestrator.Plant, error) {
	for {
		orchCfg := orchestrator.Config{
			Self: wire.PlantInfo{
				PlantID: cfg.PlantID,
				Address: "localhost",
				Port:    cfg.Port,
			},
			AdminBaseURL:   cfg.AdminBaseURL,
			BrokerURL:      cfg.BrokerURL,
			RequestsTopic:  cfg.EnergyRequestTopic,
			PollutionTopic: cfg.PollutionPublishTopic,
			PriceMin:       cfg.PriceMin,
			PriceMax:       cfg.PriceMax,
		}

		p, err := orchestrator.Start(ctx, orchCfg, log.Default())
		if err == nil {
			return p, nil
		}

		switch e := err.(type) {
		case *rpcerr.PortInUse:
			fmt.Printf("port %d is already in use. enter a new port: ", e.Port)
			newPort, readErr := readInt(reader)
			if readErr != nil {
				return nil, readErr
			}
			cfg.Port = newPort
		case *rpcerr.RegistrationConflict:
			fmt.Printf("plant id %d is already registered. enter a new plant id: ", e.PlantID)
			newID, readErr := readInt(reader)
			if readErr != nil {
				return nil, readErr
			}
			cfg.PlantID = newID
		default:
			return nil, err
		}
	}
}

func readInt(reader *bufio.Reader) (int, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(line))
}

func waitForExitCommand(reader *bufio.Reader, cancel context.CancelFunc) {
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		if strings.TrimSpace(line) == "exit" {
			cancel()
			return
		}
	}
}
