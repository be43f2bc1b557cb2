// Diagnostic client for the Dynamo force-plate backend: connects, streams
// normalized events to stdout, and can exercise mound group formation.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/calebkmiecik/FluxDeluxe/pkg/config"
	"github.com/calebkmiecik/FluxDeluxe/pkg/hardware"
	"github.com/calebkmiecik/FluxDeluxe/pkg/logger"
	"github.com/calebkmiecik/FluxDeluxe/pkg/models"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to JSON config file")
		host       = flag.String("host", "", "Backend host (overrides config)")
		socketPort = flag.Int("socket-port", 0, "Channel port; 0 means discover")
		httpPort   = flag.Int("http-port", 0, "Backend HTTP port for discovery (overrides config)")
		mound      = flag.String("mound", "", "Comma-separated launch,upper,lower device ids to form a mound group")
		debug      = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if *host != "" {
		cfg.Host = *host
	}

	if *socketPort != 0 {
		cfg.SocketPort = *socketPort
	}

	if *httpPort != 0 {
		cfg.HTTPPort = *httpPort
	}

	if *debug {
		cfg.Logging.Debug = true
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	svc := hardware.New(cfg, log)
	defer svc.Close()

	svc.OnConnectionStatus(func(status string) {
		log.Info().Str("status", status).Msg("Connection status")
	})

	svc.OnDeviceList(func(devices []models.Device) {
		for _, d := range devices {
			log.Info().
				Str("axf_id", d.AxfID).
				Str("name", d.DisplayName).
				Str("type", d.DeviceType).
				Msg("Device")
		}
	})

	svc.OnActiveDevices(func(ids []string) {
		log.Info().Strs("active", ids).Msg("Active devices")
	})

	svc.OnSocketError(func(msg string) {
		log.Warn().Str("error", msg).Msg("Backend error")
	})

	if cfg.SocketPort != 0 {
		svc.Connect(cfg.Host, cfg.SocketPort)
	} else {
		svc.AutoConnect(cfg.Host, cfg.HTTPPort)
	}

	if *mound != "" {
		ids := strings.Split(*mound, ",")
		if len(ids) != 3 {
			fmt.Fprintln(os.Stderr, "-mound needs exactly three device ids: launch,upper,lower")
			os.Exit(1)
		}

		svc.OnConnectionStatus(func(status string) {
			if status != "Connected" {
				return
			}

			svc.FindOrCreateMoundGroup(ids[0], ids[1], ids[2], "Pitching Mound", func(outcome models.FormationOutcome) {
				switch outcome.Status {
				case models.FormationError:
					log.Error().Str("error", outcome.Error).Msg("Mound group failed")
				default:
					log.Info().
						Str("status", string(outcome.Status)).
						Str("group_id", outcome.GroupID).
						Msg("Mound group resolved")
				}
			})
		})
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-interrupt

	log.Info().Msg("Shutting down")
}
