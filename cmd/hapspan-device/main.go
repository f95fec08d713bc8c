// Command hapspan-device is a reference HAP accessory server.
//
// It loads an accessory description, serves it to controllers, and
// advertises it over mDNS. The configuration number survives restarts in a
// state file and changes whenever the description changes.
//
// Usage:
//
//	hapspan-device [flags]
//	hapspan-device discover [flags]
//
// Examples:
//
//	# Serve the built-in lamp on the default port
//	hapspan-device
//
//	# Serve a bridge description with protocol capture
//	hapspan-device --config bridge.yaml --protocol-log bridge.hlog --log-level debug
//
//	# List accessory servers on the network
//	hapspan-device discover --timeout 5s
package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hapspan/hapspan-go/pkg/discovery"
	"github.com/hapspan/hapspan-go/pkg/log"
	"github.com/hapspan/hapspan-go/pkg/model"
	"github.com/hapspan/hapspan-go/pkg/persistence"
	"github.com/hapspan/hapspan-go/pkg/service"
	"github.com/hapspan/hapspan-go/pkg/topology"
	"github.com/hapspan/hapspan-go/pkg/wire"
)

//go:embed lamp.yaml
var defaultTopology []byte

func main() {
	app := &cli.App{
		Name:  "hapspan-device",
		Usage: "reference HAP accessory server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, EnvVars: []string{"HAPSPAN_CONFIG"}, Usage: "accessory description (YAML); built-in lamp if empty"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 51827, EnvVars: []string{"HAPSPAN_PORT"}, Usage: "listen port"},
			&cli.IntFlag{Name: "max-connections", Value: 8, EnvVars: []string{"HAPSPAN_MAX_CONNECTIONS"}, Usage: "connection slots"},
			&cli.StringFlag{Name: "state", Value: "hapspan-state.json", EnvVars: []string{"HAPSPAN_STATE"}, Usage: "runtime state file"},
			&cli.StringFlag{Name: "log-level", Value: "info", EnvVars: []string{"HAPSPAN_LOG_LEVEL"}, Usage: "log level: debug, info, warn, error"},
			&cli.StringFlag{Name: "protocol-log", EnvVars: []string{"HAPSPAN_PROTOCOL_LOG"}, Usage: "write a protocol capture file"},
			&cli.Uint64Flag{Name: "seed", Usage: "eviction seed (0 seeds from the clock)"},
			&cli.StringFlag{Name: "name", Value: "HapSpan Lamp", Usage: "advertised name"},
			&cli.StringFlag{Name: "model", Value: "Reference Lamp", Usage: "advertised model"},
			&cli.StringFlag{Name: "id", Usage: "accessory id XX:XX:XX:XX:XX:XX (generated and saved if empty)"},
			&cli.StringFlag{Name: "interface", Usage: "network interface for mDNS"},
			&cli.BoolFlag{Name: "no-advertise", Usage: "do not advertise over mDNS"},
			&cli.DurationFlag{Name: "simulate", Usage: "publish simulated sensor readings at this interval"},
		},
		Action: runDevice,
		Commands: []*cli.Command{
			{
				Name:  "discover",
				Usage: "list accessory servers on the network",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "timeout", Value: discovery.BrowseTimeout, Usage: "how long to browse"},
					&cli.StringFlag{Name: "interface", Usage: "network interface for mDNS"},
				},
				Action: runDiscover,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}

func loadTopology(path string) (*topology.RawTopology, error) {
	if path == "" {
		return topology.Parse(defaultTopology)
	}
	return topology.Load(path)
}

func runDevice(c *cli.Context) error {
	logger, err := newLogger(c.String("log-level"))
	if err != nil {
		return err
	}

	raw, err := loadTopology(c.String("config"))
	if err != nil {
		return err
	}
	category, err := raw.CategoryID()
	if err != nil {
		return err
	}
	db, err := raw.Build(c.Int("max-connections"))
	if err != nil {
		return err
	}
	attachHooks(db, logger)
	db.Seal()

	state, err := loadState(c.String("state"), c.String("id"), db)
	if err != nil {
		return err
	}
	logger.Info("accessory database ready",
		"accessories", len(db.Accessories()),
		"characteristics", db.CharacteristicCount(),
		"id", state.AccessoryID,
		"configNumber", state.ConfigNumber)

	config := service.DefaultConfig()
	config.ListenAddress = fmt.Sprintf(":%d", c.Int("port"))
	config.MaxConnections = c.Int("max-connections")
	config.Logger = logger
	if seed := c.Uint64("seed"); seed != 0 {
		config.Eviction = service.NewRandomEviction(seed)
	}

	if !c.Bool("no-advertise") {
		advConfig := discovery.DefaultAdvertiserConfig()
		advConfig.Interface = c.String("interface")
		config.Advertiser = discovery.NewMDNSAdvertiser(advConfig)
		config.AccessoryInfo = &discovery.AccessoryInfo{
			Name:         c.String("name"),
			ID:           state.AccessoryID,
			Model:        c.String("model"),
			Category:     category,
			ConfigNumber: state.ConfigNumber,
		}
	}

	loggers := []log.Logger{log.NewSlogAdapter(logger)}
	if path := c.String("protocol-log"); path != "" {
		fileLogger, err := log.NewFileLogger(path)
		if err != nil {
			return err
		}
		defer fileLogger.Close()
		loggers = append(loggers, fileLogger)
		logger.Info("protocol capture enabled", "path", fileLogger.Path())
	}
	config.ProtocolLogger = log.NewMultiLogger(loggers...)

	srv, err := service.NewServer(db, config)
	if err != nil {
		return err
	}
	srv.OnEvent(func(e service.Event) { handleEvent(logger, e) })

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	logger.Info("accessory server started", "address", srv.Addr().String())

	if interval := c.Duration("simulate"); interval > 0 {
		go runSimulation(ctx, srv, interval, logger)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	for sig := range sigCh {
		if sig == syscall.SIGUSR1 {
			logStatus(logger, srv.Status())
			continue
		}
		logger.Info("shutting down", "signal", sig.String())
		break
	}

	return srv.Stop()
}

// loadState reconciles the saved runtime state with the database and saves
// it if anything changed.
func loadState(path, id string, db *model.Database) (*persistence.AccessoryState, error) {
	store := persistence.NewAccessoryStateStore(path)
	saved, err := store.Load()
	if err != nil {
		return nil, err
	}

	state, changed := persistence.Reconcile(saved, persistence.Fingerprint(db))

	if id != "" {
		if err := discovery.ValidateID(id); err != nil {
			return nil, err
		}
		if state.AccessoryID != id {
			state.AccessoryID = id
			changed = true
		}
	}
	if state.AccessoryID == "" {
		if state.AccessoryID, err = persistence.GenerateAccessoryID(nil); err != nil {
			return nil, err
		}
		changed = true
	}

	if changed {
		if err := store.Save(state); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// attachHooks accepts every write and logs it. Identify writes are logged at
// info level.
func attachHooks(db *model.Database, logger *slog.Logger) {
	for _, acc := range db.Accessories() {
		for _, svc := range acc.Services() {
			svc.SetUpdate(func(s *model.Service) wire.Status {
				for _, c := range s.Staged() {
					if c.Type() == identifyType {
						logger.Info("identify", "aid", c.AID())
						continue
					}
					logger.Debug("write accepted", "aid", c.AID(), "iid", c.IID(), "value", c.NewValue().String())
				}
				return wire.StatusOK
			})
		}
	}
}

var identifyType = func() string {
	ct, _ := topology.LookupCharacteristic("Identify")
	return ct.Type
}()

func handleEvent(logger *slog.Logger, e service.Event) {
	switch e.Type {
	case service.EventValueChanged:
		logger.Info("value changed", "slot", e.Slot, "aid", e.AID, "iid", e.IID, "value", e.Value)
	case service.EventDisconnected:
		logger.Info("connection closed", "slot", e.Slot, "remote", e.RemoteAddr, "error", e.Error)
	default:
		logger.Info(strings.ToLower(e.Type.String()), "slot", e.Slot, "remote", e.RemoteAddr, "connID", e.ConnectionID)
	}
}

func logStatus(logger *slog.Logger, status []service.SlotStatus) {
	for _, st := range status {
		if !st.Occupied {
			logger.Info("slot", "index", st.Index, "state", "free")
			continue
		}
		controller := st.ControllerID
		if controller == "" {
			controller = "(unverified)"
		}
		logger.Info("slot",
			"index", st.Index,
			"remote", st.RemoteAddr,
			"connID", st.ConnectionID,
			"controller", controller,
			"admin", st.Admin,
			"since", st.Accepted.Format(time.RFC3339))
	}
}

func runDiscover(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{Interface: c.String("interface")})
	found, err := browser.Browse(ctx)
	if err != nil {
		return err
	}

	n := 0
	for svc := range found {
		n++
		status := "paired"
		if !svc.Info.Paired {
			status = "unpaired"
		}
		fmt.Printf("%s\n  host %s:%d %v\n  id %s  model %q  c#=%d  ci=%d  %s\n",
			svc.InstanceName, svc.Host, svc.Port, svc.Addresses,
			svc.Info.ID, svc.Info.Model, svc.Info.ConfigNumber, svc.Info.Category, status)
	}
	fmt.Printf("%d accessory server(s) found\n", n)
	return nil
}
