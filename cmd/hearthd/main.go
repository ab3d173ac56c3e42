package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/davrell/hearth"
	"github.com/davrell/hearth/cloudlock"
	"github.com/davrell/hearth/entry"
	"github.com/davrell/hearth/rules"
	"github.com/joho/godotenv"
	"github.com/shimmeringbee/da"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/golog"
	"github.com/shimmeringbee/persistence"
	"github.com/shimmeringbee/persistence/impl/file"
	"github.com/shimmeringbee/zigbee"
	"github.com/shimmeringbee/zstack"
	"go.bug.st/serial"
	"gopkg.in/yaml.v3"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "hearthd.yaml", "path to the daemon configuration file")
	flag.Parse()

	_ = godotenv.Load()

	l := logwrap.New(golog.Wrap(log.New(os.Stderr, "", log.LstdFlags)))

	if err := run(l, *configPath); err != nil {
		l.Error(context.Background(), "Daemon exited with error.", logwrap.Err(err))
		os.Exit(1)
	}
}

func run(l logwrap.Logger, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDirectory, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	state := file.New(filepath.Join(cfg.DataDirectory, "state"))

	manager := entry.NewManager(ctx).WithLogger(l)
	defer manager.Stop()

	manager.Listen(func(_ context.Context, ev entry.EntryLoaded) error {
		switch rt := ev.Entry.Runtime().(type) {
		case da.Gateway:
			go pumpGatewayEvents(ctx, l, ev.Entry.Id(), rt)
		case interface{ Gateway() da.Gateway }:
			go pumpGatewayEvents(ctx, l, ev.Entry.Id(), rt.Gateway())
		}

		return nil
	})

	go pumpManagerEvents(ctx, l, manager)

	var entries []*entry.Entry

	if cfg.Zigbee.Enabled {
		z, stopAdapter, err := openAdapter(ctx, cfg, state.Section("adapter"))
		if err != nil {
			return err
		}
		defer stopAdapter()

		engine := rules.New()
		if err := engine.LoadFS(rules.Embedded); err != nil {
			return fmt.Errorf("failed to load rules: %w", err)
		}
		if err := engine.CompileRules(); err != nil {
			return fmt.Errorf("failed to compile rules: %w", err)
		}

		e := entry.NewEntry("zigbee", state.Section("entry", "zigbee"))
		entries = append(entries, e)

		i := hearth.NewIntegration(z, engine).WithLogger(l)

		if err := manager.Setup(ctx, i, e); err != nil {
			l.Warn(ctx, "Zigbee entry did not load.", logwrap.Err(err))
		}
	}

	if cfg.CloudLock.Enabled {
		settings := state.Section("entry", "cloudlock")

		if v := os.Getenv("CLOUDLOCK_EMAIL"); v != "" {
			settings.Set(cloudlock.EmailKey, v)
		}
		if v := os.Getenv("CLOUDLOCK_PASSWORD"); v != "" {
			settings.Set(cloudlock.PasswordKey, v)
		}

		e := entry.NewEntry("cloudlock", settings)
		entries = append(entries, e)

		i := cloudlock.NewIntegration(cfg.CloudLock.APIURL, cfg.CloudLock.StreamURL).WithLogger(l)

		if err := manager.Setup(ctx, i, e); err != nil {
			l.Warn(ctx, "Cloud lock entry did not load.", logwrap.Err(err))
		}
	}

	l.Info(ctx, "Daemon running.", logwrap.Datum("Entries", len(entries)))

	<-ctx.Done()

	l.Info(context.Background(), "Shutting down.")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error

	for _, e := range entries {
		if err := manager.Unload(shutdownCtx, e); err != nil {
			shutdownErr = errors.Join(shutdownErr, err)
		}
	}

	return shutdownErr
}

// openAdapter opens the serial port and brings the Z-Stack adapter onto the
// network described by the persisted network configuration, generating and
// persisting one on first run.
func openAdapter(ctx context.Context, cfg Config, s persistence.Section) (zigbee.Provider, func(), error) {
	port, err := serial.Open(cfg.Zigbee.Port, &serial.Mode{BaudRate: cfg.Zigbee.Baud})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Zigbee.Port, err)
	}

	if cfg.Zigbee.RTS {
		_ = port.SetRTS(true)
	}

	nc, err := networkConfiguration(filepath.Join(cfg.DataDirectory, "network.yaml"))
	if err != nil {
		port.Close()
		return nil, nil, err
	}

	z := zstack.New(port, s)

	if err := z.Initialise(ctx, nc); err != nil {
		z.Stop()
		port.Close()
		return nil, nil, fmt.Errorf("failed to initialise adapter: %w", err)
	}

	return z, func() {
		z.Stop()
		port.Close()
	}, nil
}

// networkConfiguration loads the zigbee network parameters, generating and
// writing them on first run so the network survives restarts.
func networkConfiguration(path string) (zigbee.NetworkConfiguration, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		var nc zigbee.NetworkConfiguration
		if err := yaml.Unmarshal(data, &nc); err != nil {
			return nc, fmt.Errorf("failed to parse network configuration: %w", err)
		}

		return nc, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return zigbee.NetworkConfiguration{}, fmt.Errorf("failed to read network configuration: %w", err)
	}

	nc, err := zigbee.GenerateNetworkConfiguration()
	if err != nil {
		return nc, fmt.Errorf("failed to generate network configuration: %w", err)
	}

	data, err = yaml.Marshal(nc)
	if err != nil {
		return nc, err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nc, fmt.Errorf("failed to persist network configuration: %w", err)
	}

	return nc, nil
}

func pumpManagerEvents(ctx context.Context, l logwrap.Logger, m *entry.Manager) {
	for {
		ev, err := m.ReadEvent(ctx)
		if err != nil {
			return
		}

		l.Info(ctx, "Entry event.", logwrap.Datum("Event", fmt.Sprintf("%+v", ev)))
	}
}

func pumpGatewayEvents(ctx context.Context, l logwrap.Logger, name string, gw da.Gateway) {
	for {
		ev, err := gw.ReadEvent(ctx)
		if err != nil {
			return
		}

		l.Info(ctx, "Gateway event.", logwrap.Datum("Entry", name), logwrap.Datum("Event", fmt.Sprintf("%+v", ev)))
	}
}
