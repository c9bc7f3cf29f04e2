// Package daemon assembles a runnable node from a configuration: the DHT
// machine, its client API and its status server.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kutluhann/xordht/api"
	"github.com/kutluhann/xordht/config"
	"github.com/kutluhann/xordht/dht"
	"github.com/kutluhann/xordht/metrics"
)

type Daemon struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	Machine *dht.Machine
	Client  *api.ClientServer // nil when the client API is disabled
	HTTP    *api.HTTPServer   // nil when the status server is disabled

	httpListener net.Listener
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// New binds every socket the node needs. Any bind failure is returned and
// nothing is left open.
func New(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Daemon, error) {
	mc, err := cfg.MachineConfig()
	if err != nil {
		return nil, err
	}
	machine, err := dht.NewMachine(mc, logger, m)
	if err != nil {
		return nil, err
	}
	d := &Daemon{
		cfg:     cfg,
		logger:  logger.With(zap.String("node", machine.ID().Short())),
		metrics: m,
		Machine: machine,
	}

	if cfg.APIPort != 0 {
		d.Client, err = api.NewClientServer(api.ClientServerConfig{
			ListenAddr: fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.APIPort),
			RateLimit:  cfg.APIRateLimit,
			Burst:      cfg.APIBurst,
		}, machine, d.logger.Named("client"), m)
		if err != nil {
			machine.Stop()
			return nil, fmt.Errorf("bind client api: %w", err)
		}
		machine.SetClientCallbacks(d.Client)
	}

	if cfg.HTTPAddr != "" {
		d.httpListener, err = net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			machine.Stop()
			if d.Client != nil {
				d.Client.Close()
			}
			return nil, fmt.Errorf("bind status server: %w", err)
		}
		d.HTTP = api.NewHTTPServer(cfg.HTTPAddr, machine, m, d.logger.Named("http"))
	}
	return d, nil
}

// Start runs the node and bootstraps it from the configured peers.
func (d *Daemon) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	d.Machine.Start()

	if d.Client != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.Client.Serve(ctx)
		}()
	}
	if d.HTTP != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.HTTP.Serve(d.httpListener); err != nil {
				d.logger.Error("Status server failed", zap.Error(err))
			}
		}()
	}

	if err := d.Machine.Bootstrap(d.cfg.BootstrapPeers, d.cfg.BootstrapDelay); err != nil {
		d.Stop()
		return err
	}
	return nil
}

func (d *Daemon) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.HTTP != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.HTTP.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			d.logger.Warn("Status server shutdown", zap.Error(err))
		}
		cancel()
	}
	d.Machine.Stop()
	d.wg.Wait()
}

// HTTPAddr is the bound status server address, or nil.
func (d *Daemon) HTTPAddr() net.Addr {
	if d.httpListener == nil {
		return nil
	}
	return d.httpListener.Addr()
}
