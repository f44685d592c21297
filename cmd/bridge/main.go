// Package main runs one side of an ext-bridge session.
//
// In listen mode it plays the host: it advertises itself in etcd when configured, waits for
// the extension runtime and serves the host-side services. In dial mode it plays the
// extension side and connects to a listening host, found through etcd if needed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"ext-bridge/codec"
	"ext-bridge/config"
	"ext-bridge/discovery"
	"ext-bridge/loadbalance"
	"ext-bridge/message"
	"ext-bridge/middleware"
	"ext-bridge/session"
	"ext-bridge/statesync"
	"ext-bridge/transport"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

const (
	logPrefix = "cmd:bridge"
	leaseTTL  = 10 // seconds; the keepalive renews it
)

// hostService is served on the host side for the extension runtime.
const hostService message.ServiceID = "MainThreadBridge"

func main() {
	if err := run(); err != nil {
		log.Fatalf("ext-bridge: fatal error: %v", err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reg *discovery.EtcdRegistry
	if cfg.DiscoveryEnabled() {
		reg, err = discovery.NewEtcdRegistry(cfg.EtcdEndpoints)
		if err != nil {
			return err
		}
		defer reg.Close()
	}

	sessionID := uuid.NewString()
	g, gctx := errgroup.WithContext(ctx)

	if reg != nil && cfg.Mode == config.ModeListen {
		if err := advertise(gctx, reg, cfg, sessionID); err != nil {
			return err
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := reg.Deregister(dctx, cfg.Name, advertiseAddr(cfg)); err != nil {
				slog.Warn(fmt.Sprintf("%s - deregister: %v", logPrefix, err))
			}
		}()
		g.Go(func() error {
			for endpoints := range reg.Watch(gctx, cfg.Name) {
				slog.Info(fmt.Sprintf("%s - %d endpoints advertised under %s", logPrefix, len(endpoints), cfg.Name))
			}
			return nil
		})
	}

	sess, cleanup, err := connect(gctx, cfg, reg, sessionOptions(cfg, sessionID)...)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil // interrupted before a peer showed up
		}
		return err
	}
	defer cleanup()

	if cfg.Mode == config.ModeListen {
		serveHost(sess)
	}
	sess.Start()

	if cfg.Mode == config.ModeListen {
		g.Go(func() error {
			fetchCommandMetadata(gctx, sess)
			return nil
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			slog.Info(fmt.Sprintf("%s - shutting down", logPrefix))
			if err := sess.Shutdown(cfg.ShutdownTimeout); err != nil {
				slog.Warn(fmt.Sprintf("%s - %v", logPrefix, err))
			}
			return nil
		case <-sess.Done():
			stop()
			if err := sess.Channel().Err(); err != nil && !errors.Is(err, message.ErrChannelClosed) {
				return err
			}
			return nil
		}
	})

	return g.Wait()
}

func sessionOptions(cfg *config.Config, id string) []session.Option {
	codecType, _ := codec.ParseType(cfg.Codec) // validated
	mws := []middleware.Middleware{middleware.RecoverMiddleware(), middleware.LoggingMiddleware()}
	if cfg.DispatchRate > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(cfg.DispatchRate, cfg.DispatchBurst))
	}
	if cfg.DispatchTimeout > 0 {
		mws = append(mws, middleware.TimeOutMiddleware(cfg.DispatchTimeout))
	}

	return []session.Option{
		session.WithID(id),
		session.WithName(cfg.Name),
		session.WithCodec(codecType),
		session.WithHeartbeat(cfg.Heartbeat),
		session.WithMiddleware(mws...),
		session.WithContracts(statesync.Contracts()...),
	}
}

// connect opens the session for the configured transport and mode. cleanup releases what
// connect opened besides the session itself.
func connect(ctx context.Context, cfg *config.Config, reg *discovery.EtcdRegistry, opts ...session.Option) (*session.Session, func(), error) {
	nop := func() {}

	if cfg.Transport == config.TransportNATS {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.Name))
		if err != nil {
			return nil, nop, fmt.Errorf("connect nats %s: %w", cfg.NATSURL, err)
		}
		side := transport.SideHost
		if cfg.Mode == config.ModeDial {
			side = transport.SideExtension
		}
		sess, err := session.DialNATS(nc, cfg.Name, side, opts...)
		if err != nil {
			nc.Close()
			return nil, nop, err
		}
		return sess, nc.Close, nil
	}

	if cfg.Mode == config.ModeListen {
		sess, err := session.Listen(ctx, "tcp", cfg.Addr, opts...)
		return sess, nop, err
	}

	addr := cfg.Addr
	if reg != nil {
		picked, err := pickEndpoint(ctx, reg, cfg)
		if err != nil {
			return nil, nop, err
		}
		addr = picked
	}
	sess, err := session.Dial(ctx, "tcp", addr, opts...)
	return sess, nop, err
}

func advertiseAddr(cfg *config.Config) string {
	if cfg.AdvertiseAddr != "" {
		return cfg.AdvertiseAddr
	}
	return cfg.Addr
}

func advertise(ctx context.Context, reg *discovery.EtcdRegistry, cfg *config.Config, sessionID string) error {
	ep := discovery.Endpoint{
		Addr:    advertiseAddr(cfg),
		Weight:  1,
		Version: cfg.Version,
		Session: sessionID,
	}
	return reg.Register(ctx, cfg.Name, ep, leaseTTL)
}

// pickEndpoint discovers the hosts advertised under the bridge name, drops those with an
// incompatible version and lets the configured balancer choose.
func pickEndpoint(ctx context.Context, reg *discovery.EtcdRegistry, cfg *config.Config) (string, error) {
	endpoints, err := reg.Discover(ctx, cfg.Name)
	if err != nil {
		return "", err
	}
	if cfg.VersionConstraint != "" {
		endpoints, err = discovery.Compatible(endpoints, cfg.VersionConstraint)
		if err != nil {
			return "", err
		}
	}

	var ep *discovery.Endpoint
	if cfg.Balancer == "consistent_hash" {
		b := loadbalance.NewConsistentHashBalancer()
		b.Reset(endpoints)
		key, _ := os.Getwd()
		ep, err = b.PickKey(key)
	} else {
		ep, err = loadbalance.New(cfg.Balancer).Pick(endpoints)
	}
	if err != nil {
		return "", fmt.Errorf("no compatible host for %s: %w", cfg.Name, err)
	}
	slog.Info(fmt.Sprintf("%s - picked %s (version %s, session %s)", logPrefix, ep.Addr, ep.Version, ep.Session))
	return ep.Addr, nil
}

// serveHost registers the services the extension runtime may call on the host.
func serveHost(sess *session.Session) {
	sess.Registry().HandleFunc(hostService, "ping", func(ctx context.Context, args []json.RawMessage) (any, error) {
		return sess.ID(), nil
	})
}

// fetchCommandMetadata asks the extension side for its contributed commands once the
// session is up and logs how many it reported.
func fetchCommandMetadata(ctx context.Context, sess *session.Session) {
	commands := statesync.NewCommandService(sess.Registry())
	fut := sess.Table().WithTimeout(commands.ContributedCommandMetadata(), 10*time.Second)

	var metadata map[string]json.RawMessage
	if err := fut.Decode(ctx, &metadata); err != nil {
		slog.Warn(fmt.Sprintf("%s - command metadata unavailable: %v", logPrefix, err))
		return
	}
	slog.Info(fmt.Sprintf("%s - extension side contributes %d commands", logPrefix, len(metadata)))
}
