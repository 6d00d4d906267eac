// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"

	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/config"
	"github.com/rrlrodriguez78/plan-and-point-sub002/internal/logging"
)

const defaultSubject = "planpoint.sync.events"

// NewNATS returns a bus on a core NATS subject. With cfg.Embedded a NATS
// server is started in-process and owned by the bus.
func NewNATS(cfg *config.NATSConfig) (*Bus, error) {
	logger := logging.WithComponent("events")
	wmLogger := NewWatermillLogger(logger)

	var embedded *EmbeddedServer
	url := cfg.URL
	if cfg.Embedded {
		srv, err := StartEmbedded(cfg.Host, cfg.Port)
		if err != nil {
			return nil, err
		}
		embedded = srv
		url = srv.ClientURL()
	}
	if url == "" {
		url = natsgo.DefaultURL
	}

	subject := cfg.Subject
	if subject == "" {
		subject = defaultSubject
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("planpoint-events"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				wmLogger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			wmLogger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, wmLogger)
	if err != nil {
		shutdownQuietly(embedded)
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     10 * time.Second,
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, wmLogger)
	if err != nil {
		_ = pub.Close()
		shutdownQuietly(embedded)
		return nil, fmt.Errorf("create nats subscriber: %w", err)
	}

	return &Bus{
		transport: TransportNATS,
		topic:     subject,
		pub:       pub,
		sub:       sub,
		breaker: newBreaker(BreakerSettings{
			Name:      "events_nats",
			Threshold: cfg.BreakerThreshold,
			Timeout:   cfg.BreakerTimeout,
		}),
		logger:   logger,
		embedded: embedded,
		done:     make(chan struct{}),
	}, nil
}

// EmbeddedServer is an in-process NATS server for single-node deployments.
type EmbeddedServer struct {
	server    *server.Server
	clientURL string
}

// StartEmbedded starts a NATS server and waits until it accepts clients.
// port -1 picks a random free port.
func StartEmbedded(host string, port int) (*EmbeddedServer, error) {
	if host == "" {
		host = "127.0.0.1"
	}
	if port == 0 {
		port = server.DEFAULT_PORT
	}
	ns, err := server.NewServer(&server.Options{
		ServerName: "planpoint-events",
		Host:       host,
		Port:       port,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: 8 * 1024 * 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}
	logging.Info().Str("url", ns.ClientURL()).Msg("embedded NATS server started")

	return &EmbeddedServer{server: ns, clientURL: ns.ClientURL()}, nil
}

func (s *EmbeddedServer) ClientURL() string {
	return s.clientURL
}

func (s *EmbeddedServer) IsRunning() bool {
	return s.server.Running()
}

// Shutdown stops the server, giving up when ctx is done.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()
	done := make(chan struct{})
	go func() {
		s.server.WaitForShutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func shutdownQuietly(s *EmbeddedServer) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.Shutdown(ctx)
}
