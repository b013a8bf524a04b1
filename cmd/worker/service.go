package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/marketcore-backend/pkg/adminserver"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

const startupProbeTimeout = 15 * time.Second

type runner interface {
	Run(ctx context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type ServiceParams struct {
	Logger *logger.Logger
	// Dependencies are pinged once before any consumer starts and again on
	// every /health/ready request.
	Dependencies map[string]pinger
	// Consumers run side by side; the first failure stops the rest.
	Consumers map[string]runner
	Admin     *adminserver.Server
}

// Service runs the domain event consumers in one process: the notification
// fan-out always, the BigQuery sink when configured.
type Service struct {
	logg      *logger.Logger
	deps      map[string]pinger
	consumers map[string]runner
	admin     *adminserver.Server
}

func NewService(p ServiceParams) (*Service, error) {
	var errs error
	if p.Logger == nil {
		errs = multierr.Append(errs, errors.New("logger is required"))
	}
	if len(p.Consumers) == 0 {
		errs = multierr.Append(errs, errors.New("at least one consumer is required"))
	}
	for name, c := range p.Consumers {
		if c == nil {
			errs = multierr.Append(errs, fmt.Errorf("consumer %s is nil", name))
		}
	}
	for name, d := range p.Dependencies {
		if d == nil {
			errs = multierr.Append(errs, fmt.Errorf("dependency %s is nil", name))
		}
	}
	if errs != nil {
		return nil, errs
	}
	return &Service{logg: p.Logger, deps: p.Dependencies, consumers: p.Consumers, admin: p.Admin}, nil
}

// ready pings every dependency concurrently and reports all failures.
func (s *Service) ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, startupProbeTimeout)
	defer cancel()

	errs := make(chan error, len(s.deps))
	var g errgroup.Group
	for name, dep := range s.deps {
		g.Go(func() error {
			if err := dep.Ping(ctx); err != nil {
				errs <- fmt.Errorf("%s ping failed: %w", name, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	close(errs)

	var combined error
	for err := range errs {
		combined = multierr.Append(combined, err)
	}
	return combined
}

// Run blocks until ctx is cancelled or a consumer fails.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		s.logg.Error(ctx, "worker dependencies not ready", err)
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")

	group, groupCtx := errgroup.WithContext(ctx)
	for name, c := range s.consumers {
		group.Go(func() error {
			cctx := s.logg.WithField(groupCtx, "consumer", name)
			s.logg.Info(cctx, "consumer started")
			if err := c.Run(cctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", name, err)
			}
			s.logg.Info(cctx, "consumer stopped")
			return nil
		})
	}
	if s.admin != nil {
		group.Go(func() error { return s.admin.Run(groupCtx) })
	}

	if err := group.Wait(); err != nil {
		s.logg.Error(ctx, "consumer stopped unexpectedly", err)
		return err
	}
	return nil
}

// probes adapts the dependencies for the admin server.
func probes(deps map[string]pinger) map[string]adminserver.Probe {
	out := make(map[string]adminserver.Probe, len(deps))
	for name, d := range deps {
		out[name] = d.Ping
	}
	return out
}
