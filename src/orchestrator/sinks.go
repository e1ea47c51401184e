package orchestrator

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"buildctl-agent/src/broker"
	"buildctl-agent/src/config"
	"buildctl-agent/src/logger"
	"buildctl-agent/src/store"
)

// Mode selects where operation events and history go.
type Mode int

const (
	// LocalMode keeps events and history in process memory.
	LocalMode Mode = iota
	// DistributedMode publishes to Redpanda and, with a DSN, records to Postgres.
	DistributedMode
)

func (m Mode) String() string {
	if m == DistributedMode {
		return "distributed"
	}
	return "local"
}

// DetectMode returns DistributedMode when brokers are configured.
func DetectMode(cfg *config.Config) Mode {
	if len(cfg.RedpandaBrokers) > 0 {
		return DistributedMode
	}
	return LocalMode
}

// Sinks holds the broker and store an Orchestrator reports to.
type Sinks struct {
	Broker broker.Broker
	Store  store.Store
}

// OpenSinks connects the broker and store named by cfg. Without brokers an
// in-memory broker is used; without a DSN an in-memory store.
func OpenSinks(ctx context.Context, cfg *config.Config, log logger.Logger) (*Sinks, error) {
	s := &Sinks{}

	if DetectMode(cfg) == DistributedMode {
		b, err := broker.NewRedpandaBroker(cfg.RedpandaBrokers, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redpanda broker: %w", err)
		}
		s.Broker = b
	} else {
		s.Broker = broker.NewInMemoryBroker()
	}

	if cfg.PostgresDSN != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			s.Broker.Close()
			return nil, fmt.Errorf("failed to create Postgres store: %w", err)
		}
		s.Store = pg
	} else {
		s.Store = store.NewMemoryStore()
	}

	log.Debug("[Orchestrator] %s mode, postgres history %t", DetectMode(cfg), cfg.PostgresDSN != "")
	return s, nil
}

// Options returns the orchestrator options wiring s.
func (s *Sinks) Options() []Option {
	return []Option{WithBroker(s.Broker), WithStore(s.Store)}
}

// Close shuts down both sinks and reports every failure.
func (s *Sinks) Close() error {
	var result *multierror.Error
	if s.Broker != nil {
		if err := s.Broker.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close broker: %w", err))
		}
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close store: %w", err))
		}
	}
	return result.ErrorOrNil()
}
