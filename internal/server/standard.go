package server

import (
	"github.com/danmuck/remotectl/internal/codec"
	"github.com/danmuck/remotectl/internal/command"
	"github.com/danmuck/remotectl/internal/loader"
	"github.com/danmuck/remotectl/internal/ops"
	"github.com/danmuck/remotectl/internal/ops/builtin"
	"github.com/danmuck/remotectl/internal/protocol/frame"
	"github.com/danmuck/remotectl/internal/result"
	"github.com/danmuck/remotectl/internal/script"
	"github.com/danmuck/remotectl/internal/storage"
)

// Config wires a receiver serving the op and lua dialects.
type Config struct {
	Codec    *codec.Registry
	Ops      *ops.Registry
	Contexts storage.Factory
	Limits   frame.Limits
}

// NewStandard builds a receiver with one runner per dialect sharing cfg's
// registries and context factory. A nil registry is replaced by one holding
// the builtin operations and failure types.
func NewStandard(cfg Config) (*Receiver, error) {
	if cfg.Codec == nil {
		cfg.Codec = codec.NewRegistry()
		if err := builtin.RegisterTypes(cfg.Codec); err != nil {
			return nil, err
		}
	}
	if cfg.Ops == nil {
		cfg.Ops = ops.NewRegistry()
		if err := builtin.Register(cfg.Ops); err != nil {
			return nil, err
		}
	}
	if cfg.Contexts == nil {
		cfg.Contexts = storage.Empty()
	}
	if cfg.Limits.MaxPayloadBytes == 0 {
		cfg.Limits = frame.DefaultLimits()
	}

	results := result.NewFactory(cfg.Codec)
	r := NewReceiver(WithLimits(cfg.Limits))
	runners := []Runner{
		NewChainRunner(command.DialectOp, loader.New(cfg.Ops, cfg.Codec), cfg.Contexts, results),
		NewChainRunner(command.DialectLua, script.New(cfg.Codec), cfg.Contexts, results),
	}
	for _, runner := range runners {
		if err := r.Register(runner); err != nil {
			return nil, err
		}
	}
	return r, nil
}
