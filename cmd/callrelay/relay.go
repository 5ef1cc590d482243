package main

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AltairaLabs/callrelay/pkg/config"
	"github.com/AltairaLabs/callrelay/runtime/logger"
	"github.com/AltairaLabs/callrelay/runtime/prompt"
	"github.com/AltairaLabs/callrelay/runtime/providers"
	"github.com/AltairaLabs/callrelay/runtime/responder"
	"github.com/AltairaLabs/callrelay/runtime/session"

	// Provider implementations register themselves with the registry.
	_ "github.com/AltairaLabs/callrelay/runtime/providers/mock"
	_ "github.com/AltairaLabs/callrelay/runtime/providers/openai"
)

// relay builds one session per connection. The rate limiter is shared by
// every session.
type relay struct {
	cfg     *config.Config
	persona *prompt.Persona
	tracer  trace.Tracer
	limiter *rate.Limiter
}

func newRelay(cfg *config.Config, persona *prompt.Persona, tracer trace.Tracer) *relay {
	r := &relay{
		cfg:     cfg,
		persona: persona,
		tracer:  tracer,
	}
	if rps := cfg.Provider.RequestsPerSecond; rps > 0 {
		burst := cfg.Provider.Burst
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return r
}

// open implements llmws.Opener. Each session owns its provider client and
// closes it on disconnect.
func (r *relay) open(ctx context.Context, callID string, sink session.FrameSink) (*session.Session, error) {
	provider, err := providers.CreateProviderFromSpec(r.cfg.ProviderSpec())
	if err != nil {
		return nil, err
	}

	ctrl := responder.New(provider, r.persona,
		responder.WithDefaults(r.cfg.Decoding.Defaults()),
		responder.WithTurnTimeout(r.cfg.Turn.Timeout),
		responder.WithLimiter(r.limiter),
		responder.WithTracer(r.tracer),
	)

	sess, err := session.New(session.Config{
		CallID:     callID,
		Sink:       sink,
		Controller: ctrl,
		Provider:   provider,
		Policy:     r.cfg.SupersedePolicy(),
		Tracer:     r.tracer,
	})
	if err != nil {
		_ = provider.Close()
		return nil, err
	}

	logger.DebugContext(ctx, "Session created",
		"session_id", sess.ID(), "provider", provider.ID(), "model", provider.Model())
	return sess, nil
}
