package strategy

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNoResult is returned by Sequencer.Run when no acquisition strategy
// produced a file.
var ErrNoResult = errors.New("strategy: no acquisition strategy produced a file")

// Sequencer holds an explicit ordered strategy registry per phase and drives
// one target through Discovery → Preparation → Acquisition.
type Sequencer struct {
	phases [3][]Strategy
	logger *slog.Logger
}

// NewSequencer buckets strategies by phase, preserving the given order
// within each phase.
func NewSequencer(logger *slog.Logger, strategies ...Strategy) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sequencer{logger: logger}
	for _, st := range strategies {
		p := st.Phase()
		s.phases[p] = append(s.phases[p], st)
	}
	return s
}

// Register appends strategies, keeping per-phase order.
func (s *Sequencer) Register(strategies ...Strategy) {
	for _, st := range strategies {
		s.phases[st.Phase()] = append(s.phases[st.Phase()], st)
	}
}

// Run applies all three phases to the target. Discovery and Preparation run
// their lists to completion unless a strategy reports terminal; Acquisition
// halts at the first non-empty path or the first terminal miss. Strategy
// errors are logged and treated as "continue, try next".
func (s *Sequencer) Run(ctx context.Context, t *Target) (string, error) {
	for _, phase := range []Phase{Discovery, Preparation, Acquisition} {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		s.logger.Info("sequencer: phase", "phase", phase.String(), "url", t.Session.CurrentURL())

		path, terminal := s.runPhase(ctx, phase, t)
		if path != "" {
			return path, nil
		}
		if terminal && phase == Acquisition {
			// A terminal miss in Acquisition fails the whole target.
			return "", ErrNoResult
		}
	}
	return "", ErrNoResult
}

func (s *Sequencer) runPhase(ctx context.Context, phase Phase, t *Target) (string, bool) {
	for _, st := range s.phases[phase] {
		if ctx.Err() != nil {
			return "", false
		}
		log := s.logger.With("strategy", st.Name(), "cost", st.Cost().String())
		log.Debug("sequencer: attempting")

		res, err := st.Attempt(ctx, t)
		if err != nil {
			log.Warn("sequencer: strategy error, trying next", "error", err)
			continue
		}
		if res.Path != "" {
			log.Info("sequencer: acquired", "path", res.Path)
			return res.Path, res.Terminal
		}
		if res.Terminal {
			log.Debug("sequencer: terminal without result")
			return "", true
		}
	}
	return "", false
}
