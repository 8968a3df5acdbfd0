// Package compiler is the Criteria Compiler: it turns free-text eligibility
// criteria into a validated criterion tree by drafting structure with a
// language model, then extracting, normalizing, code-enriching, and
// validating the output, with one model-repair round on validation failure.
// Results are content-addressed in the cache.
package compiler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/eligibility/internal/cache"
	"github.com/ehr/eligibility/internal/coding"
	"github.com/ehr/eligibility/internal/criterion"
	"github.com/ehr/eligibility/internal/engineerr"
	"github.com/ehr/eligibility/internal/llm"
)

// Compiler wires the model client, the coding registry, and the cache.
type Compiler struct {
	LLM      llm.Client
	Cache    cache.Store
	Registry *coding.Registry

	MaxDepth    int
	Temperature float64
	// MaxRetries bounds re-invocations on transient model failure; the
	// validation repair round is separate and always exactly one.
	MaxRetries int
	// Backoff is the first retry delay; it doubles per attempt.
	Backoff time.Duration
	Timeout time.Duration
	TTL     time.Duration

	Logger zerolog.Logger
	// Now is overridden in tests that assert cache-entry timestamps.
	Now func() time.Time
}

// New constructs a Compiler with defaults filled in for zero-valued knobs.
func New(client llm.Client, store cache.Store, registry *coding.Registry, logger zerolog.Logger) *Compiler {
	return &Compiler{
		LLM:         client,
		Cache:       store,
		Registry:    registry,
		MaxDepth:    criterion.DefaultMaxDepth,
		Temperature: 0.1,
		MaxRetries:  2,
		Backoff:     time.Second,
		Timeout:     60 * time.Second,
		TTL:         7 * 24 * time.Hour,
		Logger:      logger,
		Now:         time.Now,
	}
}

// Result is a compilation outcome: the validated top-level criterion list
// plus whether it came from the cache.
type Result struct {
	Tree        []*criterion.Node
	Fingerprint string
	CacheHit    bool
}

// Compile returns the validated criterion tree for (trialID, criteriaText),
// cache-first. Nothing is cached on failure, so a later call retries the
// full pipeline.
func (c *Compiler) Compile(ctx context.Context, trialID, criteriaText string) (*Result, error) {
	fp := cache.Fingerprint(trialID, criteriaText)
	logger := c.Logger.With().Str("trial_id", trialID).Str("fingerprint", fp).Logger()

	if c.Cache != nil {
		entry, err := c.Cache.Get(ctx, fp)
		if err != nil {
			// A broken cache is recoverable by recompiling.
			logger.Warn().Err(err).Msg("compiler: cache read failed, recompiling")
		} else if entry != nil {
			logger.Debug().Msg("compiler: cache hit")
			return &Result{Tree: entry.CompiledTree, Fingerprint: fp, CacheHit: true}, nil
		}
	}

	start := c.clock()
	tree, err := c.compileFresh(ctx, criteriaText, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Dur("elapsed", c.clock().Sub(start)).Int("top_level", len(tree)).Msg("compiler: compiled criteria")

	if c.Cache != nil {
		entry := &cache.Entry{
			Fingerprint:  fp,
			TrialID:      trialID,
			CriteriaText: criteriaText,
			CompiledTree: tree,
			CreatedAt:    c.clock(),
			TTL:          c.TTL,
		}
		if err := c.Cache.Put(ctx, entry); err != nil {
			logger.Warn().Err(err).Msg("compiler: cache write failed")
		}
	}

	return &Result{Tree: tree, Fingerprint: fp, CacheHit: false}, nil
}

// compileFresh runs the model pipeline: generate, extract, normalize,
// enrich, validate, with one repair round if validation rejects.
func (c *Compiler) compileFresh(ctx context.Context, criteriaText string, logger zerolog.Logger) ([]*criterion.Node, error) {
	raw, err := c.generate(ctx, userPrompt(criteriaText))
	if err != nil {
		return nil, err
	}

	tree, err := c.processOutput(raw)
	if err == nil {
		return tree, nil
	}

	// One repair round: show the model its own output and the rejection,
	// ask for a correction. A second rejection is final.
	logger.Warn().Err(err).Msg("compiler: first output rejected, attempting repair")
	repairedRaw, genErr := c.generate(ctx, repairPrompt(criteriaText, raw, err.Error()))
	if genErr != nil {
		return nil, genErr
	}
	tree, repairErr := c.processOutput(repairedRaw)
	if repairErr != nil {
		var ee *engineerr.EngineError
		if errors.As(repairErr, &ee) {
			return nil, repairErr
		}
		return nil, engineerr.Wrap(engineerr.KindSchemaInvalid, "repair round rejected", repairErr)
	}
	return tree, nil
}

// processOutput takes a raw model response through extract -> normalize ->
// enrich -> validate.
func (c *Compiler) processOutput(raw string) ([]*criterion.Node, error) {
	nodes, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	nodes = Normalize(nodes)
	if c.Registry != nil {
		Enrich(c.Registry, nodes)
	}
	if err := criterion.ValidateAll(nodes, c.MaxDepth); err != nil {
		return nil, err
	}
	return nodes, nil
}

// generate invokes the model with bounded retries and exponential backoff
// on transient failure, under a per-call timeout.
func (c *Compiler) generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", engineerr.Wrap(engineerr.KindLLMUnavailable, "context cancelled", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if c.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		}
		raw, err := c.LLM.Generate(callCtx, systemPrompt, prompt, c.Temperature)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return raw, nil
		}
		lastErr = err
		c.Logger.Warn().Err(err).Int("attempt", attempt+1).Msg("compiler: model call failed")
	}
	return "", engineerr.Wrap(engineerr.KindLLMUnavailable, "model failed after retries", lastErr)
}

func (c *Compiler) clock() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// MarshalTree renders a compiled tree as indented JSON, the wire form the
// compile entry point prints.
func MarshalTree(tree []*criterion.Node) ([]byte, error) {
	return json.MarshalIndent(tree, "", "  ")
}
