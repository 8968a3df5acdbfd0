// Package orchestrator is the engine's end-to-end entry point: compile the
// trial's criteria (cache-first), evaluate the tree against one patient,
// and assemble the eligibility report.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/eligibility/internal/compiler"
	"github.com/ehr/eligibility/internal/evaluator"
	"github.com/ehr/eligibility/internal/platform/obslog"
)

// EligibilityReport is the verdict for one (trial, patient) pair.
type EligibilityReport struct {
	ID         uuid.UUID           `json:"id"`
	PatientID  string              `json:"patient_id"`
	TrialID    string              `json:"trial_id"`
	Eligible   bool                `json:"eligible"`
	Confidence int                 `json:"confidence"`
	Summary    evaluator.Summary   `json:"summary"`
	Results    []*evaluator.Result `json:"results"`
	CacheHit   bool                `json:"cache_hit"`
	Timings    Timings             `json:"timings"`
}

// Timings records wall-clock milliseconds per phase.
type Timings struct {
	CompileMS  int64 `json:"compile_ms"`
	EvaluateMS int64 `json:"evaluate_ms"`
}

// ReportSink lets a caller persist reports. The engine itself treats
// reports as transient; a nil sink is valid and skips persistence.
type ReportSink interface {
	Save(ctx context.Context, report *EligibilityReport) error
}

// Orchestrator wires the Compiler and the Evaluator.
type Orchestrator struct {
	Compiler  *compiler.Compiler
	Evaluator *evaluator.Evaluator
	Logger    zerolog.Logger

	sink ReportSink
	// Now is overridden in tests that assert timings.
	Now func() time.Time
}

// New constructs an Orchestrator.
func New(c *compiler.Compiler, e *evaluator.Evaluator, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{Compiler: c, Evaluator: e, Logger: logger, Now: time.Now}
}

// SetReportSink installs an optional persistence hook for produced reports.
func (o *Orchestrator) SetReportSink(sink ReportSink) {
	o.sink = sink
}

// Evaluate runs the full pipeline for one patient against one trial's
// criteria text and returns the assembled report. Compile failures abort;
// per-leaf evaluation failures are already folded into the report by the
// Evaluator.
func (o *Orchestrator) Evaluate(ctx context.Context, trialID, criteriaText, patientID string) (*EligibilityReport, error) {
	logger := obslog.WithInvocation(o.Logger, trialID, patientID, "")

	compileStart := o.clock()
	compiled, err := o.Compiler.Compile(ctx, trialID, criteriaText)
	if err != nil {
		logger.Error().Err(err).Msg("orchestrator: compile failed")
		return nil, err
	}
	compileElapsed := o.clock().Sub(compileStart)
	logger = obslog.WithInvocation(o.Logger, trialID, patientID, compiled.Fingerprint)

	evalStart := o.clock()
	results, err := o.Evaluator.EvaluateAll(ctx, compiled.Tree, patientID)
	if err != nil {
		logger.Error().Err(err).Msg("orchestrator: evaluation failed")
		return nil, err
	}
	evalElapsed := o.clock().Sub(evalStart)

	eligible, confidence, summary := evaluator.Verdict(results)

	report := &EligibilityReport{
		ID:         uuid.New(),
		PatientID:  patientID,
		TrialID:    trialID,
		Eligible:   eligible,
		Confidence: confidence,
		Summary:    summary,
		Results:    results,
		CacheHit:   compiled.CacheHit,
		Timings: Timings{
			CompileMS:  compileElapsed.Milliseconds(),
			EvaluateMS: evalElapsed.Milliseconds(),
		},
	}

	logger.Info().
		Bool("eligible", eligible).
		Int("confidence", confidence).
		Bool("cache_hit", compiled.CacheHit).
		Int64("compile_ms", report.Timings.CompileMS).
		Int64("evaluate_ms", report.Timings.EvaluateMS).
		Msg("orchestrator: evaluation complete")

	if o.sink != nil {
		if err := o.sink.Save(ctx, report); err != nil {
			// Persistence is the caller's optional concern; the verdict
			// still stands.
			logger.Warn().Err(err).Msg("orchestrator: report sink failed")
		}
	}

	return report, nil
}

// Compile exposes compile-only invocations for callers that want the tree
// without a patient evaluation.
func (o *Orchestrator) Compile(ctx context.Context, trialID, criteriaText string) (*compiler.Result, error) {
	return o.Compiler.Compile(ctx, trialID, criteriaText)
}

func (o *Orchestrator) clock() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}
