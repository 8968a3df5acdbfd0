package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/eligibility/internal/cache"
	"github.com/ehr/eligibility/internal/coding"
	"github.com/ehr/eligibility/internal/compiler"
	"github.com/ehr/eligibility/internal/config"
	"github.com/ehr/eligibility/internal/evaluator"
	"github.com/ehr/eligibility/internal/fhirgw"
	"github.com/ehr/eligibility/internal/llm"
	"github.com/ehr/eligibility/internal/orchestrator"
	"github.com/ehr/eligibility/internal/platform/db"
	"github.com/ehr/eligibility/internal/platform/obslog"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "eligibility-engine",
		Short: "Clinical-trial patient-eligibility engine",
	}

	rootCmd.AddCommand(compileCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func compileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile free-text criteria into a criterion tree and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			trialID, _ := cmd.Flags().GetString("trial")
			criteriaFile, _ := cmd.Flags().GetString("criteria-file")

			criteriaText, err := readCriteria(criteriaFile)
			if err != nil {
				return err
			}

			ctx := context.Background()
			eng, cleanup, err := buildEngine(ctx, false)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := eng.orchestrator.Compile(ctx, trialID, criteriaText)
			if err != nil {
				return err
			}

			out, err := compiler.MarshalTree(res.Tree)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().String("trial", "", "Trial identifier")
	cmd.Flags().String("criteria-file", "-", "Path to the criteria text file (\"-\" for stdin)")
	_ = cmd.MarkFlagRequired("trial")
	return cmd
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a patient against a trial's criteria and print the eligibility report",
		RunE: func(cmd *cobra.Command, args []string) error {
			trialID, _ := cmd.Flags().GetString("trial")
			patientID, _ := cmd.Flags().GetString("patient")
			criteriaFile, _ := cmd.Flags().GetString("criteria-file")

			criteriaText, err := readCriteria(criteriaFile)
			if err != nil {
				return err
			}

			ctx := context.Background()
			eng, cleanup, err := buildEngine(ctx, true)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := eng.orchestrator.Evaluate(ctx, trialID, criteriaText, patientID)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().String("trial", "", "Trial identifier")
	cmd.Flags().String("patient", "", "FHIR Patient.id to evaluate")
	cmd.Flags().String("criteria-file", "-", "Path to the criteria text file (\"-\" for stdin)")
	_ = cmd.MarkFlagRequired("trial")
	_ = cmd.MarkFlagRequired("patient")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres criteria-cache table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrate")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := cache.NewPostgresStore(pool).Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Println("compiled_criteria table is ready.")
			return nil
		},
	}
}

// engine bundles the wired collaborators behind the two subcommands.
type engine struct {
	orchestrator *orchestrator.Orchestrator
	logger       zerolog.Logger
}

// buildEngine loads config and wires cache, model client, gateway, compiler,
// evaluator, and orchestrator. needsFHIR is false for compile-only runs,
// which never touch the datastore.
func buildEngine(ctx context.Context, needsFHIR bool) (*engine, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if needsFHIR {
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}

	logger := obslog.New(cfg)
	cleanup := func() {}

	var store cache.Store
	if cfg.CacheBackend == "postgres" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		cleanup = pool.Close
		store = cache.NewPostgresStore(pool)
	} else {
		store = cache.NewMemoryStore(0)
	}

	llmClient, err := llm.NewGenAIClient(ctx, cfg.LLMAPIKey, cfg.LLMModelID, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	comp := compiler.New(llmClient, store, coding.New(), logger)
	comp.MaxDepth = cfg.MaxCriteriaDepth
	comp.Temperature = cfg.LLMTemperature
	comp.MaxRetries = cfg.LLMMaxRetries
	comp.Timeout = cfg.LLMTimeout()
	comp.TTL = cfg.CacheTTL()

	var gwOpts []fhirgw.Option
	gwOpts = append(gwOpts, fhirgw.WithLogger(logger))
	switch fhirgw.AuthMode(cfg.FHIRAuthMode) {
	case fhirgw.AuthBearer:
		gwOpts = append(gwOpts, fhirgw.WithBearerToken(cfg.FHIRBearerToken))
	case fhirgw.AuthSigned:
		gwOpts = append(gwOpts, fhirgw.WithSignedAuth(cfg.FHIRClientID, []byte(cfg.FHIRSigningKey)))
	}
	gateway := fhirgw.New(cfg.FHIREndpoint, fhirgw.AuthMode(cfg.FHIRAuthMode), cfg.FHIRTimeout(), cfg.FHIRMaxRetries, gwOpts...)

	ev := evaluator.New(gateway, cfg.MaxCriteriaDepth, cfg.FHIRMaxConcurrent, logger)
	orch := orchestrator.New(comp, ev, logger)

	return &engine{orchestrator: orch, logger: logger}, cleanup, nil
}

// readCriteria loads the criteria text from a file, or stdin for "-".
func readCriteria(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read criteria from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read criteria file: %w", err)
	}
	return string(data), nil
}
