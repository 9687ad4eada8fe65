package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/Lllllllleong/userstoryflow/internal/extract"
	"github.com/Lllllllleong/userstoryflow/internal/models"
	"github.com/Lllllllleong/userstoryflow/internal/services"
	"github.com/spf13/cobra"
)

type runOptions struct {
	language     string
	framework    string
	database     string
	orm          string
	instructions string
	strategy     string
	batch        bool
	policy       string
	output       string
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run the pipeline on a PDF or image",
	Args:  cobra.ExactArgs(1),
	RunE:  runPipeline,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.language, "language", "l", "", "target language: python, javascript, java, csharp, go, typescript (required)")
	f.StringVarP(&runOpts.framework, "framework", "f", "", "target framework, e.g. Flask (required)")
	f.StringVarP(&runOpts.database, "database", "d", "json", "database: postgresql, mysql, sqlite, mssql, json")
	f.StringVar(&runOpts.orm, "orm", "none", "ORM: sqlalchemy, sequelize, prisma, none")
	f.StringVarP(&runOpts.instructions, "instructions", "i", "", "additional instructions for code generation")
	f.StringVar(&runOpts.strategy, "strategy", "", "override EXTRACTION_STRATEGY: pages, embedded, composite")
	f.BoolVar(&runOpts.batch, "batch", false, "send every page image in a single vision request")
	f.StringVar(&runOpts.policy, "policy", "", "override FAILURE_POLICY: abort, skip")
	f.StringVarP(&runOpts.output, "output", "o", "", "directory to write stories, schema and code versions to")
	_ = runCmd.MarkFlagRequired("language")
	_ = runCmd.MarkFlagRequired("framework")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	genCtx, err := models.NewGenerationContext(runOpts.language, runOpts.framework, runOpts.database, runOpts.orm, runOpts.instructions)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	cfg, err := services.LoadConfig()
	if err != nil {
		return err
	}
	if err := applyOverrides(cmd, &cfg); err != nil {
		return err
	}

	pipeline, err := services.NewPipelineFromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	out := newPrinter(cmd.OutOrStdout(), verbose)
	result, err := pipeline.Run(ctx, models.PipelineRequest{
		Upload:  models.Upload{Filename: filepath.Base(args[0]), Data: data},
		Context: genCtx,
	}, out)
	if err != nil {
		out.failure(err)
		return err
	}
	out.summary(result)

	if runOpts.output != "" {
		if err := services.WriteArtifacts(runOpts.output, result); err != nil {
			return err
		}
		out.info("Artifacts written to %s", filepath.Join(runOpts.output, result.RunID))
	}
	return nil
}

func applyOverrides(cmd *cobra.Command, cfg *services.Config) error {
	if runOpts.strategy != "" {
		s, err := extract.ParseStrategy(runOpts.strategy)
		if err != nil {
			return err
		}
		cfg.Strategy = s
	}
	if cmd.Flags().Changed("batch") {
		cfg.BatchImages = runOpts.batch
	}
	if runOpts.policy != "" {
		cfg.FailurePolicy = models.FailurePolicy(runOpts.policy)
	}
	return cfg.Validate()
}
