package commands

import (
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	envFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "storyctl",
	Short: "Turn screenshots and PDFs into user stories, a data schema and code",
	Long: `storyctl runs the user story pipeline locally: it extracts page images from a
PDF or image, asks a vision model for Gherkin user stories, folds them into a
YAML schema and generates application code one story at a time.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env file is not an error; the environment may be set already.
		if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
			return err
		}
		if noColor {
			color.NoColor = true
		}
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file to load environment variables from")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
