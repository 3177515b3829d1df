package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/cloudbedlam/eatmem/internal/config"
	"github.com/cloudbedlam/eatmem/internal/sizespec"
	"github.com/cloudbedlam/eatmem/internal/sysmem"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"

	// Global flags
	chunkSize     int
	allocatorName string
	strict        bool
	showProgress  bool
	verbose       bool
	jsonOutput    bool
	auditLogFile  string

	// Global config
	cfg *config.Config
)

// rootCmd is the eat command itself
var rootCmd = &cobra.Command{
	Use:   "eatmem <size> [duration_seconds]",
	Short: "Consume memory for a while, then release it",
	Example: `  eatmem 50M 5      # hold 50 MiB for about 5 seconds
  eatmem 2G         # acquire 2 GiB and release it right away
  eatmem 1073741824 10`,
	Version:           Version,
	Args:              cobra.MaximumNArgs(2),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
	RunE:              runEat,
}

func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override config with flags if provided
	flags := cmd.Flags()
	if flags.Changed("chunk-size") {
		cfg.ChunkSize = chunkSize
	}
	if allocatorName != "" {
		cfg.Allocator = allocatorName
	}
	if strict {
		cfg.StrictExit = true
	}
	if auditLogFile != "" {
		cfg.AuditEnabled = true
		cfg.AuditLogFile = auditLogFile
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	return cfg.Validate()
}

// Execute runs the root command
func Execute() error {
	rootCmd.SetArgs(normalizeArgs(os.Args[1:]))

	err := rootCmd.Execute()
	var reported *reportedError
	if err != nil && !errors.As(err, &reported) {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return err
}

// normalizeArgs maps the "-?" spelling of help onto the flag cobra knows
func normalizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if a == "-?" {
			a = "--help"
		}
		out[i] = a
	}
	return out
}

// usageText is the long help, listing the size grammar this build accepts
func usageText() string {
	return `eatmem acquires the given amount of memory, holds it for the given
number of seconds (less the time spent acquiring it) and then releases it.
Without a duration the memory is released as soon as it is acquired.

` + sizespec.Grammar(sysmem.PercentSupported)
}

func init() {
	rootCmd.Long = usageText()

	// Global persistent flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Bytes acquired per allocation (overrides config)")
	rootCmd.Flags().StringVar(&allocatorName, "allocator", "", "Allocator to use: mmap or heap (overrides config); running out of memory is fatal with heap and is not reported")
	rootCmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero on invalid size or allocation failure")
	rootCmd.Flags().BoolVar(&showProgress, "progress", false, "Report acquisition progress on stderr")
	rootCmd.Flags().StringVar(&auditLogFile, "audit-log", "", "Append run events to this file (enables auditing)")

	// Version template
	rootCmd.SetVersionTemplate(fmt.Sprintf("eatmem version %s\ncommit: %s\nbuilt: %s\n", Version, GitCommit, BuildDate))

	// Add subcommands
	rootCmd.AddCommand(doctorCmd)
}
