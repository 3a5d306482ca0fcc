// ABOUTME: Root command and CLI setup for the weft workflow engine
// ABOUTME: Configures global flags, subcommands, and application initialization

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weftrun/weft/pkg/types"
	"github.com/weftrun/weft/pkg/utils"
)

var (
	cfgFile      string
	verboseMode  bool
	quietMode    bool
	format       string
	workflowDirs []string
	taskDirs     []string
	logger       types.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "A declarative workflow orchestration engine",
	Long: `weft executes declarative YAML workflow definitions: DAGs of task steps
bound to http/transform/inline task specs, with:

• A readiness-driven scheduler — a step launches the moment its dependencies
  are satisfied, not when its whole graph level completes
• Template-driven input binding across workflow input, task outputs, and
  per-item forEach state
• Conditional execution, switch dispatch, and forEach fan-out
• Retry, cache, circuit-breaker, and fallback wrapping per task step
• Sub-workflow composition with call-stack depth and cycle enforcement
• Dry-run mode for execution planning

Examples:
  weft run workflow.yaml                 Execute a workflow
  weft dry-run workflow.yaml              Show execution plan
  weft validate workflow.yaml             Validate workflow syntax
  weft list-tasks                         List cataloged task specs`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.weft.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseMode, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quietMode, "quiet", "q", false, "enable quiet mode (only errors)")
	rootCmd.PersistentFlags().StringVar(&format, "format", "text", "output format (text, json)")
	rootCmd.PersistentFlags().StringSliceVar(&workflowDirs, "workflow-dir", []string{"./workflows"}, "directory to scan for workflow definitions (local path, s3://, sftp://); repeatable")
	rootCmd.PersistentFlags().StringSliceVar(&taskDirs, "task-dir", []string{"./tasks"}, "directory to scan for task specs; repeatable")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	_ = viper.BindPFlag("workflow-dir", rootCmd.PersistentFlags().Lookup("workflow-dir"))
	_ = viper.BindPFlag("task-dir", rootCmd.PersistentFlags().Lookup("task-dir"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".weft" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".weft")
	}

	// Read in environment variables that match
	viper.AutomaticEnv()
	viper.SetEnvPrefix("WEFT")

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil && verboseMode {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// initLogger initializes the global logger based on flags
func initLogger() {
	level := utils.InfoLevel

	// Determine log level from flags
	if viper.GetBool("verbose") {
		level = utils.DebugLevel
	} else if viper.GetBool("quiet") {
		level = utils.ErrorLevel
	}

	// Create logger based on output format
	if viper.GetString("format") == "json" {
		logger = utils.NewJSONLogger(level, os.Stderr)
	} else {
		logger = utils.NewLogger(level, os.Stderr)
	}
}

// GetLogger returns the global logger instance
func GetLogger() types.Logger {
	if logger == nil {
		initLogger()
	}
	return logger
}
