package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/josephlewis42/msh/core"
	"github.com/josephlewis42/msh/core/config"
	"github.com/josephlewis42/msh/core/logging"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	cfgPath  string
	logLevel string

	// exitStatus is the status the shell finished with.
	exitStatus int
)

func loadConfig() (*config.Configuration, error) {
	configuration, err := config.LoadOrDefault(afero.NewOsFs(), cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		log.Error().Str("path", cfgPath).Msg("Couldn't load config: did you run init?")
	}

	return configuration, err
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// setupLogging points diagnostics at the configured log file, if any. The
// returned closer must be called before exiting.
func setupLogging(configuration *config.Configuration) (io.Closer, error) {
	level := configuration.LogLevel
	if logLevel != "" {
		level = logLevel
	}

	if configuration.LogFile == "" {
		logging.ConfigureGlobalLogging(level, nil)
		return io.NopCloser(nil), nil
	}

	fd, err := os.OpenFile(configuration.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logging.ConfigureGlobalLogging(level, fd)
	return fd, nil
}

func runShell(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	configuration, err := loadConfig()
	if err != nil {
		return err
	}

	logFile, err := setupLogging(configuration)
	if err != nil {
		return err
	}
	defer logFile.Close()

	interactive := isTerminal(os.Stdin) && isTerminal(os.Stdout)
	rl, err := core.NewReadlineInput(core.Terminal{
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		IsTerminal: interactive,
	}, configuration)
	if err != nil {
		return err
	}
	defer rl.Close()

	log.Debug().Bool("interactive", interactive).Msg("starting shell")

	shell := core.NewShell(configuration, rl, rl.Stdout(), rl.Stderr(),
		core.WithChildStdio(os.Stdin, os.Stdout, os.Stderr),
		core.WithColor(interactive),
	)
	exitStatus = shell.Run()
	return nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "msh",
	Short: "Minimal shell",
	Long:  `A minimal interactive shell with background jobs.`,
	Args:  cobra.ExactArgs(0),
	RunE:  runShell,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
	os.Exit(exitStatus)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config path, the built-in defaults are used if empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}
