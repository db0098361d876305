package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Chapsvision-dev/ferry/internal/config"
	"github.com/Chapsvision-dev/ferry/internal/logx"
	"github.com/Chapsvision-dev/ferry/internal/version"

	_ "github.com/Chapsvision-dev/ferry/internal/operator/azure"
	_ "github.com/Chapsvision-dev/ferry/internal/operator/fs"
	_ "github.com/Chapsvision-dev/ferry/internal/operator/minio"
	_ "github.com/Chapsvision-dev/ferry/internal/operator/s3"
)

// Test seams — overridden in unit tests. Keep signatures in sync with packages.
var (
	loadConfig    func(path string) (*config.Store, error)   = config.Load
	selectProfile func(names []string) (string, bool, error) = promptProfile
	exit          func(int)                                  = os.Exit
)

// rootOpts carries the persistent flags shared by every command.
type rootOpts struct {
	configPath string
	logLevel   string
	logFormat  string
}

// store loads the profile store from --config, $FERRY_CONFIG or the default path.
func (o *rootOpts) store() (*config.Store, error) {
	path := o.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return loadConfig(path)
}

// main wires CLI -> config -> location -> transfer.
// Exit codes: 0 success, 1 runtime or usage error.
func main() {
	_ = godotenv.Load() // best-effort
	logx.InitFromEnv()

	ctx := withSignals(context.Background())
	exit(run(ctx, os.Args[1:], os.Stdout))
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, out io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}
	cmd := &cobra.Command{
		Use:   version.App,
		Short: "Copy objects between named storage locations",
		Long: `ferry streams single objects between storage backends.

A location is either <profile>:<path>, where the profile is defined in the
configuration file, or a bare local path.`,
		Version:       version.Info(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cmd.Flags().Changed("log-level") || cmd.Flags().Changed("log-format") {
				logx.Init(opts.logLevel, opts.logFormat)
			}
		},
	}
	cmd.SetVersionTemplate(version.App + " {{.Version}}\n")

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "configuration file (default $"+config.EnvConfigPath+" or "+config.DefaultPath()+")")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: trace|debug|info|warn|error (default $"+logx.EnvLevel+" or info)")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: console|json (default $"+logx.EnvFormat+" or console)")

	cmd.AddCommand(
		newCopyCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func withSignals(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		cancel()
	}()
	return ctx
}
