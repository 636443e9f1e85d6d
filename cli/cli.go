// Package cli is the command-line front end of a forge build program.
//
// A build program registers its tasks on a forge.Manager and hands it to
// Main:
//
//	func main() {
//		m := forge.NewManager()
//		m.Register(forge.NewTask("default", build))
//		cli.Main(m)
//	}
//
// Commands: run (also the default when task names are given directly),
// plan, list and serve. Flags can be set from FORGE_* environment variables,
// so FORGE_LOG_LEVEL=debug equals --log-level=debug.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/a2y-d5l/forge"
	"github.com/a2y-d5l/forge/config"
)

// Exit codes of Run.
const (
	ExitOK      = 0
	ExitFailure = 1
)

// App runs the commands of one build program against its Manager.
type App struct {
	Manager *forge.Manager
	Name    string
	Out     io.Writer
	Err     io.Writer

	// Environ feeds the env configuration builder; nil means os.Environ.
	Environ func() []string

	v   *viper.Viper
	log *logrus.Logger
}

// New returns an App writing to the standard streams.
func New(m *forge.Manager) *App {
	return &App{
		Manager: m,
		Name:    filepath.Base(os.Args[0]),
		Out:     os.Stdout,
		Err:     os.Stderr,
	}
}

// Main runs the program with the process arguments and exits. SIGINT and
// SIGTERM cancel the run.
func Main(m *forge.Manager) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := New(m).Run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// Run executes args and returns the process exit code: ExitOK when the
// command and every pipeline it ran succeeded, ExitFailure otherwise.
func (a *App) Run(ctx context.Context, args []string) int {
	cmd := a.Command()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		var failed *pipelineFailed
		if !errors.As(err, &failed) {
			a.logger().WithError(err).Error("command failed")
		}
		return ExitFailure
	}
	return ExitOK
}

// pipelineFailed is returned by commands whose pipeline ran but failed. The
// summary already reported it.
type pipelineFailed struct {
	res forge.PipelineResult
}

func (e *pipelineFailed) Error() string {
	if err := e.res.Ensure(); err != nil {
		return "pipeline failed: " + err.Error()
	}
	return "pipeline failed"
}

// Command builds the command tree. Each call returns a fresh tree.
func (a *App) Command() *cobra.Command {
	a.v = viper.New()
	a.v.SetEnvPrefix("FORGE")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:           a.Name + " [task...]",
		Short:         "Run the tasks of this build program",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if err := a.setupLogger(); err != nil {
				return err
			}
			return a.loadConfig()
		},
	}
	root.SetOut(a.Out)
	root.SetErr(a.Err)

	pf := root.PersistentFlags()
	pf.String("config", "", "configuration file (default forge.json, forge.yaml or forge.yml)")
	pf.StringArray("set", nil, "set a configuration value, key=value (repeatable)")
	pf.String("log-level", "info", "log level: trace, debug, info, warn, error")
	pf.CountP("verbose", "v", "more logging; -v is debug, -vv is trace")
	pf.Bool("no-color", false, "disable colored output")

	run := a.runCommand()
	root.RunE = run.RunE
	root.Flags().AddFlagSet(run.Flags())

	root.AddCommand(run, a.planCommand(), a.listCommand(), a.serveCommand())
	return root
}

func (a *App) logger() *logrus.Logger {
	if a.log == nil {
		a.log = logrus.New()
		a.log.SetOutput(a.Err)
	}
	return a.log
}

func (a *App) setupLogger() error {
	log := a.logger()
	level, err := logrus.ParseLevel(a.v.GetString("log-level"))
	if err != nil {
		return errors.Wrap(err, "log level")
	}
	switch v := a.v.GetInt("verbose"); {
	case v >= 2:
		level = logrus.TraceLevel
	case v == 1 && level < logrus.DebugLevel:
		level = logrus.DebugLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		DisableColors: a.v.GetBool("no-color"),
		FullTimestamp: true,
	})
	return nil
}

// loadConfig layers the environment, the configuration file and --set
// values onto the manager's configuration.
func (a *App) loadConfig() error {
	bs := config.Builders{config.EnvBuilder{Environ: a.Environ}}
	if path := a.v.GetString("config"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return errors.Wrap(err, "config file")
		}
		bs = append(bs, config.FileBuilder{Path: path})
	} else {
		for _, f := range config.DefaultFiles {
			bs = append(bs, config.FileBuilder{Path: f})
		}
	}
	bs = append(bs, config.BuilderFunc(func(c *config.Config) error {
		for _, kv := range a.v.GetStringSlice("set") {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || strings.TrimSpace(k) == "" {
				return errors.Errorf("--set %q: want key=value", kv)
			}
			c.Set(strings.TrimSpace(k), v)
		}
		return nil
	}))

	if err := bs.Build(a.Manager.Config); err != nil {
		return err
	}
	a.logger().WithField("keys", a.Manager.Config.Len()).Debug("configuration loaded")
	return nil
}

func (a *App) runOptions(extra ...forge.Option) []forge.Option {
	return append([]forge.Option{forge.WithLogger(a.logger()), forge.WithOutput(a.Out)}, extra...)
}
