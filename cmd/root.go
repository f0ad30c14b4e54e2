// Package cmd defines the fileops command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/fileops/internal/config"
	"github.com/JakeFAU/fileops/internal/logging"
	"github.com/JakeFAU/fileops/internal/server"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

const serviceAnnotation = "service"

// cli carries the state shared by every subcommand of one invocation.
type cli struct {
	configPath string
	jsonOutput bool
	verbose    bool

	app *server.App
	// served is set once App.Run has closed the app itself.
	served bool
}

// newApp builds the application for a subcommand. Tests replace it.
var newApp = func(ctx context.Context, cfg config.Config, service, verbose bool) (*server.App, error) {
	if service {
		return server.Build(ctx, cfg, server.WithVersion(Version))
	}
	logger, err := logging.NewCLI(verbose)
	if err != nil {
		return nil, err
	}
	// One-shot commands keep lifecycle metrics off the process-wide registry.
	return server.Build(ctx, cfg,
		server.WithLogger(logger),
		server.WithRegisterer(prometheus.NewRegistry()),
		server.WithVersion(Version),
	)
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "fileops",
		Short: "Cancellable, progress-reporting batch file operations",
		Long: `fileops searches, deletes, lists and renames files in batches. Every
operation reports progress as it runs, and search and delete can be
cancelled mid-flight (Ctrl-C locally, or POST /v1/operations/{id}/cancel
against "fileops serve").`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			_, service := cmd.Annotations[serviceAnnotation]
			app, err := newApp(cmd.Context(), cfg, service, c.verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			c.app = app
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Configuration file path")
	root.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "Print results as JSON")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.searchCommand())
	root.AddCommand(c.deleteCommand())
	root.AddCommand(c.listCommand())
	root.AddCommand(c.renameCommand())
	return root
}

func (c *cli) close() error {
	if c.app == nil || c.served {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.app.Close(ctx)
	if syncErr := logging.Sync(c.app.Logger()); syncErr != nil {
		err = errors.Join(err, syncErr)
	}
	return err
}

// Execute runs the command line. SIGINT and SIGTERM cancel ctx, which stops
// the running operation.
func Execute(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return execute(ctx, nil)
}

func execute(ctx context.Context, args []string, configure ...func(*cobra.Command)) error {
	c := &cli{}
	root := c.rootCommand()
	if args != nil {
		root.SetArgs(args)
	}
	for _, fn := range configure {
		fn(root)
	}
	err := root.ExecuteContext(ctx)
	if closeErr := c.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
