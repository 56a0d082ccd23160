package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tejashwikalptaru/adzantune/internal/app"
	"github.com/tejashwikalptaru/adzantune/internal/console"
)

var (
	serveMockAudio bool
	serveNoConsole bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the playback daemon",
	Long: `Run the playback daemon with the scheduler, the remote poller and the
metrics listener. Commands are read from stdin until EOF or a signal.

Examples:
  # Run with a config file and the interactive console
  adzantune serve --config /etc/adzantune.yaml

  # Run headless (no console), stopping on SIGINT/SIGTERM
  adzantune serve --no-console

  # Exercise the daemon without a sound card
  adzantune serve --mock-audio
`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMockAudio, "mock-audio", false, "Use the in-memory audio engine instead of the sound card")
	serveCmd.Flags().BoolVar(&serveNoConsole, "no-console", false, "Do not read commands from stdin")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	application, err := app.NewApplication(cfg, app.Options{UseMockAudio: serveMockAudio})
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}

	// Ensure a graceful shutdown
	defer func() {
		if err := application.Shutdown(); err != nil {
			application.Logger().Error("shutdown error", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}
	application.Logger().Info(app.GetVersionInfo().FullString())

	if serveNoConsole {
		<-ctx.Done()
		application.Logger().Info("shutting down gracefully...")
		return nil
	}

	con := console.New(console.Deps{
		Logger:     application.Logger().With(slog.String("component", "console")),
		Bus:        application.EventBus(),
		Arbitrator: application.Arbitrator(),
		Queue:      application.Queue(),
		Local:      application.LocalPlayer(),
		Scheduler:  application.Scheduler(),
		Remote:     application.Remote(),
		Catalog:    application.Library(),
	}, os.Stdout)
	defer con.Close()

	return con.Run(ctx, os.Stdin)
}
