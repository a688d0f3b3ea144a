// Command scribedrop is the operator CLI for ScribeDrop. Every subcommand
// loads the same configuration as the server (defaults, then an optional TOML
// file, then the environment) and builds its components through bootstrap,
// so "submit" exercises exactly the pipeline the web form uses.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/ScribeDrop/internal/bootstrap"
	"github.com/dharsanguruparan/ScribeDrop/internal/config"
	"github.com/dharsanguruparan/ScribeDrop/internal/logging"
	"github.com/dharsanguruparan/ScribeDrop/internal/model"
	"github.com/dharsanguruparan/ScribeDrop/internal/pipeline"
)

var (
	configFile string
	logLevel   string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "scribedrop: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scribedrop",
		Short: "ScribeDrop audio transcription service",
		Long: `ScribeDrop accepts an audio file, stores it in S3, runs an AWS Transcribe job on it
and emails the resulting transcript. Run the web front end with "serve" or push a single
file through the pipeline with "submit".`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "TOML config file (environment variables still override it)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.AddCommand(
		newServeCmd(),
		newSubmitCmd(),
		newNotifyTestCmd(),
	)
	return cmd
}

func loadApp() (*bootstrap.App, *log.Logger, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	app, err := bootstrap.Build(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return app, logger, nil
}

func newServeCmd() *cobra.Command {
	var addr string
	var ensureBucket bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload form and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, logger, err := loadApp()
			if err != nil {
				return err
			}
			if addr != "" {
				app.Config.Address = addr
			}
			if ensureBucket {
				if err := app.Storage.EnsureBucket(ctx, app.Config.Bucket); err != nil {
					return err
				}
				logger.Info("bucket ready", "bucket", app.Config.Bucket)
			}
			return app.Server.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to SCRIBEDROP_ADDRESS)")
	cmd.Flags().BoolVar(&ensureBucket, "ensure-bucket", false, "Create the destination bucket if it does not exist")
	return cmd
}

func newSubmitCmd() *cobra.Command {
	var email, language string
	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Run one audio file through the pipeline and print the transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			app, _, err := loadApp()
			if err != nil {
				return err
			}
			out := app.Orchestrator.Run(cmd.Context(), model.Submission{
				Data:     data,
				Filename: args[0],
				Email:    email,
				Language: language,
			})
			if !out.OK() {
				return out.Err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Transcript)
			if !out.Notified {
				fmt.Fprintf(cmd.ErrOrStderr(), "transcript was not emailed to %s\n", out.Email)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Address to email the transcript to")
	cmd.Flags().StringVar(&language, "language", "en-US", "Language code of the recording")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newNotifyTestCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "notify-test",
		Short: "Send a sample transcript email to check SMTP settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, logger, err := loadApp()
			if err != nil {
				return err
			}
			body := pipeline.ComposeBody("This is a test message from ScribeDrop.")
			if err := app.Notifier.Send(cmd.Context(), to, pipeline.EmailSubject, body); err != nil {
				return err
			}
			logger.Info("test email sent", "to", to)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Recipient address")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
