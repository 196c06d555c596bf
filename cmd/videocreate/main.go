// Command videocreate assembles videos from JSON specifications, either as a
// long-running HTTP service or as a one-shot render.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Kira7dn/video-create/internal/config"
	"github.com/Kira7dn/video-create/internal/jobs"
	"github.com/Kira7dn/video-create/internal/logger"
	"github.com/Kira7dn/video-create/internal/pipeline/promsink"
	"github.com/Kira7dn/video-create/internal/server"
	"github.com/Kira7dn/video-create/internal/tempdir"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var verbose bool

	root := &cobra.Command{
		Use:           "videocreate",
		Short:         "Assemble videos from JSON specifications",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetVerbose(verbose)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newRenderCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and job worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			sink := promsink.New(registry)

			temp := tempdir.NewManager(settings.Temp.Prefix,
				settings.Temp.DelayedCleanup, settings.Temp.SweepAge)
			temp.Sweep()

			store, err := jobs.NewStore(settings.Jobs.StorePath)
			if err != nil {
				return err
			}
			service, err := jobs.NewService(cmd.Context(), settings, store, temp, sink, sink)
			if err != nil {
				return err
			}
			return server.New(settings, service, registry).Run()
		},
	}
}

func newRenderCmd(configPath *string) *cobra.Command {
	var outID string

	cmd := &cobra.Command{
		Use:   "render <spec.json>",
		Short: "Render one specification to an MP4 and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			specJSON, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			temp := tempdir.NewManager(settings.Temp.Prefix,
				settings.Temp.DelayedCleanup, settings.Temp.SweepAge)
			store, err := jobs.NewStore(settings.Jobs.StorePath)
			if err != nil {
				return err
			}
			service, err := jobs.NewService(cmd.Context(), settings, store, temp, nil, nil)
			if err != nil {
				return err
			}

			tempDir, err := temp.Create()
			if err != nil {
				return err
			}
			defer temp.Cleanup(tempDir)

			result, err := service.Execute(context.Background(), outID, specJSON, tempDir)
			if err != nil {
				return err
			}
			fmt.Println(result)
			return nil
		},
	}
	cmd.Flags().StringVar(&outID, "id", "local", "video id used in output naming")
	return cmd
}
