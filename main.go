package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Abenaitwe/vidcamp/internal/config"
	"github.com/Abenaitwe/vidcamp/internal/engine"
	"github.com/Abenaitwe/vidcamp/internal/export"
	"github.com/Abenaitwe/vidcamp/internal/filtergraph"
	"github.com/Abenaitwe/vidcamp/internal/logging"
	"github.com/Abenaitwe/vidcamp/internal/media"
	"github.com/Abenaitwe/vidcamp/internal/server"
	"github.com/Abenaitwe/vidcamp/pkg/timeline"
)

var (
	rootCmd = &cobra.Command{
		Use:   "vidcamp",
		Short: "Timeline compositing and export for vidcamp projects",
		Long: `vidcamp renders a project timeline of video clips, image overlays and
text captions into a single MP4. Small jobs run through the local ffmpeg
engine; jobs above the configured size threshold are dispatched to a
remote worker.

Examples:
  # Render a project locally or remotely depending on payload size
  vidcamp export -p project.json -o final.mp4

  # Inspect the compiled filter graph without rendering
  vidcamp graph -p project.json

  # Serve the worker protocol over HTTP
  vidcamp serve -c vidcamp.toml`,
	}

	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Render a project timeline to an MP4 file",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectPath, _ := cmd.Flags().GetString("project")
			outputPath, _ := cmd.Flags().GetString("output")
			configPath, _ := cmd.Flags().GetString("config")

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log := logging.New(cfg.LogLevel)

			t, err := timeline.LoadFile(projectPath)
			if err != nil {
				return err
			}

			eng := engine.New(cfg.FFmpegBin, log)
			exporter := export.New(cfg, media.NewClient(), eng, log)

			res, err := exporter.Export(cmd.Context(), t, func(p int, msg string) {
				fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", p, msg)
			})
			if err != nil {
				return err
			}

			if outputPath == "" {
				outputPath = fmt.Sprintf("vidcamp_export_%d.mp4", time.Now().Unix())
			}
			if err := os.WriteFile(outputPath, res.Output, 0o644); err != nil {
				return fmt.Errorf("write output: %v", err)
			}

			fmt.Printf("Exported %s via %s backend (%d bytes)\n", outputPath, res.Backend, len(res.Output))
			return nil
		},
	}

	graphCmd = &cobra.Command{
		Use:   "graph",
		Short: "Compile a project timeline and print its filter graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectPath, _ := cmd.Flags().GetString("project")

			t, err := timeline.LoadFile(projectPath)
			if err != nil {
				return err
			}
			if err := t.Validate(); err != nil {
				return err
			}

			g := filtergraph.Compile(t)
			if err := filtergraph.Verify(g); err != nil {
				return err
			}

			for _, n := range g.Nodes {
				fmt.Println(n.String())
			}
			fmt.Printf("output: [%s]  audio: %s\n", g.Output, g.AudioMap)
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the export worker protocol over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log := logging.New(cfg.LogLevel)

			eng := engine.New(cfg.FFmpegBin, log)
			exporter := export.New(cfg, media.NewClient(), eng, log)

			if err := exporter.Preload(cmd.Context()); err != nil {
				log.Warn("engine preload failed; first export will retry", "error", err)
			}

			srv := server.New(exporter, log)
			log.Info("listening", "addr", cfg.ListenAddr)
			return http.ListenAndServe(cfg.ListenAddr, srv.Router())
		},
	}
)

func init() {
	exportCmd.Flags().StringP("project", "p", "", "Project timeline JSON file")
	exportCmd.Flags().StringP("output", "o", "", "Output MP4 path (default vidcamp_export_<timestamp>.mp4)")
	exportCmd.Flags().StringP("config", "c", "", "Config file (TOML)")
	exportCmd.MarkFlagRequired("project")

	graphCmd.Flags().StringP("project", "p", "", "Project timeline JSON file")
	graphCmd.MarkFlagRequired("project")

	serveCmd.Flags().StringP("config", "c", "", "Config file (TOML)")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
