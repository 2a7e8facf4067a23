package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-patch/internal/config"
	"github.com/joeblew999/plat-patch/internal/logger"
	"github.com/joeblew999/plat-patch/internal/server"
	"github.com/joeblew999/plat-patch/internal/service"
)

// Options defines all CLI flags and env vars for the patch map server.
// Flags: --host, --port, --data-dir, --web-dir, --deployment, --redis, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_DEPLOYMENT, ...
type Options struct {
	Host          string `doc:"Host to bind to" default:"0.0.0.0"`
	Port          int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir       string `doc:"Directory holding sources/, tiles/ and local databases" default:".data"`
	WebDir        string `doc:"Optional web/ directory for static files and template overrides" default:""`
	Deployment    string `doc:"Built-in deployment name or path to a deployment YAML" short:"d" default:"klang-valley"`
	Redis         string `doc:"Redis address for the stats cache; empty keeps it in memory" default:""`
	RedisPassword string `doc:"Redis password" default:""`
	RedisDB       int    `doc:"Redis database number" default:"0"`
	Prefs         string `doc:"SQLite file for viewer preferences (default <data-dir>/prefs.db)" default:""`
	DisableDB     bool   `doc:"Skip the DuckDB store (GeoJSON sources only, no SQL tier summary)" default:"false"`
}

func newServer(opts *Options) (*server.Server, error) {
	return server.New(server.Config{
		Host:          opts.Host,
		Port:          strconv.Itoa(opts.Port),
		DataDir:       opts.DataDir,
		WebDir:        opts.WebDir,
		Deployment:    opts.Deployment,
		RedisAddr:     opts.Redis,
		RedisPassword: opts.RedisPassword,
		RedisDB:       opts.RedisDB,
		PrefsPath:     opts.Prefs,
		NoDuckDB:      opts.DisableDB,
	})
}

func mustServer(opts *Options) *server.Server {
	srv, err := newServer(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return srv
}

func main() {
	_ = godotenv.Load()
	logger.Setup()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var httpServer *http.Server

		hooks.OnStart(func() {
			srv := mustServer(opts)
			defer srv.Close()

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-patch server starting...\n")
			fmt.Printf("  Server:     %s\n", baseURL)
			fmt.Printf("  Deployment: %s\n", srv.Deployment().Name)
			fmt.Printf("  Data:       %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Viewer:     %s/viewer\n", baseURL)
			fmt.Printf("  Docs:       %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI:    %s/openapi.json\n", baseURL)
			fmt.Println()

			httpServer = &http.Server{Addr: addr, Handler: srv, ReadHeaderTimeout: 10 * time.Second}
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.L().Error("server_error", "err", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			if httpServer == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(ctx)
		})
	})

	cli.Root().Use = "patchmap"
	cli.Root().Short = "Forest patch map: tier and area filters with visible patch statistics"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.DisableDB = true
			srv := mustServer(opts)
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// validate subcommand: load the deployment and check its patch data
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the deployment and check the patch source against its attribute mapping",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			if list, _ := cmd.Flags().GetBool("list"); list {
				for _, name := range config.Builtins() {
					fmt.Println(name)
				}
				return
			}
			srv := mustServer(opts)
			defer srv.Close()

			d := srv.Deployment()
			svc := srv.Services()
			fmt.Printf("Deployment %s is valid\n", d.Name)
			fmt.Printf("  Layer:   %s\n", d.Layer.ID)
			fmt.Printf("  Tiers:   %d\n", len(d.Tiers))
			fmt.Printf("  Patches: %d\n", svc.Patch.Count())
			for _, t := range svc.Patch.TierSummary(d.TierNames()) {
				fmt.Printf("    %-28s %6d  %.2f ha\n", t.Tier, t.Count, t.TotalArea)
			}
		}),
	}
	validateCmd.Flags().Bool("list", false, "List built-in deployments and exit")
	cli.Root().AddCommand(validateCmd)

	// tile subcommand: generate PMTiles for the loaded patches
	tileCmd := &cobra.Command{
		Use:   "tile",
		Short: "Generate a PMTiles archive from the deployment's patches",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := mustServer(opts)
			defer srv.Close()

			genOpts := service.TileGenerateOptions{}
			genOpts.OutputName, _ = cmd.Flags().GetString("output")
			genOpts.LayerName, _ = cmd.Flags().GetString("layer")
			genOpts.MinZoom, _ = cmd.Flags().GetInt("min-zoom")
			genOpts.MaxZoom, _ = cmd.Flags().GetInt("max-zoom")
			if genOpts.OutputName == "" {
				genOpts.OutputName = srv.Deployment().Name
			}
			if genOpts.LayerName == "" {
				genOpts.LayerName = srv.Deployment().Layer.SourceLayer
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			name, err := srv.Services().Tiler.Generate(ctx, genOpts, func(progress int, status string) {
				fmt.Printf("[%3d%%] %s\n", progress, status)
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error generating tiles: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Tiles written to %s\n", filepath.Join(srv.Services().Tiler.TilesDir(), name))
		}),
	}
	tileCmd.Flags().StringP("output", "o", "", "Output name (default: deployment name)")
	tileCmd.Flags().StringP("layer", "l", "", "Vector layer name (default: the deployment's source layer)")
	tileCmd.Flags().Int("min-zoom", 0, "Minimum zoom")
	tileCmd.Flags().Int("max-zoom", 14, "Maximum zoom")
	cli.Root().AddCommand(tileCmd)

	cli.Run()
}
