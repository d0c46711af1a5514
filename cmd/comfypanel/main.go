package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/comfypanel/comfypanel/client"
	"github.com/comfypanel/comfypanel/config"
)

var version = "0.1.0"

var (
	v          = config.New()
	cfg        *config.Config
	configFile string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "comfypanel",
	Short: "comfypanel - command-line control panel for a ComfyUI generation backend",
	Long: `comfypanel submits generation jobs to a panel backend, follows their
progress and records finished images in a gallery store.

Examples:
  # Generate four images one after the other
  comfypanel generate "a cat in a spacesuit" --count 4

  # Browse and manage the gallery
  comfypanel gallery list --workflow default
  comfypanel gallery delete 42

  # Backend operations
  comfypanel health
  comfypanel interrupt

  # Run a local gallery store
  comfypanel serve --dsn sqlite://gallery.db`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		logger, err := config.NewLogger(os.Stderr, loaded.LogLevel)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(galleryCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(lorasCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(interruptCmd)
	rootCmd.AddCommand(clearVRAMCmd)
	rootCmd.AddCommand(imageCmd)
	rootCmd.AddCommand(serveCmd)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default: ./comfypanel.yaml or the user config dir)")
	flags.String("backend-url", "", "Backend API root, e.g. http://localhost:8000/api/comfy")
	flags.String("gallery-url", "", "Gallery store API root, e.g. http://localhost:8000/api")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.Duration("timeout", 0, "HTTP request timeout")

	bindFlag("backend_url", flags.Lookup("backend-url"))
	bindFlag("gallery_url", flags.Lookup("gallery-url"))
	bindFlag("log_level", flags.Lookup("log-level"))
	bindFlag("timeout", flags.Lookup("timeout"))
}

func backendClient() *client.Client {
	return client.NewClientWithTimeout(cfg.BackendURL, cfg.Timeout)
}

func galleryClient() *client.GalleryClient {
	return client.NewGalleryClientWithTimeout(cfg.GalleryURL, cfg.Timeout)
}
