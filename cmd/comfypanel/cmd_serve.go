package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/comfypanel/comfypanel/gallery"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a gallery store",
	Long: `Run a gallery store backed by sqlite or postgres.

The store serves GET/POST/DELETE {base}/gallery, DELETE {base}/gallery/{id},
a websocket at {base}/gallery/ws pushing gallery_updated frames, /healthz and
/metrics.

Examples:
  comfypanel serve --dsn sqlite://gallery.db
  comfypanel serve --dsn postgres://panel:secret@db:5432/panel --listen :9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("listen", "", "Listen address")
	f.String("dsn", "", "Database DSN: postgres://..., sqlite://path or a file path")
	f.String("base-path", "", "Path prefix of the gallery routes")

	bindFlag("gallery.listen", f.Lookup("listen"))
	bindFlag("gallery.dsn", f.Lookup("dsn"))
	bindFlag("gallery.base_path", f.Lookup("base-path"))
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := gallery.Open(cfg.Gallery.DSN)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	srv := gallery.NewServer(store,
		gallery.WithBasePath(cfg.Gallery.BasePath),
		gallery.WithListLimit(cfg.Gallery.ListLimit),
	)
	return srv.Run(ctx, cfg.Gallery.Listen)
}
