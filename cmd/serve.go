package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/quill/internal/server"
)

var servePartials string

var serveCmd = &cobra.Command{
	Use:     "serve [directory]",
	Aliases: []string{"s"},
	Short:   "Start the preview server with live reload",
	Long: `Serve renders the templates under the given directory (default ".")
over HTTP and reloads connected browsers when a template changes.

A template's render context comes from a sibling data file: page.html
pairs with page.json or page.yml.

Examples:
  quill serve ./templates
  quill serve ./templates --port 3000
  quill serve ./templates --partials ./partials`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8780, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().Bool("open", false, "Open browser automatically")
	serveCmd.Flags().StringVar(&servePartials, "partials", "", "Directory of partial templates, registered by basename")

	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.open", serveCmd.Flags().Lookup("open"))

	AddFlagValidation(serveCmd, "port", ValidatePort)
}

func runServe(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	log := newLogger()
	eng, cfg, err := newEngine(log)
	if err != nil {
		return err
	}

	if err := registerPartials(eng, servePartials); err != nil {
		return err
	}

	srv, err := server.New(cfg, eng, dir, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
