package docchat

import (
	"fmt"

	"github.com/kart-io/logger"
	"github.com/kart-io/version"

	"github.com/kart-io/docchat/pkg/app"
)

const (
	appName        = "docchat"
	appDescription = `DocChat Server

A conversational document question-answering service.

This server provides:
  - PDF upload with text extraction and persistence
  - Session-scoped vector indexing of document text
  - Retrieval-augmented question answering with conversational memory
  - REST and WebSocket chat interfaces`
)

// NewApp creates a new application instance.
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(appName),
		app.WithDescription(appDescription),
		app.WithOptions(opts),
		app.WithRunFunc(func() error {
			return Run(opts)
		}),
	)
}

// Run runs the docchat server with the given options.
func Run(opts *Options) error {
	fmt.Printf("Starting %s...\n", appName)

	// 初始化日志
	opts.Log.AddInitialField("service.name", appName)
	opts.Log.AddInitialField("service.version", version.Get().GitVersion)
	if err := opts.Log.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting docchat server...")

	server, err := NewServer(opts)
	if err != nil {
		return err
	}

	logger.Info("DocChat server is ready")
	return server.Run()
}
