// Command ragctl 是问答服务的命令行工具，直接复用服务端的依赖图。
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"admate-rag-go/internal/bootstrap"
	"admate-rag-go/internal/config"
	"admate-rag-go/internal/service"
	"admate-rag-go/pkg/log"
)

var (
	configPath string

	app             *bootstrap.App
	chatService     service.ChatService
	searchService   service.SearchService
	documentService service.DocumentService

	sourcePreviewRunes = 200
)

var rootCmd = &cobra.Command{
	Use:           "ragctl",
	Short:         "Ask questions and manage the FAQ knowledge base",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initServices(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			app.Close()
		}
		log.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "path to config file")
}

// initServices 在服务未注入时按配置构建依赖图。
func initServices(ctx context.Context) error {
	if chatService != nil && searchService != nil && documentService != nil {
		return nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)

	app, err = bootstrap.New(ctx, config.NewHolder(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialise services: %w", err)
	}
	chatService = app.ChatService
	searchService = app.SearchService
	documentService = app.DocumentService
	sourcePreviewRunes = cfg.RAG.SourcePreviewRunes
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
