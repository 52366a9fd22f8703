package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"admate-rag-go/internal/model"
	"admate-rag-go/internal/service"
)

var (
	indexID    string
	indexTitle string
	indexURL   string
)

var indexCmd = &cobra.Command{
	Use:   "index [file]",
	Short: "Submit a text or markdown file for indexing",
	Long: `Registers the file as a document and enqueues an indexing task.
Without Kafka the document is chunked and embedded before the command returns.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexID, "id", "", "document id (generated when empty)")
	indexCmd.Flags().StringVar(&indexTitle, "title", "", "document title (defaults to the file name)")
	indexCmd.Flags().StringVar(&indexURL, "url", "", "source url shown with citations")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}
	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	title := indexTitle
	if title == "" {
		base := filepath.Base(path)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	docType := model.DocumentTypeFile
	if indexURL != "" {
		docType = model.DocumentTypeURL
	}

	doc, err := documentService.Submit(cmd.Context(), service.IndexRequest{
		ID:    indexID,
		Title: title,
		Type:  docType,
		URL:   indexURL,
		Text:  string(content),
	})
	if err != nil {
		return fmt.Errorf("index failed: %w", err)
	}
	cmd.Printf("Submitted %s (%s), status: %s\n", doc.Title, doc.ID, doc.Status)
	return nil
}
