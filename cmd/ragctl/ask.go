package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"admate-rag-go/internal/model"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the knowledge base",
	Long: `Retrieves the most similar document chunks and composes an answer.
Falls back to an extractive answer when the LLM is unavailable.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the response as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if chatService == nil {
		return errors.New("chat service not configured")
	}
	question := strings.Join(args, " ")

	resp, err := chatService.GenerateChatResponse(cmd.Context(), question)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	dto := resp.ToDTO(sourcePreviewRunes)

	if askJSON {
		data, err := json.MarshalIndent(dto, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	printAnswer(cmd, dto)
	return nil
}

func printAnswer(cmd *cobra.Command, dto model.ChatResponseDTO) {
	cmd.Println(dto.Answer)
	cmd.Println()
	cmd.Printf("Confidence: %d%%  Model: %s  LLM: %t  (%dms)\n",
		dto.Confidence, dto.Model, dto.IsLLMGenerated, dto.ProcessingTimeMs)
	if len(dto.Sources) == 0 {
		return
	}
	cmd.Println("Sources:")
	for i, s := range dto.Sources {
		cmd.Printf("  [%d] %s (%d%%)\n", i+1, s.Title, s.Similarity)
	}
}
