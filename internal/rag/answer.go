package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docqa-rag/internal/models"
)

// NoRelevantContentMessage is returned when retrieval finds nothing to
// ground an answer on. The language model is not called in that case.
const NoRelevantContentMessage = "No relevant content was found in the uploaded documents for this question."

// Answer retrieves the k most similar chunks for the question and asks the
// language model for an answer grounded in them. The model's output is
// returned verbatim alongside the ranked chunks.
//
// An empty retrieval result short-circuits with NoRelevantContentMessage
// and no generation call. A failed generation call surfaces ErrGeneration.
func (s *Service) Answer(ctx context.Context, question string, k int) (*models.QueryResponse, error) {
	chunks, err := s.Query(ctx, question, k)
	if err != nil {
		return nil, err
	}

	resp := &models.QueryResponse{
		Question:       question,
		RelevantChunks: chunks,
		Model:          s.generator.ModelName(),
		Timestamp:      time.Now(),
	}

	if len(chunks) == 0 {
		resp.Answer = NoRelevantContentMessage
		resp.RelevantChunks = []models.RetrievedChunk{}
		return resp, nil
	}

	answer, err := s.generator.Generate(ctx, BuildPrompt(question, chunks))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	resp.Answer = answer
	return resp, nil
}

// BuildPrompt assembles the grounded prompt: the retrieved chunks in ranked
// order, each under a positional label, followed by the question and an
// instruction to answer only from the supplied context.
func BuildPrompt(question string, chunks []models.RetrievedChunk) string {
	var promptBuilder strings.Builder

	promptBuilder.WriteString("Answer the question using only the document content below. ")
	promptBuilder.WriteString("If the documents do not contain the information needed, ")
	promptBuilder.WriteString("say explicitly that the answer cannot be found in the documents.\n\n")

	promptBuilder.WriteString("Documents:\n")
	for i, chunk := range chunks {
		promptBuilder.WriteString(fmt.Sprintf("[Fragment %d]\n", i+1))
		promptBuilder.WriteString(chunk.Content)
		promptBuilder.WriteString("\n\n")
	}

	promptBuilder.WriteString("Question: " + question + "\n\n")
	promptBuilder.WriteString("Answer based on the documents above: ")

	return promptBuilder.String()
}
