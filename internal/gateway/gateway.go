// Package gateway submits images to the generative-AI vision endpoint and
// turns the structured response into full study entries.
//
// The model's reply is untrusted input: it is parsed against a strict schema
// and validated before any entity is constructed. The gateway, not the model,
// assigns identifiers, creation timestamps and default study state.
package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/karuta-app/karuta/internal/deck"
)

// DefaultModel is the vision model used when none is configured.
const DefaultModel = "claude-sonnet-4-5"

const extractionPrompt = `You are given a photo containing Japanese text
(a menu, sign, textbook page, manga panel, etc). Extract study material from
it and reply with ONLY a JSON object, no prose and no code fences:

{
  "vocabulary": [
    {
      "kanji": "<headword as written>",
      "reading": "<hiragana reading>",
      "meaning": "<English meaning>",
      "partOfSpeech": "<noun|verb|adjective|adverb|particle|expression|other>",
      "example": {
        "sentence": "<short example sentence using the word>",
        "reading": "<hiragana reading of the sentence>",
        "translation": "<English translation>"
      },
      "conjugations": {
        "dictionary": "...", "masu": "...", "te": "...", "nai": "...", "ta": "..."
      }
    }
  ],
  "grammar": [
    {
      "label": "<grammar point, e.g. ~てから>",
      "explanation": "<short English explanation>",
      "example": "<example sentence>"
    }
  ]
}

Include "conjugations" only for verbs. Omit collections that have no
candidates rather than inventing entries.`

// Extraction is a batch of fully-formed entries produced from one image.
type Extraction struct {
	Vocabulary []*deck.VocabularyEntry
	Grammar    []*deck.GrammarEntry
}

// Empty reports whether the image yielded no study material.
func (e *Extraction) Empty() bool {
	return len(e.Vocabulary) == 0 && len(e.Grammar) == 0
}

// Analyzer extracts study entries from an image.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mediaType string) (*Extraction, error)
}

// Options configures a Gateway.
type Options struct {
	// Model overrides DefaultModel.
	Model string
	// MaxTokens bounds the model reply (default 4096).
	MaxTokens int64
	// Reader backfills missing hiragana readings. Nil disables backfill.
	Reader *Reader
	// Logger for analysis activity. Nil means a default stderr logger.
	Logger *log.Logger
}

// Gateway implements Analyzer over the Anthropic Messages API.
type Gateway struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	reader    *Reader
	logger    *log.Logger
}

// New creates a Gateway using the given API key.
func New(apiKey string, opts Options) *Gateway {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[gateway] ", log.LstdFlags)
	}
	return &Gateway{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(opts.Model),
		maxTokens: opts.MaxTokens,
		reader:    opts.Reader,
		logger:    opts.Logger,
	}
}

var allowedMediaTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Analyze implements Analyzer. It submits the image, parses and validates the
// model's reply, and returns fully-formed entries with fresh IDs, creation
// timestamps and default study state.
func (g *Gateway) Analyze(ctx context.Context, image []byte, mediaType string) (*Extraction, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	if !allowedMediaTypes[mediaType] {
		return nil, fmt.Errorf("unsupported media type %q", mediaType)
	}

	encoded := base64.StdEncoding.EncodeToString(image)

	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mediaType, encoded),
				anthropic.NewTextBlock(extractionPrompt),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	extraction, err := g.parseResponse(text.String())
	if err != nil {
		return nil, err
	}

	g.logger.Printf("analyzed image (%d bytes): %d vocabulary, %d grammar",
		len(image), len(extraction.Vocabulary), len(extraction.Grammar))
	return extraction, nil
}
