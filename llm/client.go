// Package llm talks to an OpenAI compatible API for speech-to-text, chat
// completion and embeddings. One Client is built at startup and handed to
// every component that needs it.
package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/humblenginr/yt_listening_comp/exercise"
)

type Config struct {
	APIKey             string  `yaml:"-"`
	BaseURL            string  `yaml:"base_url"`
	TranscriptionModel string  `yaml:"transcription_model"`
	ChatModel          string  `yaml:"chat_model"`
	EmbeddingModel     string  `yaml:"embedding_model"`
	Temperature        float32 `yaml:"temperature"`
	MaxTokens          int     `yaml:"max_tokens"`
}

func DefaultConfig() Config {
	return Config{
		TranscriptionModel: openai.Whisper1,
		ChatModel:          openai.GPT4o,
		EmbeddingModel:     string(openai.SmallEmbedding3),
		Temperature:        0.7,
		MaxTokens:          4000,
	}
}

type Client struct {
	api *openai.Client
	cfg Config
}

func New(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &Client{api: openai.NewClientWithConfig(oc), cfg: cfg}
}

// Transcribe implements scraper.SpeechToText.
func (c *Client) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.cfg.TranscriptionModel,
		FilePath: audioPath,
		Language: language,
	})
	if err != nil {
		return "", fmt.Errorf("create transcription: %w", err)
	}
	return resp.Text, nil
}

// Complete implements exercise.Completer.
func (c *Client) Complete(ctx context.Context, req exercise.Request) (exercise.Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	ccr := openai.ChatCompletionRequest{
		Model:       c.cfg.ChatModel,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	if req.JSON {
		ccr.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.api.CreateChatCompletion(ctx, ccr)
	if err != nil {
		return exercise.Completion{}, fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return exercise.Completion{}, errors.New("chat completion returned no choices")
	}
	return exercise.Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: exercise.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Embed matches chromem.EmbeddingFunc.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embeddings response is empty")
	}
	return resp.Data[0].Embedding, nil
}
