// Package openai is a Completer backed by any OpenAI-compatible chat completion API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/core"
)

const systemMessage = "You are a meticulous wine catalog assistant. Answer with a single JSON object."

type Config struct {
	APIKey string
	Model  string

	// BaseURL selects the endpoint, e.g. "https://api.openai.com/v1" or a local
	// OpenAI-compatible server.
	BaseURL string

	Temperature float32
}

type Provider struct {
	client      *openai.Client
	model       string
	temperature float32
}

var _ core.Completer = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("OPENAI_MODEL is required")
	}
	clientConfig := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientConfig.BaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	}
	return &Provider{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       strings.TrimSpace(cfg.Model),
		temperature: cfg.Temperature,
	}, nil
}

func (p *Provider) Complete(ctx context.Context, prompt string) (core.Completion, error) {
	base := core.Completion{Model: p.model}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: p.temperature,
	})
	if err != nil {
		return base, classifyErr(err)
	}
	if len(resp.Choices) == 0 {
		return base, errors.New("openai: no choices in response")
	}

	out := core.Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: p.model,
	}
	if resp.Model != "" {
		out.Model = resp.Model
	}
	return out, nil
}

func classifyErr(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == 429 || status/100 == 5 {
		return &core.TransientError{Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &core.TransientError{Err: err}
	}
	return err
}
