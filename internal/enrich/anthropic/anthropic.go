// Package anthropic is a Completer backed by the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/core"
)

const defaultMaxTokens = 2048

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the API base URL (default "https://api.anthropic.com/v1").
	BaseURL string

	MaxTokens int
}

type Provider struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int
}

var _ core.Completer = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("ANTHROPIC_MODEL is required")
	}
	var opts []anthropic.ClientOption
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Provider{
		client:    anthropic.NewClient(strings.TrimSpace(cfg.APIKey), opts...),
		model:     anthropic.Model(strings.TrimSpace(cfg.Model)),
		maxTokens: maxTokens,
	}, nil
}

func (p *Provider) Complete(ctx context.Context, prompt string) (core.Completion, error) {
	base := core.Completion{Model: string(p.model)}

	resp, err := p.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		return base, classifyErr(err)
	}

	out := core.Completion{
		Text:  textFromResponse(resp),
		Model: string(p.model),
	}
	if resp.Model != "" {
		out.Model = string(resp.Model)
	}
	return out, nil
}

func textFromResponse(resp anthropic.MessagesResponse) string {
	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			parts = append(parts, *block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func classifyErr(err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsRateLimitErr() || apiErr.IsOverloadedErr() || apiErr.IsApiErr() {
			return &core.TransientError{Err: err}
		}
		return err
	}
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.StatusCode == 429 || reqErr.StatusCode/100 == 5 {
			return &core.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &core.TransientError{Err: err}
	}
	return err
}
