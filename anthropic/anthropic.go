// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	anthropicSDK "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/4d11/company-search/llm"
)

const DefaultMaxTokens = 4096

type Config struct {
	APIKey       string
	DefaultModel string
}

// Anthropic serves pipeline completions through the Messages API. The API
// has no JSON response format, so schema-constrained requests carry the
// serialized schema in the system prompt instead.
type Anthropic struct {
	client anthropicSDK.Client
	config Config
}

func New(config Config, httpClient *http.Client) *Anthropic {
	client := anthropicSDK.NewClient(
		option.WithAPIKey(config.APIKey),
		option.WithHTTPClient(httpClient),
	)

	return &Anthropic{
		client: client,
		config: config,
	}
}

func (a *Anthropic) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	system := req.System
	if req.Schema != nil {
		schemaJSON, err := json.Marshal(req.Schema)
		if err != nil {
			return "", fmt.Errorf("failed to marshal output schema: %w", err)
		}
		system = strings.TrimSpace(system +
			"\n\nRespond with a single JSON object matching this JSON schema and nothing else:\n" +
			string(schemaJSON))
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropicSDK.MessageNewParams{
		Model:     anthropicSDK.Model(a.config.DefaultModel),
		MaxTokens: int64(maxTokens),
		Messages: []anthropicSDK.MessageParam{{
			Role:    anthropicSDK.MessageParamRoleUser,
			Content: []anthropicSDK.ContentBlockParamUnion{anthropicSDK.NewTextBlock(req.User)},
		}},
	}
	if system != "" {
		params.System = []anthropicSDK.TextBlockParam{{
			Text: system,
		}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropicSDK.Float(req.Temperature)
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("message creation failed: %w", err)
	}

	var out strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", errors.New("empty response from model")
	}

	return out.String(), nil
}
