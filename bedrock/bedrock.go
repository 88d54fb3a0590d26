// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go/auth/bearer"

	"github.com/4d11/company-search/llm"
)

const DefaultMaxTokens = 4096

type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	APIKey          string
	DefaultModel    string
}

// Bedrock serves pipeline completions through the Converse API. Schema
// constraints ride in the system block; Converse has no JSON response mode.
type Bedrock struct {
	client *bedrockruntime.Client
	config Config
}

func New(ctx context.Context, cfg Config, httpClient *http.Client) (*Bedrock, error) {
	configOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	}

	// Priority: IAM credentials > Bearer token (API key) > default chain
	var clientOpts []func(*bedrockruntime.Options)
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			aws.NewCredentialsCache(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			),
		))
	} else if cfg.APIKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(aws.AnonymousCredentials{}))

		clientOpts = append(clientOpts, func(o *bedrockruntime.Options) {
			o.Credentials = aws.AnonymousCredentials{}
			o.BearerAuthTokenProvider = bearer.TokenProviderFunc(func(ctx context.Context) (bearer.Token, error) {
				return bearer.Token{Value: cfg.APIKey}, nil
			})
			o.AuthSchemePreference = []string{"httpBearerAuth"}
		})
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Bedrock{
		client: bedrockruntime.NewFromConfig(awsConfig, clientOpts...),
		config: cfg,
	}, nil
}

func (b *Bedrock) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
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

	params := &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.config.DefaultModel),
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: req.User},
			},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(maxTokens)), //nolint:gosec // G115: stage budgets stay far below int32
		},
	}
	if system != "" {
		params.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		}
	}
	if req.Temperature > 0 {
		params.InferenceConfig.Temperature = aws.Float32(float32(req.Temperature))
	}

	out, err := b.client.Converse(ctx, params)
	if err != nil {
		return "", fmt.Errorf("converse failed: %w", err)
	}

	message, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("unexpected converse output type")
	}

	var text strings.Builder
	for _, block := range message.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			text.WriteString(t.Value)
		}
	}
	if text.Len() == 0 {
		return "", errors.New("empty response from model")
	}

	return text.String(), nil
}
