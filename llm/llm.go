// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package llm

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// CompletionRequest is a single structured call to the language model. When
// Schema is set the provider must force a JSON response matching it; the
// pipeline stages all parse the returned text as JSON.
type CompletionRequest struct {
	System      string
	User        string
	Schema      *jsonschema.Schema
	SchemaName  string
	MaxTokens   int
	Temperature float64
}

// Completer produces one completion for one request. Implementations are
// process-wide singletons safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Embedder turns text into vectors sized for the companies index.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// NewJSONSchemaFromStruct creates a JSONSchema from a Go struct using generics.
// It's a helper for pipeline stages that define their output shapes as structs.
func NewJSONSchemaFromStruct[T any]() *jsonschema.Schema {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("failed to create JSON schema from struct: %v", err))
	}

	return schema
}
