// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package main is the entrypoint for the company-search CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:   "company-search",
		Short: "Natural-language company discovery service",
		Long: `company-search answers investor-style questions about a company catalog.

An LLM pipeline classifies each query, expands investment theses, extracts
and canonicalizes filters, and rewrites the query for embedding; a hybrid
vector plus boolean engine then returns ranked companies with generated
explanations.`,
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	root.AddCommand(serveCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(reindexCmd())
	root.AddCommand(mcpCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
