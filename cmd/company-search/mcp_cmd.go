// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/4d11/company-search/mcpserver"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP stdio server",
		Long: `Exposes company search and the filter vocabulary as Model Context
Protocol tools over stdio, for use from MCP-capable agents. Logs go to
stderr so stdout stays clean for the protocol.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			return mcpserver.New(a.searcher, a.store, a.log).Run(ctx)
		},
	}
}
