// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func seedCmd() *cobra.Command {
	var csvPath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load companies from a CSV and rebuild every index",
		Long: `Reads a company CSV, upserts the vocabulary and funding-stage tables,
replaces the company catalog, and rebuilds the vector and segment indices.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.seeder.Run(ctx, csvPath)
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "Path to the company CSV (required)")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}
