package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bibbank/risk-engine/internal/application/dto"
)

func showCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <analysis-id>",
		Short: "Print a stored analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid analysis id: %w", err)
			}

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.get.Execute(cmd.Context(), dto.GetAnalysisRequest{TenantID: a.tenantID, AnalysisID: id})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func historyCmd(opts *rootOptions) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "history <subject>",
		Short: "List a subject's analyses, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.list.Execute(cmd.Context(), dto.ListAnalysesRequest{
				TenantID:  a.tenantID,
				SubjectID: args[0],
				Limit:     limit,
				Offset:    offset,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum analyses to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "analyses to skip")

	return cmd
}
