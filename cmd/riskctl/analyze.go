package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bibbank/risk-engine/internal/application/dto"
)

// batchFile is the on-disk batch format. A bare JSON array of transactions
// is accepted too.
type batchFile struct {
	SubjectID    string               `json:"subject_id"`
	Transactions []dto.TransactionDTO `json:"transactions"`
}

func analyzeCmd(opts *rootOptions) *cobra.Command {
	var (
		file    string
		subject string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Score a batch of transactions",
		Long: `Score a batch read from --file ("-" for stdin) and print the analysis as JSON.
The outcome is folded into the local baseline, corpus and counterparty
profiles, so later runs for the same subject compare against it.`,
		Example: `  riskctl analyze --file batch.json --subject acct-42
  cat batch.json | riskctl analyze --file - --subject acct-42`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			batch, err := readBatch(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			if subject != "" {
				batch.SubjectID = subject
			}
			if batch.SubjectID == "" {
				return errors.New("a subject is required: pass --subject or set subject_id in the file")
			}

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.analyze.Execute(cmd.Context(), dto.AnalyzeTransactionsRequest{
				TenantID:     a.tenantID,
				SubjectID:    batch.SubjectID,
				Transactions: batch.Transactions,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "batch file (JSON)")
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "subject the batch belongs to")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func readBatch(stdin io.Reader, path string) (batchFile, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return batchFile{}, fmt.Errorf("failed to read batch: %w", err)
	}

	data = bytes.TrimSpace(data)
	var batch batchFile
	if len(data) > 0 && data[0] == '[' {
		err = json.Unmarshal(data, &batch.Transactions)
	} else {
		err = json.Unmarshal(data, &batch)
	}
	if err != nil {
		return batchFile{}, fmt.Errorf("failed to decode batch: %w", err)
	}
	return batch, nil
}
