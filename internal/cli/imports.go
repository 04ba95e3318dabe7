package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/quickledger/quickledger/internal/app/catalog"
	"github.com/quickledger/quickledger/internal/app/executor"
	"github.com/quickledger/quickledger/internal/daemon"
	"github.com/quickledger/quickledger/internal/domain"
	"github.com/quickledger/quickledger/internal/infra/report"
)

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogApplyCmd)
	catalogCmd.AddCommand(catalogFeesCmd)

	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importStageCmd)
	importCmd.AddCommand(importProcessCmd)
	importCmd.AddCommand(importRowCmd)
	importCmd.AddCommand(importStatusCmd)
	importCmd.AddCommand(importRowsCmd)
	importRowsCmd.Flags().String("status", "", "Only rows in this status: New, Failed or Processed")
	importRowsCmd.Flags().Int("limit", 50, "Maximum rows to list")

	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportFeesCmd)
	reportFeesCmd.Flags().String("type", "", "Payment type name")
	reportFeesCmd.Flags().String("session", "", "Session code")
	reportFeesCmd.Flags().StringP("out", "o", "", "Write an .xlsx workbook to this path")
	reportFeesCmd.MarkFlagRequired("type")
	reportFeesCmd.MarkFlagRequired("session")
}

// ─── catalog ────────────────────────────────────────────────────────────────

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Load and inspect reference data",
}

var catalogApplyCmd = &cobra.Command{
	Use:   "apply FILE.toml",
	Short: "Create the classifications, programmes, fees and courses in a seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		seed, err := catalog.DecodeSeed(f)
		if err != nil {
			return err
		}
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			rep, err := d.Catalog.Apply(ctx, seed)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			table := newTable(w, "Kind", "Created", "Existing")
			kinds := make(map[string]bool)
			for k := range rep.Created {
				kinds[k] = true
			}
			for k := range rep.Existing {
				kinds[k] = true
			}
			sorted := make([]string, 0, len(kinds))
			for k := range kinds {
				sorted = append(sorted, k)
			}
			sort.Strings(sorted)
			for _, k := range sorted {
				table.Append([]string{k, fmt.Sprint(rep.Created[k]), fmt.Sprint(rep.Existing[k])})
			}
			table.Render()
			return nil
		})
	},
}

var catalogFeesCmd = &cobra.Command{
	Use:   "fees PROGRAMME_ID LEVEL",
	Short: "List the fees a programme's students owe at a level",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		prog, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			lvl, err := d.DB.FindLevel(ctx, args[1])
			if err != nil {
				return err
			}
			fees, err := d.Catalog.ApplicableFees(ctx, prog, lvl.ID)
			if err != nil {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "Fee", "Type", "Amount", "Description")
			var sum domain.Money
			for _, f := range fees {
				name := fmt.Sprint(f.TypeID)
				if pt, err := d.DB.GetPaymentType(ctx, f.TypeID); err == nil {
					name = pt.Name
				}
				table.Append([]string{fmt.Sprint(f.ID), name, f.Amount.String(), f.Description})
				sum += f.Amount
			}
			table.SetFooter([]string{"", "", sum.String(), ""})
			table.Render()
			return nil
		})
	},
}

// ─── import ─────────────────────────────────────────────────────────────────

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Stage and replay legacy spreadsheets",
	Long: `Legacy rows are staged as New and replayed by the import executor.
Kinds are processed in the order student, course, result, payment.
Failed rows are retried once a kind has no New rows left.`,
}

func kindArg(s string) (domain.ImportKind, error) {
	return domain.ParseImportKind(s)
}

var importStageCmd = &cobra.Command{
	Use:   "stage KIND FILE",
	Short: "Stage a CSV or XLSX file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := kindArg(args[0])
		if err != nil {
			return err
		}
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			rep, err := d.Importer.StageFile(ctx, kind, filepath.Base(args[1]), f)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			success(w, "staged %d %s row(s) in batch %s", rep.Staged, rep.Kind, rep.BatchID)
			if rep.Kept > 0 {
				warn(w, "%d row(s) already processed, left unchanged", rep.Kept)
			}
			for _, re := range rep.Rejected {
				failure(w, "  row %d: %s", re.Row, re.Reason)
			}
			return nil
		})
	},
}

var importProcessCmd = &cobra.Command{
	Use:   "process [KIND]",
	Short: "Run one import batch for a kind, or for every kind",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			var results []executor.BatchResult
			if len(args) == 1 {
				kind, err := kindArg(args[0])
				if err != nil {
					return err
				}
				res, err := d.Executor.RunOnce(ctx, kind)
				if err != nil {
					return err
				}
				results = append(results, res)
			} else {
				var err error
				if results, err = d.Executor.Tick(ctx); err != nil {
					return err
				}
			}
			w := cmd.OutOrStdout()
			table := newTable(w, "Kind", "Source", "Picked", "Processed", "Failed", "Errors")
			for _, r := range results {
				table.Append([]string{string(r.Kind), string(r.Source), fmt.Sprint(r.Picked),
					fmt.Sprint(r.Processed), fmt.Sprint(r.Failed), fmt.Sprint(r.Errors)})
			}
			table.Render()
			return nil
		})
	},
}

var importRowCmd = &cobra.Command{
	Use:   "row ID",
	Short: "Process a single staged row now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			out, err := d.Importer.Process(ctx, id)
			if err != nil {
				return err
			}
			if out.Success {
				success(cmd.OutOrStdout(), "row %d %s", out.RowID, out.Status)
			} else {
				failure(cmd.OutOrStdout(), "row %d %s: %s", out.RowID, out.Status, out.Reason)
			}
			return nil
		})
	},
}

var importStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show staged row counts per kind and status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			table := newTable(cmd.OutOrStdout(), "Kind", "New", "Failed", "Processed")
			for _, kind := range executor.Kinds {
				counts, err := d.Importer.Counts(ctx, kind)
				if err != nil {
					return err
				}
				table.Append([]string{string(kind), fmt.Sprint(counts[domain.ImportNew]),
					fmt.Sprint(counts[domain.ImportFailed]), fmt.Sprint(counts[domain.ImportProcessed])})
			}
			table.Render()
			return nil
		})
	},
}

var importRowsCmd = &cobra.Command{
	Use:   "rows KIND",
	Short: "List staged rows with their remarks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := kindArg(args[0])
		if err != nil {
			return err
		}
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			rows, err := d.Importer.Rows(ctx, kind, domain.ImportStatus(status), limit)
			if err != nil {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "ID", "Key", "Status", "Remarks")
			for _, r := range rows {
				table.Append([]string{fmt.Sprint(r.ID), r.Key, string(r.Status), r.Remarks})
			}
			table.Render()
			return nil
		})
	},
}

// ─── report ─────────────────────────────────────────────────────────────────

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build finance reports",
}

var reportFeesCmd = &cobra.Command{
	Use:   "fee-entries",
	Short: "Report every fee entry of a type in a session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		typeName, _ := f.GetString("type")
		sessCode, _ := f.GetString("session")
		out, _ := f.GetString("out")
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			pt, err := d.DB.FindPaymentType(ctx, typeName)
			if err != nil {
				return err
			}
			sess, err := d.DB.FindSession(ctx, sessCode)
			if err != nil {
				return err
			}
			rep, err := report.Build(ctx, d.DB, *pt, *sess)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if out != "" {
				file, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := rep.WriteXLSX(file); err != nil {
					file.Close()
					return err
				}
				if err := file.Close(); err != nil {
					return err
				}
				success(w, "wrote %d row(s) to %s", len(rep.Rows), out)
				return nil
			}
			title(w, "%s (%s)", rep.TypeName, rep.SessionCode)
			table := newTable(w, "Matric", "Name", "Due", "Paid", "Balance")
			for _, r := range rep.Rows {
				table.Append([]string{r.Matric, r.Name, r.AmountDue.String(), r.AmountPaid.String(), r.Balance.String()})
			}
			table.SetFooter([]string{"", "Total", rep.TotalDue.String(), rep.TotalPaid.String(), rep.TotalOwed.String()})
			table.Render()
			return nil
		})
	},
}
