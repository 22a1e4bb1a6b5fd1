package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rttline/internal/batch"
	"rttline/internal/domain"
	"rttline/internal/engine"
	"rttline/internal/ingest"
	"rttline/internal/pipeline"
	"rttline/internal/repo"
)

func validateCmd() *cobra.Command {
	var letterPath, pathwayNumber string
	var pasFlags []string
	var save bool
	cmd := &cobra.Command{
		Use:   "validate [record.json|-]",
		Short: "Validate one pathway record, letter or stored pathway",
		Long: `Validate a pathway record (JSON file or stdin), a clinic letter, or both.
With --pathway the stored pathway is validated and the result saved.
PAS flags are passed as key=value, e.g. --pas follow_up_booked=no --pas ordered:MRI=yes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var letterText string
			if letterPath != "" {
				b, err := readInput(letterPath)
				if err != nil {
					return err
				}
				letterText = string(b)
			}
			pas, err := parsePASFlags(pasFlags)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor := viper.GetString("actor-id")
				var res domain.ValidationResult
				if pathwayNumber != "" {
					if len(args) > 0 {
						return errors.New("--pathway cannot be combined with a record file")
					}
					res, err = e.ValidatePathway(ctx, pathwayNumber, letterText, pas, actor)
				} else {
					in := pipeline.Input{LetterText: letterText, PAS: pas}
					if len(args) > 0 {
						rec, err := readRecord(args[0])
						if err != nil {
							return err
						}
						in.Record = &rec
					}
					res, err = e.ValidateInput(ctx, in, save, actor)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				printResult(res)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&letterPath, "letter", "", "clinic letter text file (- for stdin)")
	cmd.Flags().StringArrayVar(&pasFlags, "pas", nil, "PAS snapshot flag key=value (repeatable)")
	cmd.Flags().StringVar(&pathwayNumber, "pathway", "", "validate a stored pathway")
	cmd.Flags().BoolVar(&save, "save", false, "store the record and its result")
	return cmd
}

func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <letter|->",
		Short: "Extract structured facts from a clinic letter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readInput(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSON(e.Validator.Extract(string(b)))
			})
		},
	}
	return cmd
}

func batchCmd() *cobra.Command {
	var out string
	var save bool
	var workers int
	cmd := &cobra.Command{
		Use:   "batch <file.csv|file.xlsx|file.json>",
		Short: "Validate a sheet of pathways",
		Long:  "Validate every row of a CSV/XLSX extract (or a JSON array of inputs) on a worker pool and print the summary. Rows that cannot be read are reported by sheet line and do not stop the batch.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sheet, err := ingest.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if workers > 0 {
					cfg := *e.Config
					cfg.Batch.Workers = workers
					e.Config = &cfg
				}
				rep, err := e.RunBatch(ctx, sheet.Inputs, save, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				rep = sheet.Merge(rep)
				for _, f := range rep.Failures {
					logger.Warn().Int("line", f.Index).Str("pathway_number", f.PathwayNumber).Msg(f.Error)
				}
				if out != "" {
					if err := ingest.WriteReportFile(out, rep); err != nil {
						return err
					}
					logger.Info().Str("path", out).Msg("report written")
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				printReport(rep)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write the full report to .xlsx or .csv")
	cmd.Flags().BoolVar(&save, "save", false, "store results for rows with a pathway number")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker count (default from config)")
	return cmd
}

func pathwayCmd() *cobra.Command {
	pw := &cobra.Command{
		Use:   "pathway",
		Short: "Stored pathways",
	}
	pw.AddCommand(pathwayImportCmd())
	pw.AddCommand(pathwayListCmd())
	pw.AddCommand(pathwayShowCmd())
	pw.AddCommand(pathwayResultsCmd())
	pw.AddCommand(pathwayValidateCmd())
	return pw
}

func pathwayImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv|file.xlsx|file.json>",
		Short: "Import pathway records (all or nothing)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sheet, err := ingest.ReadFile(args[0])
			if err != nil {
				return err
			}
			if len(sheet.Rejected) > 0 {
				for _, r := range sheet.Rejected {
					logger.Error().Int("line", r.Line).Str("pathway_number", r.PathwayNumber).Msg(r.Err.Error())
				}
				return fmt.Errorf("%d rows rejected; nothing imported", len(sheet.Rejected))
			}
			var recs []domain.PathwayRecord
			for i, in := range sheet.Inputs {
				if in.Record == nil {
					return fmt.Errorf("line %d: no pathway record", sheet.Lines[i])
				}
				recs = append(recs, *in.Record)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.ImportPathways(ctx, recs, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]int{"imported": len(recs), "created": created})
				}
				fmt.Printf("imported %d pathways (%d new)\n", len(recs), created)
				return nil
			})
		},
	}
	return cmd
}

func pathwayListCmd() *cobra.Command {
	var f repo.PathwayFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored pathways",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListPathways(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Pathway", "Patient", "Specialty", "Last status", "Validated", "Updated"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.PathwayNumber, p.PatientName, p.Specialty, p.LastStatus, p.LastValidatedAt, p.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Specialty, "specialty", "", "filter by specialty")
	cmd.Flags().StringVar(&f.Status, "status", "", "filter by last status (PASS, FAIL, NEEDS_REVIEW)")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func pathwayShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <pathway-number>",
		Short: "Show a stored pathway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rec, err := r.GetPathway(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	return cmd
}

func pathwayResultsCmd() *cobra.Command {
	var f repo.ResultFilters
	cmd := &cobra.Command{
		Use:   "results <pathway-number>",
		Short: "Validation history of a pathway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.PathwayNumber = args[0]
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetPathway(ctx, f.PathwayNumber); err != nil {
					return err
				}
				results, err := r.ListResults(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(results)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Validated", "Status", "Severity", "Code", "Gaps", "Auto-fixed"})
				for _, res := range results {
					tw.AppendRow(table.Row{res.ID, res.ValidatedAt.Format("2006-01-02 15:04"), res.Status, res.Severity,
						res.Classification.Code, len(res.Gaps), appliedCount(res.Fixes)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "filter by status")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "max rows")
	return cmd
}

func pathwayValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [pathway-number...]",
		Short: "Re-validate stored pathways (all when none given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.ValidateStored(ctx, args, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				printReport(rep)
				return nil
			})
		},
	}
	return cmd
}

// --- input helpers ---

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func readRecord(path string) (domain.PathwayRecord, error) {
	b, err := readInput(path)
	if err != nil {
		return domain.PathwayRecord{}, err
	}
	var rec domain.PathwayRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return domain.PathwayRecord{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func parsePASFlags(flags []string) (*domain.PASSnapshot, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	values := make(map[string]string, len(flags))
	for _, kv := range flags {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --pas %q (want key=value)", kv)
		}
		values[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	pas, err := domain.ParsePASSnapshot(values)
	if err != nil {
		return nil, err
	}
	return &pas, nil
}

// --- rendering ---

func printResult(res domain.ValidationResult) {
	fmt.Printf("%s  %s (%s)  code %d via %s\n", displayNumber(res.PathwayNumber), res.Status, res.Severity,
		res.Classification.Code, res.Classification.Rule)
	if res.Clock.Status != "" {
		fmt.Printf("clock: %s, %d weeks, %s\n", res.Clock.Status, res.Clock.ElapsedWeeks, res.Clock.Breach)
	}
	if len(res.Gaps) > 0 {
		tw := newTable()
		tw.AppendHeader(table.Row{"Rule", "Field", "Severity", "Message"})
		for _, g := range res.Gaps {
			tw.AppendRow(table.Row{g.RuleID, g.Field, g.Severity, g.Message})
		}
		tw.Render()
	}
	if len(res.Fixes) > 0 {
		tw := newTable()
		tw.AppendHeader(table.Row{"Fix", "Field", "Current", "Fixed", "Confidence", "Disposition"})
		for _, f := range res.Fixes {
			fixed := "-"
			if f.FixedValue != nil {
				fixed = *f.FixedValue
			}
			tw.AppendRow(table.Row{f.RuleID, f.Field, f.CurrentValue, fixed, f.Confidence, f.Disposition})
		}
		tw.Render()
	}
	if res.Comment != "" {
		fmt.Println()
		fmt.Println(res.Comment)
	}
}

func printReport(rep batch.Report) {
	tw := newTable()
	tw.AppendHeader(table.Row{"Records", "Scored", "Errors", "Pass rate", "Auto-fix rate"})
	tw.AppendRow(table.Row{rep.Records, rep.Total, rep.Errors,
		fmt.Sprintf("%.1f%%", rep.PassRate*100), fmt.Sprintf("%.1f%%", rep.AutoFixRate*100)})
	tw.Render()

	if len(rep.StatusCounts) > 0 {
		statuses := make([]string, 0, len(rep.StatusCounts))
		for s := range rep.StatusCounts {
			statuses = append(statuses, string(s))
		}
		sort.Strings(statuses)
		tw = newTable()
		tw.AppendHeader(table.Row{"Status", "Count"})
		for _, s := range statuses {
			tw.AppendRow(table.Row{s, rep.StatusCounts[domain.Status(s)]})
		}
		tw.Render()
	}

	top := rep.TopGaps()
	if len(top) > 10 {
		top = top[:10]
	}
	if len(top) > 0 {
		tw = newTable()
		tw.AppendHeader(table.Row{"Gap", "Count"})
		for _, g := range top {
			tw.AppendRow(table.Row{g.RuleID, g.Count})
		}
		tw.Render()
	}

	if len(rep.Failures) > 0 {
		tw = newTable()
		tw.AppendHeader(table.Row{"Row", "Pathway", "Error"})
		for _, f := range rep.Failures {
			tw.AppendRow(table.Row{f.Index, f.PathwayNumber, f.Error})
		}
		tw.Render()
	}
}

func appliedCount(fixes []domain.Fix) int {
	n := 0
	for _, f := range fixes {
		if f.Applied() {
			n++
		}
	}
	return n
}

func displayNumber(n string) string {
	if n == "" {
		return "(letter only)"
	}
	return n
}
