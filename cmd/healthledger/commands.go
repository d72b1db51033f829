// ABOUTME: One-shot CLI commands for studies, statistics, submissions and history
// ABOUTME: Output is tabular with color highlights

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/healthledger/internal/ledger"
	"github.com/2389/healthledger/internal/session"
	"github.com/2389/healthledger/internal/store"
	"github.com/2389/healthledger/internal/studycache"
)

func parseStudyID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid study id %q", s)
	}
	return id, nil
}

func runStudies(ctx context.Context, a *app, args []string) error {
	activeOnly := len(args) > 0 && args[0] == "--active"

	report, err := a.session.Refresh(ctx)
	if err != nil {
		return err
	}
	if report.Partial != nil {
		color.Yellow("  %d of %d studies could not be loaded: %v\n", len(report.Partial.Failed), report.Count, report.Partial.IDs())
	}

	studies := a.session.Studies()
	if activeOnly {
		studies = a.session.ActiveStudies()
	}
	if len(studies) == 0 {
		fmt.Println("  No studies.")
		return nil
	}

	printStudies(studies)
	return nil
}

func printStudies(studies []ledger.Study) {
	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tSTATUS\tRECORDS\tCREATED")
	fmt.Fprintln(w, "  --\t----\t------\t-------\t-------")
	for _, st := range studies {
		status := gray("closed")
		if st.IsActive {
			status = green("active")
		}
		fmt.Fprintf(w, "  %d\t%s\t%s\t%d\t%s\n",
			st.ID, truncate(st.Name, 32), status, st.DataCount, st.CreatedAt.Local().Format("Jan 02 2006 15:04"))
	}
	_ = w.Flush()
}

func runStats(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: healthledger stats <study-id>")
	}
	id, err := parseStudyID(args[0])
	if err != nil {
		return err
	}

	st, err := a.session.Study(ctx, id)
	if err != nil {
		return err
	}

	view := a.session.Stats(ctx, id, true)
	switch view.State {
	case studycache.StatsFailed:
		return fmt.Errorf("loading statistics for study %d: %w", id, view.Err)
	case studycache.StatsAbsent:
		return fmt.Errorf("no statistics for study %d", id)
	}

	cyan := color.New(color.FgCyan)
	cyan.Printf("  %s", st.Name)
	fmt.Printf(" (study %d)\n\n", id)

	s := view.Stats
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  Records:\t%d\n", s.TotalRecords)
	fmt.Fprintf(w, "  Minimum:\t%s\n", s.MinValue.StringFixed(2))
	fmt.Fprintf(w, "  Maximum:\t%s\n", s.MaxValue.StringFixed(2))
	fmt.Fprintf(w, "  Encrypted sum:\t%s\n", s.EncryptedSum.Hex())
	if !s.LastUpdated.IsZero() {
		fmt.Fprintf(w, "  Last updated:\t%s\n", s.LastUpdated.Local().Format(time.RFC1123))
	}
	return w.Flush()
}

func runSubmit(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: healthledger submit <study-id> <value>")
	}
	id, err := parseStudyID(args[0])
	if err != nil {
		return err
	}

	if err := a.session.RetryCapability(ctx); err != nil {
		return err
	}

	res, err := a.session.Submit(ctx, session.SubmitRequest{StudyID: &id, Value: args[1]})
	if err != nil {
		return err
	}

	gray := color.New(color.FgHiBlack)
	gray.Printf("  tx:     %s\n", res.Receipt.TxHash.Hex())
	gray.Printf("  block:  %d\n", res.Receipt.BlockNumber)
	gray.Printf("  handle: %s\n", res.Handle.Hex())
	return nil
}

func runCreate(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: healthledger create <name> <description>")
	}
	_, err := a.session.CreateStudy(ctx, args[0], args[1])
	return err
}

func runHistory(ctx context.Context, a *app, args []string) error {
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		limit = n
	}

	receipts, err := a.session.Receipts(ctx, store.ReceiptFilter{Limit: limit})
	if err != nil {
		return err
	}
	if len(receipts) == 0 {
		fmt.Println("  No receipts.")
		return nil
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  WHEN\tKIND\tSTUDY\tSTATUS\tDETAIL")
	fmt.Fprintln(w, "  ----\t----\t-----\t------\t------")
	for _, r := range receipts {
		var status string
		switch r.Status {
		case store.StatusAccepted:
			status = green(string(r.Status))
		case store.StatusRejected:
			status = red(string(r.Status))
		default:
			status = yellow(string(r.Status))
		}
		detail := r.Reason
		if detail == "" {
			detail = truncate(r.TxHash, 18)
		}
		study := "-"
		if r.HasStudy() {
			study = strconv.FormatUint(r.StudyID, 10)
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			r.CreatedAt.Local().Format("Jan 02 15:04:05"), r.Kind, study, status, truncate(detail, 48))
	}
	return w.Flush()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
