package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/tombstone/internal/model"
	"github.com/alfredjeanlab/tombstone/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

// resultError is returned by commands whose Result carried errors, so the
// process exits non-zero after the Result has been printed.
type resultError struct {
	res model.Result
}

func (e *resultError) Error() string {
	first := e.res.FirstError()
	if len(e.res.Errors) == 1 {
		return first.Error()
	}
	return fmt.Sprintf("%s (and %d more)", first, len(e.res.Errors)-1)
}

// exitCode maps a command error to a process exit status: 2 when an
// operation ran and reported errors, 1 otherwise.
func exitCode(err error) int {
	var re *resultError
	if errors.As(err, &re) {
		return 2
	}
	return 1
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func printRecord(w io.Writer, rec *model.Record) {
	fmt.Fprintf(w, "Key:         %s\n", ui.RenderAccent(rec.Key().String()))
	if rec.TenantID != "" {
		fmt.Fprintf(w, "Tenant:      %s\n", rec.TenantID)
	}
	fmt.Fprintf(w, "Version:     %d\n", rec.Version)
	fmt.Fprintf(w, "State:       %s\n", recordState(rec))
	if rec.SoftDeletedAt != nil {
		fmt.Fprintf(w, "Deleted At:  %s\n", rec.SoftDeletedAt.Format(timeLayout))
	}
	if len(rec.Fields) > 0 {
		fmt.Fprintf(w, "Fields:      %s\n", rec.Fields)
	}
	if !rec.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created At:  %s\n", rec.CreatedAt.Format(timeLayout))
	}
	if !rec.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated At:  %s\n", rec.UpdatedAt.Format(timeLayout))
	}
}

// recordState describes a record's soft-delete level for humans.
func recordState(rec *model.Record) string {
	switch {
	case rec.IsVisible():
		return ui.RenderOK("visible")
	case rec.SoftDeleteLevel == model.LevelDirect:
		return ui.RenderWarn("soft deleted")
	default:
		return ui.RenderWarn(fmt.Sprintf("soft deleted by cascade (level %d)", rec.SoftDeleteLevel))
	}
}

func printRecordList(w io.Writer, recs []*model.Record, noun string) {
	if len(recs) == 0 {
		fmt.Fprintf(w, "no %s\n", noun)
		return
	}
	width := ui.TerminalWidth(120)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTENANT\tVERSION\tLEVEL\tUPDATED\tFIELDS")
	for _, r := range recs {
		updated := ""
		if !r.UpdatedAt.IsZero() {
			updated = r.UpdatedAt.Format(timeLayout)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			r.Key(),
			r.TenantID,
			r.Version,
			r.SoftDeleteLevel,
			updated,
			ui.Truncate(string(r.Fields), max(width/3, 20)),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d %s\n", len(recs), noun)
}

// printResult prints an operation Result and returns a *resultError when
// it carries errors.
func printResult(w io.Writer, verb string, res model.Result) error {
	if jsonOutput {
		if err := printJSON(w, res.Normalize()); err != nil {
			return err
		}
	} else {
		for _, k := range res.Affected {
			fmt.Fprintf(w, "%s %s\n", ui.RenderOK(verb), k)
		}
		for _, e := range res.Errors {
			fmt.Fprintf(w, "%s %s\n", ui.RenderFailure(string(e.Kind)), strings.TrimPrefix(e.Error(), string(e.Kind)+": "))
		}
		if res.OK() && len(res.Affected) == 0 {
			fmt.Fprintln(w, ui.RenderMuted("nothing to do"))
		}
	}
	if res.OK() {
		return nil
	}
	return &resultError{res: res}
}
