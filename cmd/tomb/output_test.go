package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/alfredjeanlab/tombstone/internal/model"
	"github.com/alfredjeanlab/tombstone/internal/ui"
)

func TestPrintResult(t *testing.T) {
	ui.ForceNoColor()
	q1, q2 := model.NewKey("quote", "q1"), model.NewKey("quote", "q2")

	for _, tc := range []struct {
		name     string
		res      model.Result
		want     []string
		wantCode int
	}{
		{"Affected", model.Result{Affected: []model.Key{q1, q2}}, []string{"deleted quote/q1", "deleted quote/q2"}, 0},
		{"Empty", model.Result{}, []string{"nothing to do"}, 0},
		{
			"Rejected",
			model.Failed(model.NewKeyError(model.KindAlreadySoftDeleted, q1, "already soft deleted")),
			[]string{"already_soft_deleted quote/q1: already soft deleted"},
			2,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := printResult(&buf, "deleted", tc.res)
			for _, want := range tc.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
			code := 0
			if err != nil {
				code = exitCode(err)
			}
			if code != tc.wantCode {
				t.Errorf("exit code = %d, want %d", code, tc.wantCode)
			}
		})
	}
}

func TestResultErrorMessage(t *testing.T) {
	q1 := model.NewKey("quote", "q1")
	res := model.Failed(
		model.NewKeyError(model.KindEntityNotFound, q1, "not found"),
		model.NewKeyError(model.KindEntityNotFound, model.NewKey("quote", "q2"), "not found"),
	)
	err := &resultError{res: res}
	if got := err.Error(); got != "entity_not_found: quote/q1: not found (and 1 more)" {
		t.Errorf("Error() = %q", got)
	}
	if exitCode(fmt.Errorf("wrapped: %w", err)) != 2 {
		t.Error("wrapped result error should keep exit code 2")
	}
	if exitCode(errors.New("plain")) != 1 {
		t.Error("plain error should exit 1")
	}
}

func TestRecordState(t *testing.T) {
	ui.ForceNoColor()
	for _, tc := range []struct {
		level int
		want  string
	}{
		{model.LevelVisible, "visible"},
		{model.LevelDirect, "soft deleted"},
		{3, "soft deleted by cascade (level 3)"},
	} {
		rec := &model.Record{Type: "quote", ID: "q1", SoftDeleteLevel: tc.level, SoftDeleted: tc.level > 0}
		if got := recordState(rec); got != tc.want {
			t.Errorf("level %d: state = %q, want %q", tc.level, got, tc.want)
		}
	}
}

func TestColorizeHelp(t *testing.T) {
	in := "Soft delete:\n  delete      Soft delete records\n\nFlags:\n      --tenant string   tenant (default \"acme\")\n"
	out := colorizeHelp(in)
	if !strings.Contains(out, "delete") || !strings.Contains(out, "Flags:") {
		t.Errorf("colorized help lost content:\n%s", out)
	}
	if strings.Contains(out, "$2") {
		t.Errorf("unexpanded template in output:\n%s", out)
	}
}
