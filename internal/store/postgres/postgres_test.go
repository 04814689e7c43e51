package postgres

import (
	"fmt"
	"strings"
	"testing"

	"ogdsync/internal/company"
)

func row(cin, name string) company.Row {
	return company.Row{
		Name: name, CIN: cin, Status: "Active",
		RegistrationDate: "2020-01-01", Class: "Private",
		ROC: "RoC-Mumbai", Email: "x@example.in", State: "Maharashtra",
	}
}

func TestBuildUpsertSQL_Placeholders(t *testing.T) {
	t.Parallel()

	rows := []company.Row{row("CIN0001", "Alpha"), row("CIN0002", "Beta")}
	query, args := buildUpsertSQL("companies", rows)

	wantArgs := len(rows) * len(company.Columns)
	if len(args) != wantArgs {
		t.Fatalf("got %d args, want %d", len(args), wantArgs)
	}

	// Placeholders must be numbered $1..$N without gaps.
	for i := 1; i <= wantArgs; i++ {
		if !strings.Contains(query, fmt.Sprintf("$%d", i)) {
			t.Errorf("missing placeholder $%d", i)
		}
	}
	if strings.Contains(query, fmt.Sprintf("$%d", wantArgs+1)) {
		t.Errorf("unexpected placeholder beyond $%d", wantArgs)
	}
}

func TestBuildUpsertSQL_OnConflict(t *testing.T) {
	t.Parallel()

	query, _ := buildUpsertSQL("companies", []company.Row{row("CIN0001", "Alpha")})

	if !strings.Contains(query, "ON CONFLICT (cin) DO UPDATE SET") {
		t.Fatalf("missing conflict clause: %s", query)
	}
	for _, col := range company.Columns {
		if col == "cin" {
			if strings.Contains(query, "cin = EXCLUDED.cin") {
				t.Error("conflict column must not be updated")
			}
			continue
		}
		if !strings.Contains(query, col+" = EXCLUDED."+col) {
			t.Errorf("missing update for column %s", col)
		}
	}
}

func TestBuildUpsertSQL_UnescapesArgs(t *testing.T) {
	t.Parallel()

	r := row("CIN0001", "O''Brien India")
	_, args := buildUpsertSQL("companies", []company.Row{r})

	if args[0] != "O'Brien India" {
		t.Errorf("args[0] = %q, want quote restored before binding", args[0])
	}
}
