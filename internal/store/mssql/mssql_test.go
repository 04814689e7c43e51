package mssql

import (
	"fmt"
	"strings"
	"testing"

	"ogdsync/internal/company"
)

func makeRows(n int) []company.Row {
	rows := make([]company.Row, n)
	for i := range rows {
		rows[i] = company.Row{
			Name: fmt.Sprintf("Company %d", i), CIN: fmt.Sprintf("CIN%04d", i),
			Status: "Active", RegistrationDate: "2020-01-01",
			Class: "Private", ROC: "RoC-Mumbai", Email: "", State: "Maharashtra",
		}
	}
	return rows
}

func TestChunkRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		total, size int
		wantChunks  []int
	}{
		{0, 250, nil},
		{10, 250, []int{10}},
		{250, 250, []int{250}},
		{251, 250, []int{250, 1}},
		{600, 250, []int{250, 250, 100}},
	}
	for _, tc := range tests {
		chunks := chunkRows(makeRows(tc.total), tc.size)
		if len(chunks) != len(tc.wantChunks) {
			t.Errorf("total=%d: got %d chunks, want %d", tc.total, len(chunks), len(tc.wantChunks))
			continue
		}
		for i, want := range tc.wantChunks {
			if len(chunks[i]) != want {
				t.Errorf("total=%d chunk %d: len=%d, want %d", tc.total, i, len(chunks[i]), want)
			}
		}
	}
}

func TestChunkSize_StaysUnderParameterLimit(t *testing.T) {
	t.Parallel()

	if params := chunkSize * len(company.Columns); params >= 2100 {
		t.Fatalf("chunk of %d rows needs %d parameters, over the 2100 cap", chunkSize, params)
	}
}

func TestBuildDeleteSQL(t *testing.T) {
	t.Parallel()

	rows := makeRows(3)
	query, args := buildDeleteSQL("companies", rows)

	if want := "DELETE FROM companies WHERE cin IN (@p1, @p2, @p3)"; query != want {
		t.Errorf("query = %q, want %q", query, want)
	}
	if len(args) != 3 {
		t.Fatalf("got %d args, want 3", len(args))
	}
	if args[0] != "CIN0000" {
		t.Errorf("args[0] = %v", args[0])
	}
}

func TestBuildInsertSQL(t *testing.T) {
	t.Parallel()

	rows := makeRows(2)
	query, args := buildInsertSQL("companies", rows)

	wantArgs := len(rows) * len(company.Columns)
	if len(args) != wantArgs {
		t.Fatalf("got %d args, want %d", len(args), wantArgs)
	}
	if !strings.HasPrefix(query, "INSERT INTO companies (company_name, cin,") {
		t.Errorf("unexpected prefix: %s", query)
	}
	for i := 1; i <= wantArgs; i++ {
		if !strings.Contains(query, fmt.Sprintf("@p%d", i)) {
			t.Errorf("missing placeholder @p%d", i)
		}
	}
	if strings.Contains(query, "MERGE") {
		t.Error("upsert must not use MERGE")
	}
}

func TestBuildInsertSQL_UnescapesArgs(t *testing.T) {
	t.Parallel()

	rows := makeRows(1)
	rows[0].Name = "O''Brien India"
	_, args := buildInsertSQL("companies", rows)

	if args[0] != "O'Brien India" {
		t.Errorf("args[0] = %q, want quote restored before binding", args[0])
	}
}
