package company

import "strings"

// Normalize converts one raw Record into a destination Row.
//
// The second return value is false when the record has no resolvable
// identifier; such records are excluded from their batch, not treated as
// errors.
//
// Transformation order: missing fields default to "", embedded single quotes
// are doubled (SQL literal escaping), then the identifier and name are capped
// at their column widths. The caps apply to the escaped form.
func Normalize(rec Record) (Row, bool) {
	folded := foldKeys(rec)

	cin := EscapeLiteral(field(folded, "cin"))
	if cin == "" {
		return Row{}, false
	}
	if len(cin) > MaxCINLen {
		cin = cin[:MaxCINLen]
	}

	name := EscapeLiteral(field(folded, "name"))
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}

	return Row{
		Name:             name,
		CIN:              cin,
		Status:           EscapeLiteral(field(folded, "status")),
		RegistrationDate: EscapeLiteral(field(folded, "registration_date")),
		Class:            EscapeLiteral(field(folded, "class")),
		ROC:              EscapeLiteral(field(folded, "roc")),
		Email:            EscapeLiteral(field(folded, "email")),
		State:            EscapeLiteral(field(folded, "state")),
	}, true
}

// BuildBatch normalizes a page of records into an ordered batch of rows.
// Records without an identifier are silently dropped; skipped reports how
// many were.
func BuildBatch(records []Record) (rows []Row, skipped int) {
	rows = make([]Row, 0, len(records))
	for _, rec := range records {
		row, ok := Normalize(rec)
		if !ok {
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped
}

// EscapeLiteral doubles embedded single quotes so the value can be rendered
// inside a single-quoted SQL string literal.
func EscapeLiteral(s string) string {
	if !strings.ContainsRune(s, '\'') {
		return s
	}
	return strings.ReplaceAll(s, "'", "''")
}

// UnescapeLiteral reverses EscapeLiteral. Store backends that bind values as
// parameters (rather than inlining literals) must unescape first, otherwise
// the doubled quote would be stored verbatim.
func UnescapeLiteral(s string) string {
	if !strings.Contains(s, "''") {
		return s
	}
	return strings.ReplaceAll(s, "''", "'")
}
