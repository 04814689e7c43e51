// Package company defines the company data model and the transformation from
// raw OGD records into normalized destination rows.
//
// The OGD dataset does not supply records under a stable schema: field names
// change spelling and casing between dataset revisions (e.g. "email_id" vs
// "email", "registered_state" vs "state"). Each normalized field therefore
// carries an ordered list of accepted upstream aliases, tried in priority
// order against a case-folded view of the record.
package company

import (
	"fmt"
	"strconv"
	"strings"
)

// Record is one raw company entry as decoded from the OGD API. Values are
// usually strings, but the API occasionally returns numbers for date-like or
// code-like fields, so the map is deliberately loose.
type Record map[string]any

// Row is the normalized destination form: one tuple for the companies table.
//
// Field values are stored SQL-literal-escaped (embedded single quotes doubled)
// and length-capped, ready for inline literal rendering by the D1 statement
// builder. Backends that bind parameters instead must call UnescapeLiteral.
type Row struct {
	Name             string
	CIN              string
	Status           string
	RegistrationDate string
	Class            string
	ROC              string
	Email            string
	State            string
}

// Length caps applied during normalization. CIN is the upsert key and must fit
// the destination column; name is the only other field the source is known to
// overflow.
const (
	MaxCINLen  = 50
	MaxNameLen = 255
)

// Columns is the destination column order, matching the pre-created companies
// table and the VALUES tuple order produced by Row.Values.
var Columns = []string{
	"company_name",
	"cin",
	"status",
	"registration_date",
	"company_class",
	"roc",
	"email",
	"state",
}

// Values returns the row as a positional tuple in Columns order.
func (r Row) Values() []any {
	return []any{r.Name, r.CIN, r.Status, r.RegistrationDate, r.Class, r.ROC, r.Email, r.State}
}

// fieldAliases maps each normalized field to its accepted upstream key
// spellings in priority order. Lookup is case-insensitive, which covers the
// casing-only variants between dataset revisions.
var fieldAliases = map[string][]string{
	"cin":               {"corporate_identification_number", "cin"},
	"name":              {"company_name", "name_of_company"},
	"status":            {"company_status", "status"},
	"registration_date": {"date_of_registration", "registration_date"},
	"class":             {"company_class", "class_of_company"},
	"roc":               {"registrar_of_companies", "roc"},
	"email":             {"email_id", "email"},
	"state":             {"registered_state", "state"},
}

// field resolves one normalized field from a case-folded record. A missing or
// null value degrades to the empty string, never to an error.
func field(folded map[string]any, name string) string {
	for _, alias := range fieldAliases[name] {
		if v, ok := folded[alias]; ok {
			s := stringify(v)
			if s != "" {
				return s
			}
		}
	}
	return ""
}

// stringify converts an OGD JSON value to its string form. Numbers round-trip
// without exponent notation so that numeric CINs and dates survive intact.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		// encoding/json decodes all numbers as float64.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// foldKeys lowercases record keys once so alias lookup is case-insensitive.
func foldKeys(rec Record) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}
