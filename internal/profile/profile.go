// Package profile summarizes the columns of a frame: inferred types, distinct
// values and null proportions. An empty cell counts as null.
package profile

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/datafarmer/datafarmer/internal/frame"
)

// Inferred column types.
const (
	DtypeInt      = "int64"
	DtypeFloat    = "float64"
	DtypeBool     = "bool"
	DtypeDatetime = "datetime64"
	DtypeObject   = "object"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Features returns one row per column with the columns
// Feature, Dtypes, Unique Values and Values. Values is a JSON array of the
// distinct non-null values in order of first appearance.
func Features(f *frame.Frame) (*frame.Frame, error) {
	out := frame.MustNew("Feature", "Dtypes", "Unique Values", "Values")

	for _, name := range f.Columns() {
		values, err := f.Column(name)
		if err != nil {
			return nil, err
		}

		distinct := uniqueNonNull(values)
		encoded, err := json.Marshal(distinct)
		if err != nil {
			return nil, err
		}

		if err := out.Append(name, InferDtype(values), strconv.Itoa(len(distinct)), string(encoded)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// NullProportion returns the columns Feature, Null Samples and
// Null Proportion for every column that has at least one null cell.
func NullProportion(f *frame.Frame) (*frame.Frame, error) {
	out := frame.MustNew("Feature", "Null Samples", "Null Proportion")
	if f.Len() == 0 {
		return out, nil
	}

	for _, name := range f.Columns() {
		values, err := f.Column(name)
		if err != nil {
			return nil, err
		}

		nulls := 0
		for _, v := range values {
			if isNull(v) {
				nulls++
			}
		}
		if nulls == 0 {
			continue
		}

		proportion := float64(nulls) / float64(len(values))
		if err := out.Append(name, strconv.Itoa(nulls), strconv.FormatFloat(proportion, 'f', -1, 64)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// InferDtype returns the narrowest type every non-null value parses as.
// A column without non-null values is an object column.
func InferDtype(values []string) string {
	checks := []struct {
		dtype string
		ok    func(string) bool
	}{
		{DtypeInt, func(s string) bool { _, err := strconv.ParseInt(s, 10, 64); return err == nil }},
		{DtypeFloat, func(s string) bool { _, err := strconv.ParseFloat(s, 64); return err == nil }},
		{DtypeBool, func(s string) bool { l := strings.ToLower(s); return l == "true" || l == "false" }},
		{DtypeDatetime, isTime},
	}

	nonNull := make([]string, 0, len(values))
	for _, v := range values {
		if !isNull(v) {
			nonNull = append(nonNull, strings.TrimSpace(v))
		}
	}
	if len(nonNull) == 0 {
		return DtypeObject
	}

	for _, check := range checks {
		all := true
		for _, v := range nonNull {
			if !check.ok(v) {
				all = false
				break
			}
		}
		if all {
			return check.dtype
		}
	}
	return DtypeObject
}

func isTime(s string) bool {
	for _, layout := range timeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func isNull(v string) bool {
	return strings.TrimSpace(v) == ""
}

func uniqueNonNull(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	distinct := make([]string, 0)
	for _, v := range values {
		if isNull(v) {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		distinct = append(distinct, v)
	}
	return distinct
}
