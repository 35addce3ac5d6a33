package profile_test

import (
	"testing"

	"github.com/datafarmer/datafarmer/internal/frame"
	"github.com/datafarmer/datafarmer/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(t *testing.T) *frame.Frame {
	t.Helper()

	f, err := frame.FromRecords([][]string{
		{"A", "B", "C", "D", "E"},
		{"1", "a", "", "True", "2024-01-01"},
		{"2", "b", "2.2", "False", "2024-01-02"},
		{"3", "", "", "True", ""},
		{"4", "a", "4.4", "False", "2024-01-04"},
	})
	require.NoError(t, err)
	return f
}

func TestFeatures(t *testing.T) {
	t.Parallel()

	out, err := profile.Features(sample(t))
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"Feature", "Dtypes", "Unique Values", "Values"},
		{"A", "int64", "4", `["1","2","3","4"]`},
		{"B", "object", "2", `["a","b"]`},
		{"C", "float64", "2", `["2.2","4.4"]`},
		{"D", "bool", "2", `["True","False"]`},
		{"E", "datetime64", "3", `["2024-01-01","2024-01-02","2024-01-04"]`},
	}, out.Records())
}

func TestNullProportion(t *testing.T) {
	t.Parallel()

	out, err := profile.NullProportion(sample(t))
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"Feature", "Null Samples", "Null Proportion"},
		{"B", "1", "0.25"},
		{"C", "2", "0.5"},
		{"E", "1", "0.25"},
	}, out.Records())

	empty, err := profile.NullProportion(frame.MustNew("x"))
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
}

func TestInferDtype(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{name: "ints", values: []string{"1", "-2", " 3 "}, want: profile.DtypeInt},
		{name: "mixed numbers", values: []string{"1", "2.5"}, want: profile.DtypeFloat},
		{name: "bools", values: []string{"true", "FALSE"}, want: profile.DtypeBool},
		{name: "timestamps", values: []string{"2024-05-01T10:00:00Z", "2024-05-02 11:30:00"}, want: profile.DtypeDatetime},
		{name: "text", values: []string{"1", "x"}, want: profile.DtypeObject},
		{name: "all null", values: []string{"", " "}, want: profile.DtypeObject},
		{name: "no values", values: nil, want: profile.DtypeObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, profile.InferDtype(tt.values))
		})
	}
}
