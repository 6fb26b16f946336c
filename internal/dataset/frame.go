package dataset

import (
	"math"
	"os"
	"strconv"
	"strings"

	"iquitos-ems/internal/fault"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// frame is a string-typed view of a CSV file. Every column is kept as raw
// records so the loaders decide how to parse and count bad cells.
type frame struct {
	path  string
	names []string
	df    dataframe.DataFrame
}

func readFrame(path string, delim rune) (*frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.InputNotFound(path, err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f,
		dataframe.WithDelimiter(delim),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fault.InputSchema(path, "cannot parse csv: %v", df.Err)
	}
	return &frame{path: path, names: df.Names(), df: df}, nil
}

func (f *frame) rows() int { return f.df.Nrow() }

func (f *frame) records(name string) []string {
	return f.df.Col(name).Records()
}

// find returns the first column of priority present in the file. Header
// matching ignores case and surrounding whitespace.
func (f *frame) find(priority []string) (string, bool) {
	for _, want := range priority {
		w := normalize(want)
		for _, got := range f.names {
			if normalize(got) == w {
				return got, true
			}
		}
	}
	return "", false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// parseCell parses a numeric cell. Decimal commas are accepted because the
// mall export is semicolon-delimited with Spanish locale numbers.
func parseCell(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		v, err = strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
		if err != nil {
			return 0, false
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
