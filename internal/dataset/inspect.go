package dataset

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"dashagent/internal/logging"

	"golang.org/x/sync/errgroup"
)

// Inspection defaults.
const (
	DefaultRowLimit = 100000
	DefaultTop      = 20
	MaxSamples      = 10
)

// Quantiles reported for numeric columns.
var Quantiles = []float64{0.01, 0.05, 0.25, 0.5, 0.75, 0.95, 0.99}

// Options tunes Inspect. Zero values select the defaults.
type Options struct {
	RowLimit   int
	SampleMode SampleMode
	Top        int
}

func (o Options) withDefaults() Options {
	if o.RowLimit <= 0 {
		o.RowLimit = DefaultRowLimit
	}
	if o.SampleMode == "" {
		o.SampleMode = SampleHead
	}
	if o.Top <= 0 {
		o.Top = DefaultTop
	}
	return o
}

// ValueCount is one entry of a frequency table.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Quantile is one point of the numeric distribution.
type Quantile struct {
	Q     float64 `json:"q"`
	Value float64 `json:"value"`
}

// NumericSummary describes a numeric column. Std is nil with fewer than two values.
type NumericSummary struct {
	Min       float64    `json:"min"`
	Max       float64    `json:"max"`
	Mean      float64    `json:"mean"`
	Std       *float64   `json:"std"`
	Quantiles []Quantile `json:"quantiles"`
}

// Report is the result of inspecting one column.
type Report struct {
	Column      string          `json:"column"`
	Source      string          `json:"source"`
	DType       string          `json:"dtype"`
	RowsTotal   int             `json:"rows_total"`
	RowsSampled int             `json:"rows_sampled"`
	SampleMode  SampleMode      `json:"sample_mode"`
	Missing     int             `json:"missing"`
	MissingPct  float64         `json:"missing_pct"`
	Unique      int             `json:"unique"`
	ValueCounts []ValueCount    `json:"value_counts"`
	Numeric     *NumericSummary `json:"numeric,omitempty"`
	Samples     []string        `json:"samples"`
}

// Counts returns the value counts as a map.
func (r *Report) Counts() map[string]int {
	out := make(map[string]int, len(r.ValueCounts))
	for _, vc := range r.ValueCounts {
		out[vc.Value] = vc.Count
	}
	return out
}

// Inspect reads one column from src and summarizes it. It never writes.
func Inspect(ctx context.Context, src Source, column string, opts Options) (*Report, error) {
	opts = opts.withDefaults()
	timer := logging.StartTimer(logging.CategoryDataset, "inspect "+column)
	defer timer.Stop()

	data, err := src.Column(ctx, column, opts.RowLimit, opts.SampleMode)
	if err != nil {
		return nil, err
	}
	return summarize(data, src.Describe(), opts), nil
}

// InspectMany inspects several columns concurrently. Reports are returned in
// the order of columns; the first error cancels the rest.
func InspectMany(ctx context.Context, src Source, columns []string, opts Options) ([]*Report, error) {
	reports := make([]*Report, len(columns))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, col := range columns {
		g.Go(func() error {
			r, err := Inspect(ctx, src, col, opts)
			if err != nil {
				return fmt.Errorf("inspect %s: %w", col, err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func summarize(data *ColumnData, source string, opts Options) *Report {
	r := &Report{
		Column:      data.Name,
		Source:      source,
		RowsTotal:   data.RowsTotal,
		RowsSampled: len(data.Cells),
		SampleMode:  opts.SampleMode,
		ValueCounts: []ValueCount{},
		Samples:     []string{},
	}

	values := make([]string, 0, len(data.Cells))
	for _, c := range data.Cells {
		if c.Missing {
			r.Missing++
			continue
		}
		values = append(values, c.Value)
	}
	if r.RowsSampled > 0 {
		r.MissingPct = round2(100 * float64(r.Missing) / float64(r.RowsSampled))
	}

	r.DType = inferType(values)
	canonical, numbers := canonicalize(r.DType, values)

	counts := make(map[string]int)
	for _, v := range canonical {
		counts[v]++
	}
	r.Unique = len(counts)
	r.ValueCounts = topCounts(counts, r.DType, opts.Top)

	if numbers != nil {
		r.Numeric = describeNumbers(numbers)
	}

	for i := 0; i < len(canonical) && i < MaxSamples; i++ {
		r.Samples = append(r.Samples, canonical[i])
	}
	return r
}

// inferType picks the narrowest type every non-missing value parses as.
// A column with no values reports float64, matching how an all-null column
// loads in the dashboard's data library.
func inferType(values []string) string {
	if len(values) == 0 {
		return "float64"
	}
	isInt, isFloat, isBool := true, true, true
	for _, v := range values {
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			switch strings.ToLower(v) {
			case "true", "false":
			default:
				isBool = false
			}
		}
		if !isInt && !isFloat && !isBool {
			return "string"
		}
	}
	switch {
	case isInt:
		return "int64"
	case isFloat:
		return "float64"
	case isBool:
		return "bool"
	}
	return "string"
}

// canonicalize renders values in one spelling per type so "1.0" and "1"
// count together in a float column. Numeric types also return parsed values.
func canonicalize(dtype string, values []string) ([]string, []float64) {
	out := make([]string, len(values))
	switch dtype {
	case "int64":
		nums := make([]float64, len(values))
		for i, v := range values {
			n, _ := strconv.ParseInt(v, 10, 64)
			out[i] = strconv.FormatInt(n, 10)
			nums[i] = float64(n)
		}
		return out, nums
	case "float64":
		nums := make([]float64, 0, len(values))
		for i, v := range values {
			f, _ := strconv.ParseFloat(v, 64)
			out[i] = strconv.FormatFloat(f, 'g', -1, 64)
			if !math.IsNaN(f) && !math.IsInf(f, 0) {
				nums = append(nums, f)
			}
		}
		if len(nums) == 0 {
			return out, nil
		}
		return out, nums
	case "bool":
		for i, v := range values {
			out[i] = strings.ToLower(v)
		}
	default:
		copy(out, values)
	}
	return out, nil
}

// topCounts orders by count descending, then by value ascending (numerically
// for numeric columns), and keeps the first n.
func topCounts(counts map[string]int, dtype string, n int) []ValueCount {
	out := make([]ValueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, ValueCount{Value: v, Count: c})
	}
	numeric := dtype == "int64" || dtype == "float64"
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if numeric {
			a, _ := strconv.ParseFloat(out[i].Value, 64)
			b, _ := strconv.ParseFloat(out[j].Value, 64)
			if a != b {
				return a < b
			}
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func describeNumbers(nums []float64) *NumericSummary {
	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)

	var sum float64
	for _, x := range sorted {
		sum += x
	}
	n := float64(len(sorted))
	mean := sum / n

	s := &NumericSummary{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: mean,
	}
	if len(sorted) > 1 {
		var ss float64
		for _, x := range sorted {
			d := x - mean
			ss += d * d
		}
		std := math.Sqrt(ss / (n - 1))
		s.Std = &std
	}
	for _, q := range Quantiles {
		s.Quantiles = append(s.Quantiles, Quantile{Q: q, Value: quantile(sorted, q)})
	}
	return s
}

// quantile uses linear interpolation between closest ranks.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
