package ga4

// Query identifies one report request: ordered dimension and metric
// names plus an inclusive ISO date range.
type Query struct {
	Dimensions []string `json:"dimensions"`
	Metrics    []string `json:"metrics"`
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
}

// Report is the materialized result of a query. Metric cells that failed
// to parse from their string wire form are nil, not zero.
type Report struct {
	DimensionHeaders []string `json:"dimensionHeaders"`
	MetricHeaders    []string `json:"metricHeaders"`
	Rows             []Row    `json:"rows"`
}

// Row is one report row, dimensions and metrics in header order.
type Row struct {
	Dimensions []string   `json:"dimensions"`
	Metrics    []*float64 `json:"metrics"`
}

// Empty reports whether the result carries no rows.
func (r *Report) Empty() bool {
	return r == nil || len(r.Rows) == 0
}

// DimIndex returns the position of a dimension header, or -1.
func (r *Report) DimIndex(name string) int {
	for i, h := range r.DimensionHeaders {
		if h == name {
			return i
		}
	}
	return -1
}

// MetricIndex returns the position of a metric header, or -1.
func (r *Report) MetricIndex(name string) int {
	for i, h := range r.MetricHeaders {
		if h == name {
			return i
		}
	}
	return -1
}

// Dim returns the named dimension value of a row, or "".
func (r *Report) Dim(row Row, name string) string {
	i := r.DimIndex(name)
	if i < 0 || i >= len(row.Dimensions) {
		return ""
	}
	return row.Dimensions[i]
}

// Metric returns the named metric value of a row, or nil when the
// header is unknown or the cell failed to parse.
func (r *Report) Metric(row Row, name string) *float64 {
	i := r.MetricIndex(name)
	if i < 0 || i >= len(row.Metrics) {
		return nil
	}
	return row.Metrics[i]
}
