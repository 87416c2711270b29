package export

import (
	"fmt"

	"radium-hq/toolgate/pkg/analytics"
)

// Format names an export format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// New returns the exporter for a format.
func New(format Format) (analytics.Exporter, error) {
	switch format {
	case FormatJSON:
		return NewJSONExporter(true), nil
	case FormatCSV:
		return NewCSVExporter(true), nil
	}
	return nil, fmt.Errorf("unknown export format %q (want json or csv)", format)
}
