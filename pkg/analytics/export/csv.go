package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"radium-hq/toolgate/pkg/analytics"
)

// CSVExporter exports events as CSV. Arguments are encoded as a JSON array
// in a single column.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Header is the CSV column list.
var Header = []string{
	"id", "decision_id", "timestamp",
	"tool_name", "arguments", "args_hash",
	"action", "matched_rule", "reason", "source", "mode", "generation", "hook_failure",
	"user", "session_id",
	"evaluation_time_us",
}

// Export writes events as CSV.
func (e *CSVExporter) Export(ctx context.Context, events []*analytics.Event, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(Header); err != nil {
			return analytics.NewExportError("csv", len(events), err)
		}
	}

	for _, event := range events {
		if err := writer.Write(row(event)); err != nil {
			return analytics.NewExportError("csv", len(events), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return analytics.NewExportError("csv", len(events), err)
	}
	return nil
}

// ExportStream writes events from a channel as CSV, flushing every 100 rows.
func (e *CSVExporter) ExportStream(ctx context.Context, eventsCh <-chan *analytics.Event, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(Header); err != nil {
			return analytics.NewExportError("csv", 0, err)
		}
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return analytics.NewExportError("csv", count, err)
				}
				return nil
			}

			if err := writer.Write(row(event)); err != nil {
				return analytics.NewExportError("csv", count, err)
			}
			count++

			if count%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return analytics.NewExportError("csv", count, err)
				}
			}
		}
	}
}

func row(e *analytics.Event) []string {
	args := e.Arguments
	if args == nil {
		args = []string{}
	}
	argsJSON, _ := json.Marshal(args)

	return []string{
		e.ID,
		e.DecisionID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.ToolName,
		string(argsJSON),
		e.ArgsHash,
		e.Action,
		e.MatchedRule,
		e.Reason,
		e.Source,
		e.Mode,
		strconv.FormatUint(e.Generation, 10),
		e.HookFailure,
		e.User,
		e.SessionID,
		strconv.FormatInt(e.EvaluationTime.Microseconds(), 10),
	}
}
