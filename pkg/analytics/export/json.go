package export

import (
	"context"
	"encoding/json"
	"io"

	"radium-hq/toolgate/pkg/analytics"
)

// JSONExporter exports events as a JSON array.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export writes events as a JSON array.
func (e *JSONExporter) Export(ctx context.Context, events []*analytics.Event, w io.Writer) error {
	if events == nil {
		events = []*analytics.Event{}
	}

	var data []byte
	var err error
	if e.Pretty {
		data, err = json.MarshalIndent(events, "", "  ")
	} else {
		data, err = json.Marshal(events)
	}
	if err != nil {
		return analytics.NewExportError("json", len(events), err)
	}

	if _, err := w.Write(data); err != nil {
		return analytics.NewExportError("json", len(events), err)
	}
	return nil
}

// ExportStream writes events from a channel as a JSON array.
func (e *JSONExporter) ExportStream(ctx context.Context, eventsCh <-chan *analytics.Event, w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return analytics.NewExportError("json", 0, err)
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				if _, err := io.WriteString(w, "]"); err != nil {
					return analytics.NewExportError("json", count, err)
				}
				return nil
			}

			if count > 0 {
				sep := ","
				if e.Pretty {
					sep = ",\n"
				}
				if _, err := io.WriteString(w, sep); err != nil {
					return analytics.NewExportError("json", count, err)
				}
			}

			var data []byte
			var err error
			if e.Pretty {
				data, err = json.MarshalIndent(event, "  ", "  ")
			} else {
				data, err = json.Marshal(event)
			}
			if err != nil {
				return analytics.NewExportError("json", count, err)
			}
			if _, err := w.Write(data); err != nil {
				return analytics.NewExportError("json", count, err)
			}
			count++
		}
	}
}
