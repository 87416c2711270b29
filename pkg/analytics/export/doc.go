// Package export writes analytics events as JSON or CSV.
//
// Both exporters support a slice form (Export) and a streaming form
// (ExportStream) that consumes Storage.QueryStream output without holding
// the whole result in memory. JSON output is always an array.
package export
