// Package export moves a store's contents in and out as snapshots.
//
// A JSON snapshot carries every series with its labels, kind, and full
// point history, and round-trips losslessly: importing it into an empty
// store reproduces the same series IDs and scan order. CSV export is
// one-way, for feeding spreadsheets and ad-hoc analysis.
package export
