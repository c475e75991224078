// Package ingest moves raw status records into the observations store. It
// feeds storage only; reporting happens elsewhere.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"encwatch/core-go/internal/downtime"
)

// Canonical CSV column names. Header matching is case-insensitive and
// tolerates underscores and extra whitespace.
const (
	ColumnRecordTime = "Record Time"
	ColumnDeviceName = "Device Name"
	ColumnType       = "Type"
)

// MissingColumnError reports a CSV whose header lacks a required column.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("csv is missing required column %q", e.Column)
}

// ReadRecords parses a status-log CSV into raw records. The header row is
// required; data rows may be ragged, with absent cells read as empty fields.
func ReadRecords(r io.Reader) ([]downtime.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &MissingColumnError{Column: ColumnRecordTime}
	}
	if err != nil {
		return nil, err
	}

	timeIdx, deviceIdx, typeIdx := -1, -1, -1
	for i, cell := range header {
		switch canonicalHeader(cell) {
		case "record time":
			timeIdx = i
		case "device name":
			deviceIdx = i
		case "type":
			typeIdx = i
		}
	}
	if timeIdx < 0 {
		return nil, &MissingColumnError{Column: ColumnRecordTime}
	}
	if deviceIdx < 0 {
		return nil, &MissingColumnError{Column: ColumnDeviceName}
	}
	if typeIdx < 0 {
		return nil, &MissingColumnError{Column: ColumnType}
	}

	var records []downtime.Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, downtime.Record{
			Device: fieldAt(row, deviceIdx),
			Time:   fieldAt(row, timeIdx),
			Label:  fieldAt(row, typeIdx),
		})
	}
	return records, nil
}

func canonicalHeader(cell string) string {
	cell = strings.TrimPrefix(cell, "﻿")
	cell = strings.ReplaceAll(strings.ToLower(cell), "_", " ")
	return strings.Join(strings.Fields(cell), " ")
}

func fieldAt(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return row[idx]
}
