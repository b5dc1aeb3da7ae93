package csvio

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
)

// marshal encodes rows with the given delimiter, again avoiding the gocsv
// global writer hook.
func marshal(w io.Writer, delim rune, in interface{}) error {
	if delim == 0 {
		delim = DefaultDelimiter
	}
	writer := csv.NewWriter(w)
	writer.Comma = delim
	if err := gocsv.MarshalCSV(in, gocsv.NewSafeCSVWriter(writer)); err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}
	return nil
}

// WriteAssignments renders a timetable result file.
func WriteAssignments(w io.Writer, delim rune, records []AssignmentRecord) error {
	return marshal(w, delim, &records)
}

// WriteUnassigned renders the leftover sections file.
func WriteUnassigned(w io.Writer, delim rune, records []UnassignedRecord) error {
	return marshal(w, delim, &records)
}
