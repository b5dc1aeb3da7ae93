package csvio

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
)

// DefaultDelimiter matches the semicolon-separated spreadsheets the catalog
// is maintained in.
const DefaultDelimiter = ';'

// unmarshal decodes delimiter-separated rows into out without touching the
// gocsv global reader, so concurrent uploads cannot race on configuration.
func unmarshal(r io.Reader, delim rune, out interface{}) error {
	if delim == 0 {
		delim = DefaultDelimiter
	}
	reader := csv.NewReader(r)
	reader.Comma = delim
	reader.TrimLeadingSpace = true
	if err := gocsv.UnmarshalCSV(reader, out); err != nil {
		return fmt.Errorf("decode csv: %w", err)
	}
	return nil
}

// ReadProfessors parses a professors file.
func ReadProfessors(r io.Reader, delim rune) ([]ProfessorRecord, error) {
	records := []ProfessorRecord{}
	if err := unmarshal(r, delim, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// ReadClassGroups parses a class groups file.
func ReadClassGroups(r io.Reader, delim rune) ([]ClassGroupRecord, error) {
	records := []ClassGroupRecord{}
	if err := unmarshal(r, delim, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// ReadRooms parses a rooms file.
func ReadRooms(r io.Reader, delim rune) ([]RoomRecord, error) {
	records := []RoomRecord{}
	if err := unmarshal(r, delim, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// ReadSections parses a sections file.
func ReadSections(r io.Reader, delim rune) ([]SectionRecord, error) {
	records := []SectionRecord{}
	if err := unmarshal(r, delim, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// ReadAvailability parses an availability file.
func ReadAvailability(r io.Reader, delim rune) ([]AvailabilityRecord, error) {
	records := []AvailabilityRecord{}
	if err := unmarshal(r, delim, &records); err != nil {
		return nil, err
	}
	return records, nil
}
