package dto

// ImportSummary reports what a CSV catalog upload created.
type ImportSummary struct {
	Professors   int      `json:"professors"`
	ClassGroups  int      `json:"class_groups"`
	Rooms        int      `json:"rooms"`
	Sections     int      `json:"sections"`
	Availability int      `json:"availability"`
	Warnings     []string `json:"warnings,omitempty"`
}
