package csvio

// ProfessorRecord is one row of a professors upload.
type ProfessorRecord struct {
	Code  string `csv:"code"`
	Name  string `csv:"name"`
	Email string `csv:"email"`
}

// ClassGroupRecord is one row of a class groups upload. Regime and priority
// class are derived from the code and year downstream.
type ClassGroupRecord struct {
	Code string `csv:"code"`
	Year int    `csv:"year"`
}

// RoomRecord is one row of a rooms upload.
type RoomRecord struct {
	Code          string `csv:"code"`
	Type          string `csv:"type"`
	KnowledgeArea string `csv:"knowledge_area"`
}

// SectionRecord is one row of a sections upload. Professors and class groups
// are referenced by code, not id, so spreadsheets stay readable.
type SectionRecord struct {
	Code           string `csv:"code"`
	CourseName     string `csv:"course_name"`
	ProfessorCode  string `csv:"professor_code"`
	ClassGroupCode string `csv:"class_group_code"`
	RoomType       string `csv:"room_type"`
	KnowledgeArea  string `csv:"knowledge_area"`
	Duration       int    `csv:"duration"`
}

// AvailabilityRecord is one row of an availability upload. Day 0 is Monday.
type AvailabilityRecord struct {
	ProfessorCode string `csv:"professor_code"`
	Day           int    `csv:"day"`
	Period        int    `csv:"period"`
	Weight        int    `csv:"weight"`
}

// AssignmentRecord is one row of a timetable result file.
type AssignmentRecord struct {
	SectionCode    string `csv:"section_code"`
	CourseName     string `csv:"course_name"`
	ProfessorCode  string `csv:"professor_code"`
	ClassGroupCode string `csv:"class_group_code"`
	RoomCode       string `csv:"room_code"`
	Day            string `csv:"day"`
	StartPeriod    int    `csv:"start_period"`
	EndPeriod      int    `csv:"end_period"`
	Score          int    `csv:"score"`
}

// UnassignedRecord is one row of the leftover sections file.
type UnassignedRecord struct {
	SectionCode string `csv:"section_code"`
	CourseName  string `csv:"course_name"`
	Reason      string `csv:"reason"`
}
