package models

// PrerequisitePair is one edge of the prerequisite graph. Subjects
// themselves are owned by curriculum tooling; the scheduling core only
// reads their prerequisite edges and the offering details joined onto
// sections.
type PrerequisitePair struct {
	SubjectID        string `db:"subject_id" json:"subject_id"`
	SubjectCode      string `db:"subject_code" json:"subject_code"`
	PrerequisiteID   string `db:"prerequisite_id" json:"prerequisite_id"`
	PrerequisiteCode string `db:"prerequisite_code" json:"prerequisite_code"`
}
