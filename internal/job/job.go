package job

import (
	"path/filepath"
)

const (
	statepointFile = "statepoint.json"
	documentFile   = "document.json"
)

// Job is one parameter combination with its private workspace.
type Job struct {
	ID         string
	Statepoint Statepoint
	Workspace  string
}

// Path resolves rel inside the job workspace.
func (j *Job) Path(rel string) string {
	return filepath.Join(j.Workspace, rel)
}

// ShortID is the abbreviated id used in logs and tables.
func (j *Job) ShortID() string {
	if len(j.ID) <= 8 {
		return j.ID
	}
	return j.ID[:8]
}

// Document returns a handle on the job's State Document.
func (j *Job) Document() *Document {
	return newDocument(j.Path(documentFile))
}
