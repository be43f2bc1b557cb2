package models

// FormationStatus is the terminal state of one group-formation request.
type FormationStatus string

const (
	FormationFound   FormationStatus = "found"
	FormationCreated FormationStatus = "created"
	FormationError   FormationStatus = "error"
)

// FormationOutcome is the single resolution of a find-or-create request.
type FormationOutcome struct {
	Status  FormationStatus `json:"status"`
	GroupID string          `json:"group_id,omitempty"`
	Group   *GroupInstance  `json:"group,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// DirectorySnapshot is an immutable copy of the directory's cached state.
// Readers never hold references into live state.
type DirectorySnapshot struct {
	Devices     []Device          `json:"devices"`
	Groups      []GroupInstance   `json:"groups"`
	Definitions []GroupDefinition `json:"definitions"`
}
