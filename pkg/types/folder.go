package types

// Folder represents a mail folder as reported by a backend.
type Folder struct {
	// Delim is the folder hierarchy delimiter.
	Delim string `json:"delim"`
	// Name is the folder name. Two folders on different backends are
	// the same folder when their names are equal.
	Name string `json:"name"`
	// Desc is an optional human-readable description.
	Desc string `json:"desc,omitempty"`
}

func (f Folder) String() string {
	return f.Name
}
