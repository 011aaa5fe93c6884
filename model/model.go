package model

// File is one entry of a project's file set. Identity is by Path.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// EditOperation is a search/replace instruction extracted from one
// SEARCH...DIVIDER...REPLACE block.
type EditOperation struct {
	Path        string
	SearchText  string
	ReplaceText string
}

// ParsedResponse is the result of one parse pass over a turn buffer.
type ParsedResponse struct {
	// MessageContent is the buffer with every recognized block removed, trimmed.
	MessageContent string `json:"message"`
	// Files holds every file created or modified by this pass.
	Files        []File `json:"files"`
	ProjectTitle string `json:"project_title"`
}

// StreamError is the payload carried after the __ERROR__: marker.
type StreamError struct {
	MessageError   string `json:"messageError"`
	IsError        bool   `json:"isError"`
	ShowProMessage bool   `json:"showProMessage,omitempty"`
}

func (e *StreamError) Error() string {
	return e.MessageError
}

// Summary holds the results of an operation for display.
type Summary struct {
	TurnID       string   `json:"turn_id,omitempty"`
	Created      []string `json:"created"`
	Modified     []string `json:"modified"`
	Failed       []string `json:"failed"`
	Message      string   `json:"message"`
	ProjectTitle string   `json:"project_title,omitempty"`
	Model        string   `json:"model,omitempty"`
	Tokens       int      `json:"tokens,omitempty"`
	Aborted      bool     `json:"aborted,omitempty"`
}
