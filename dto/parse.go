package dto

// InlineMedia is a base64-encoded audio or image payload attached to a parse
// request; the model transcribes or reads it alongside the text.
type InlineMedia struct {
	MIMEType string `json:"mime_type" binding:"required"`
	Data     string `json:"data" binding:"required,base64"`
}

// ParsedTask is the schema-constrained object the model is asked to return
// for a single natural-language task. DueDate is an ISO-8601 UTC string or
// empty when no date was given; tags are lowercase without a leading '#'.
type ParsedTask struct {
	Content  string   `json:"content"`
	DueDate  string   `json:"dueDate"`
	Tags     []string `json:"tags"`
	IsUrgent bool     `json:"isUrgent"`
}
