// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocumentIndexTask asks the indexing pipeline to (re)build the chunks of one document.
// Text is used as-is when present; otherwise the text is read from ObjectKey.
type DocumentIndexTask struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Type       string `json:"type"`
	URL        string `json:"url,omitempty"`
	ObjectKey  string `json:"object_key,omitempty"`
	Text       string `json:"text,omitempty"`
}
