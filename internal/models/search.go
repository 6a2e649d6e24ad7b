package models

// SearchDocument is one ranked result from the external retrieval service.
type SearchDocument struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}
