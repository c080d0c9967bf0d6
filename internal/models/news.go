package models

// NewsItem is one headline in the news list or the default grid.
type NewsItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Section string `json:"section"`
}
