package store

// Source is a news aggregator endpoint. URL is the base URL and ends
// with "/".
type Source struct {
	ID        string  `json:"id"`
	NameOfOrg string  `json:"name_of_org"`
	URL       string  `json:"url"`
	CreatedAt int64   `json:"created_at"`
	Entity    *Entity `json:"entity,omitempty"`
}

// Entity is the identity credited with finding an article. One per source.
type Entity struct {
	ID        string `json:"id"`
	SourceID  string `json:"source_id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
}

// Request statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is one logged attempt against a source.
type Request struct {
	ID               string `json:"id"`
	SourceID         string `json:"source_id"`
	URL              string `json:"url"`
	AndString        string `json:"and_string"`
	OrString         string `json:"or_string"`
	NotString        string `json:"not_string"`
	Signature        string `json:"signature"`
	DateStart        string `json:"date_start"`
	DateEnd          string `json:"date_end"`
	Status           string `json:"status"`
	Error            string `json:"error,omitempty"`
	CountReceived    int    `json:"count_received"`
	CountSaved       int    `json:"count_saved"`
	IsFromAutomation bool   `json:"is_from_automation"`
	CreatedAt        int64  `json:"created_at"`
	UpdatedAt        int64  `json:"updated_at"`
}

// Article is a stored feed article. URL is unique.
type Article struct {
	ID              string `json:"id"`
	URL             string `json:"url"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	PublicationName string `json:"publication_name"`
	PublishedDate   string `json:"published_date"`
	EntityID        string `json:"entity_id"`
	RequestID       string `json:"request_id"`
	CreatedAt       int64  `json:"created_at"`
}

// ArticleContent is the markdown body of an article (1:1).
type ArticleContent struct {
	ID        string `json:"id"`
	ArticleID string `json:"article_id"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

// QuerySet is a recurring keyword triple with its processing cursor.
type QuerySet struct {
	ID                string `json:"id"`
	SourceID          string `json:"source_id"`
	AndString         string `json:"and_string"`
	OrString          string `json:"or_string"`
	NotString         string `json:"not_string"`
	Signature         string `json:"signature"`
	LastProcessedDate string `json:"last_processed_date"`
	Enabled           bool   `json:"enabled"`
	CreatedAt         int64  `json:"created_at"`
	UpdatedAt         int64  `json:"updated_at"`
}
