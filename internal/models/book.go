package models

// Source tags where a Book record came from
type Source string

const (
	SourceBestseller Source = "bestseller-list"
	SourceThread     Source = "community-thread"
)

// Book is the canonical record every source is normalized into
type Book struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	ImageURL    string `json:"image_url,omitempty"`
	ISBN        string `json:"isbn,omitempty"`
	Source      Source `json:"source"`
	Description string `json:"description,omitempty"`
	ProductURL  string `json:"product_url,omitempty"`
	WeeksOnList int    `json:"weeks_on_list,omitempty"`
}

// Deliverable reports whether the book can be sent as a photo
func (b Book) Deliverable() bool {
	return b.ImageURL != ""
}

// Apply copies the non-empty enrichment fields onto the book
func (b *Book) Apply(e Enrichment) {
	if e.ImageURL != "" {
		b.ImageURL = e.ImageURL
	}
	if e.ISBN != "" {
		b.ISBN = e.ISBN
	}
}

// Enrichment holds fields recovered from a secondary catalog
type Enrichment struct {
	ImageURL string `json:"image_url,omitempty"`
	ISBN     string `json:"isbn,omitempty"`
}

// Empty reports whether the lookup recovered nothing
func (e Enrichment) Empty() bool {
	return e.ImageURL == "" && e.ISBN == ""
}
