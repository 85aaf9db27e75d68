package spotify

// Artist is the catalog identity resolved from a band name.
type Artist struct {
	ID     string
	Name   string
	URI    string
	URL    string
	Genres []string
}
