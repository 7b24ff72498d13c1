package model

// Repo is the slice of a GitHub repository the front end lists.
type Repo struct {
	Name     string `json:"name"`
	FullName string `json:"fullName"`
	Private  bool   `json:"private"`
	URL      string `json:"url"`
}
