package models

// CharacterStatus is the life status reported by the remote API.
type CharacterStatus string

const (
	CharacterAlive   CharacterStatus = "Alive"
	CharacterDead    CharacterStatus = "Dead"
	CharacterUnknown CharacterStatus = "unknown"
)

// Gender is the gender reported by the remote API.
type Gender string

const (
	GenderFemale     Gender = "Female"
	GenderMale       Gender = "Male"
	GenderGenderless Gender = "Genderless"
	GenderUnknown    Gender = "unknown"
)

// Location is an origin or last-known location reference of a character.
// Type and Dimension are only populated by detail lookups.
type Location struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Type      string `json:"type,omitempty" yaml:"type,omitempty"`
	Dimension string `json:"dimension,omitempty" yaml:"dimension,omitempty"`
}

// Episode is an episode a character appears in.
type Episode struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	AirDate string `json:"air_date" yaml:"air_date"`
	Episode string `json:"episode" yaml:"episode"`
}

// Character is a remotely sourced record. The core never mutates it and only
// references it by ID.
type Character struct {
	ID       string          `json:"id" yaml:"id"`
	Name     string          `json:"name" yaml:"name"`
	Status   CharacterStatus `json:"status" yaml:"status"`
	Species  string          `json:"species" yaml:"species"`
	Type     string          `json:"type" yaml:"type"`
	Gender   Gender          `json:"gender" yaml:"gender"`
	Origin   Location        `json:"origin" yaml:"origin"`
	Location Location        `json:"location" yaml:"location"`
	Image    string          `json:"image" yaml:"image"`
	Episode  []Episode       `json:"episode,omitempty" yaml:"episode,omitempty"`
	Created  string          `json:"created,omitempty" yaml:"created,omitempty"`
}

// PageInfo is the pagination block returned with every characters page.
// Next and Prev are zero when there is no such page.
type PageInfo struct {
	Count int `json:"count" yaml:"count"`
	Pages int `json:"pages" yaml:"pages"`
	Next  int `json:"next,omitempty" yaml:"next,omitempty"`
	Prev  int `json:"prev,omitempty" yaml:"prev,omitempty"`
}

// HasNext reports whether the server advertised a further page.
func (p PageInfo) HasNext() bool {
	return p.Next > 0
}

// CharactersPage is one page of query results.
type CharactersPage struct {
	Info    PageInfo    `json:"info" yaml:"info"`
	Results []Character `json:"results" yaml:"results"`
}
