package record

// Record is implemented by every typed API record.
type Record interface {
	RecordID() int
	RecordName() string
	RecordKind() Kind
}

// NamedRef is a name/url pair the API uses for a character's origin and
// last known location.
type NamedRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Character is a single entry of the /character endpoint.
type Character struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Status   string   `json:"status"`
	Species  string   `json:"species"`
	Type     string   `json:"type"`
	Gender   string   `json:"gender"`
	Origin   NamedRef `json:"origin"`
	Location NamedRef `json:"location"`
	Image    string   `json:"image"`
	Episode  []string `json:"episode"`
	URL      string   `json:"url"`
	Created  string   `json:"created"`
}

func (c Character) RecordID() int      { return c.ID }
func (c Character) RecordName() string { return c.Name }
func (c Character) RecordKind() Kind   { return KindCharacter }

// Location is a single entry of the /location endpoint.
type Location struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Dimension string   `json:"dimension"`
	Residents []string `json:"residents"`
	URL       string   `json:"url"`
	Created   string   `json:"created"`
}

func (l Location) RecordID() int      { return l.ID }
func (l Location) RecordName() string { return l.Name }
func (l Location) RecordKind() Kind   { return KindLocation }

// Episode is a single entry of the /episode endpoint.
type Episode struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	AirDate    string   `json:"air_date"`
	Episode    string   `json:"episode"`
	Characters []string `json:"characters"`
	URL        string   `json:"url"`
	Created    string   `json:"created"`
}

func (e Episode) RecordID() int      { return e.ID }
func (e Episode) RecordName() string { return e.Name }
func (e Episode) RecordKind() Kind   { return KindEpisode }
