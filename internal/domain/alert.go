package domain

// AlertColor is the embed color used for every anti-cheat alert
const AlertColor = 0xBB0EBE

// AlertAuthor identifies the player an alert is about
type AlertAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

// AlertField is one name/value row of an alert
type AlertField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Alert is a structured operator-facing notice
type Alert struct {
	Title        string       `json:"title"`
	Color        int          `json:"color"`
	Author       AlertAuthor  `json:"author"`
	ThumbnailURL string       `json:"thumbnail_url,omitempty"`
	Fields       []AlertField `json:"fields"`
	ImageURL     string       `json:"image_url,omitempty"`
}

// AddField appends a field, keeping insertion order.
func (a *Alert) AddField(name, value string) {
	a.Fields = append(a.Fields, AlertField{Name: name, Value: value})
}
