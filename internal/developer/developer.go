package developer

import (
	"encoding/json"
	"strings"

	"github.com/zsprackett/devradar/internal/geo"
)

// Developer is a profile returned by the search endpoint or pushed over the
// live channel. Values are never modified after decoding.
type Developer struct {
	ID             string    `json:"id"`
	GithubUsername string    `json:"githubUsername,omitempty"`
	Name           string    `json:"name"`
	Bio            string    `json:"bio"`
	Techs          []string  `json:"techs"`
	AvatarURL      string    `json:"avatarUrl"`
	Location       geo.Point `json:"location"`
}

// wireDeveloper accepts the field spellings used by the known backends.
type wireDeveloper struct {
	ID                string    `json:"id"`
	MongoID           string    `json:"_id"`
	GithubUsername    string    `json:"githubUsername"`
	GithubUsernameAlt string    `json:"github_username"`
	Name              string    `json:"name"`
	Bio               string    `json:"bio"`
	Techs             []string  `json:"techs"`
	AvatarURL         string    `json:"avatarUrl"`
	AvatarURLAlt      string    `json:"avatar_url"`
	Location          geo.Point `json:"location"`
}

func (d *Developer) UnmarshalJSON(data []byte) error {
	var w wireDeveloper
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*d = Developer{
		ID:             firstNonEmpty(w.ID, w.MongoID),
		GithubUsername: firstNonEmpty(w.GithubUsername, w.GithubUsernameAlt),
		Name:           w.Name,
		Bio:            w.Bio,
		Techs:          w.Techs,
		AvatarURL:      firstNonEmpty(w.AvatarURL, w.AvatarURLAlt),
		Location:       w.Location,
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Coordinates returns the developer position. ok is false when the record
// carries no usable location.
func (d Developer) Coordinates() (c geo.Coordinates, ok bool) {
	c, err := d.Location.Coords()
	return c, err == nil
}

// DisplayName falls back to the GitHub login when no name is set.
func (d Developer) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.GithubUsername
}

func (d Developer) TechsLabel() string {
	return strings.Join(d.Techs, ", ")
}

// ProfileURL is the GitHub profile page for the developer, or "" if the
// login is unknown.
func (d Developer) ProfileURL() string {
	if d.GithubUsername == "" {
		return ""
	}
	return "https://github.com/" + d.GithubUsername
}

// ParseTechs splits a comma separated filter into trimmed, non-empty tags.
func ParseTechs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// MatchesAny reports whether the developer lists at least one of techs,
// compared case-insensitively.
func (d Developer) MatchesAny(techs []string) bool {
	for _, want := range techs {
		for _, have := range d.Techs {
			if strings.EqualFold(strings.TrimSpace(have), want) {
				return true
			}
		}
	}
	return false
}
