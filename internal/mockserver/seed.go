package mockserver

import (
	"github.com/zsprackett/devradar/internal/developer"
	"github.com/zsprackett/devradar/internal/geo"
)

// SeedAround returns a handful of demo developers scattered within a few
// kilometres of center.
func SeedAround(center geo.Coordinates) []developer.Developer {
	at := func(dLat, dLon float64) geo.Point {
		return geo.NewPoint(geo.Coordinates{
			Latitude:  center.Latitude + dLat,
			Longitude: center.Longitude + dLon,
		})
	}
	return []developer.Developer{
		{
			ID: "seed-1", GithubUsername: "diego3g", Name: "Diego Fernandes",
			Bio:       "CTO at Rocketseat",
			Techs:     []string{"ReactJS", "React Native", "Node.js"},
			AvatarURL: "https://avatars.githubusercontent.com/u/2254731",
			Location:  at(0.004, -0.003),
		},
		{
			ID: "seed-2", GithubUsername: "gaearon", Name: "Dan Abramov",
			Bio:       "Working on React",
			Techs:     []string{"ReactJS", "JavaScript"},
			AvatarURL: "https://avatars.githubusercontent.com/u/810438",
			Location:  at(-0.006, 0.002),
		},
		{
			ID: "seed-3", GithubUsername: "rakyll", Name: "Jaana Dogan",
			Bio:       "Go, observability",
			Techs:     []string{"Go", "gRPC"},
			AvatarURL: "https://avatars.githubusercontent.com/u/108380",
			Location:  at(0.01, 0.01),
		},
		{
			ID: "seed-4", GithubUsername: "tj", Name: "TJ Holowaychuk",
			Bio:       "Node.js and Go",
			Techs:     []string{"Node.js", "Go"},
			AvatarURL: "https://avatars.githubusercontent.com/u/25254",
			Location:  at(0.3, 0.3), // outside the default radius
		},
	}
}
