package tmdb

import (
	"testing"

	"github.com/animemeta/animemeta/internal/anime"
)

const showFixture = `{
  "id": 1234,
  "name": "Test Show",
  "overview": "A show about tests.",
  "vote_average": 8.2,
  "vote_count": 100,
  "genres": [{"id": 16, "name": "Animation"}, {"id": 10765, "name": "Sci-Fi"}],
  "images": {
    "posters": [{"file_path": "/poster.jpg"}],
    "backdrops": [{"file_path": "/backdrop.jpg"}]
  },
  "alternative_titles": {"results": []},
  "seasons": [
    {
      "season_number": 1,
      "name": "Season 1",
      "overview": "First run.",
      "air_date": "2020-01-05",
      "images": {"posters": [{"file_path": "/s1.jpg"}]},
      "credits": {
        "cast": [
          {"name": "Voice Actor", "profile_path": "/actor.jpg", "roles": [{"character": "Hero"}]},
          {"name": "No Character", "roles": []}
        ],
        "crew": [
          {"name": "Crew Person", "department": "Directing", "known_for_department": "Directing",
           "jobs": [{"job": "Director"}, {"job": "Storyboard"}]},
          {"name": "No Department", "jobs": [{"job": "Grip"}]}
        ]
      },
      "episodes": [
        {
          "episode_number": 2,
          "name": "Second",
          "runtime": 24,
          "air_date": "2020-01-12",
          "images": {}
        },
        {
          "episode_number": 1,
          "name": "First",
          "runtime": 24,
          "air_date": "2020-01-05",
          "vote_average": 7.5,
          "vote_count": 12,
          "images": {"stills": [{"file_path": "/still1.jpg"}]}
        }
      ]
    },
    {
      "season_number": 2,
      "name": "Season 2",
      "images": {},
      "episodes": []
    }
  ]
}`

func TestParseShow(t *testing.T) {
	got, err := ParseShow([]byte(showFixture), "en")
	if err != nil {
		t.Fatalf("ParseShow error = %v", err)
	}

	if got.ID != "T1234" {
		t.Errorf("ID = %q, want T1234", got.ID)
	}
	if got.UniqueIDs["tmdb"] != "1234" {
		t.Errorf("UniqueIDs = %v", got.UniqueIDs)
	}
	if len(got.Titles) != 1 || got.Titles[0].Value != "Test Show" || got.Titles[0].Lang != "en" {
		t.Errorf("Titles = %+v", got.Titles)
	}
	if len(got.Genres) != 2 || got.Genres[0] != "Animation" {
		t.Errorf("Genres = %v", got.Genres)
	}

	if len(got.Seasons) != 2 {
		t.Fatalf("seasons = %d, want 2", len(got.Seasons))
	}
	s1 := got.Seasons[0]
	if s1.ID != "T1234S1" || s1.UniqueIDs["tmdb_season"] != "1" {
		t.Errorf("season 1 = %q %v", s1.ID, s1.UniqueIDs)
	}
	if s1.Titles[0].Aid != "T1234S1" {
		t.Errorf("season title aid = %q", s1.Titles[0].Aid)
	}

	// the show-level backdrop is copied to every season
	for _, season := range got.Seasons {
		found := false
		for _, img := range season.Images {
			if img.Name == "backdrop.jpg" && img.Type == anime.ImageBackdrop {
				found = true
			}
		}
		if !found {
			t.Errorf("season %d is missing the show backdrop: %+v", season.Number, season.Images)
		}
	}

	// genres are pushed down to seasons
	if len(s1.Genres) != 2 {
		t.Errorf("season genres = %v", s1.Genres)
	}
}

func TestParseShow_Season1Hoisting(t *testing.T) {
	got, err := ParseShow([]byte(showFixture), "en")
	if err != nil {
		t.Fatalf("ParseShow error = %v", err)
	}

	// season 1's cast, credits and airdate fill the show level
	if len(got.Cast) != 1 || got.Cast[0].Character != "Hero" || got.Cast[0].Actor != "Voice Actor" {
		t.Errorf("Cast = %+v", got.Cast)
	}
	if got.Cast[0].ActorImage == nil || got.Cast[0].ActorImage.Name != "actor.jpg" {
		t.Errorf("ActorImage = %+v", got.Cast[0].ActorImage)
	}
	if got.Airdate.String() != "2020-01-05" {
		t.Errorf("Airdate = %q", got.Airdate)
	}

	// one credit per job, category from known_for_department lower-cased
	if len(got.Credits) != 2 {
		t.Fatalf("Credits = %+v, want 2 (one per job)", got.Credits)
	}
	for _, credit := range got.Credits {
		if credit.Name != "Crew Person" || credit.Department != "Directing" || credit.Category != "directing" {
			t.Errorf("credit = %+v", credit)
		}
	}
}

func TestParseShow_Episodes(t *testing.T) {
	got, err := ParseShow([]byte(showFixture), "en")
	if err != nil {
		t.Fatalf("ParseShow error = %v", err)
	}

	eps := got.Seasons[0].Episodes
	if len(eps) != 2 {
		t.Fatalf("episodes = %d, want 2", len(eps))
	}
	// sorted ascending despite document order
	if eps[0].Number != 1 || eps[1].Number != 2 {
		t.Errorf("episode order = %d,%d", eps[0].Number, eps[1].Number)
	}
	if eps[0].Titles[0].Value != "First" || eps[0].Titles[0].Type != anime.TitleMain {
		t.Errorf("episode title = %+v", eps[0].Titles)
	}
	// stills become thumbs
	if len(eps[0].Images) != 1 || eps[0].Images[0].Type != anime.ImageThumb || eps[0].Images[0].Name != "still1.jpg" {
		t.Errorf("episode images = %+v", eps[0].Images)
	}
	if len(eps[0].Ratings) != 1 || eps[0].Ratings[0].Votes != 12 {
		t.Errorf("episode ratings = %+v", eps[0].Ratings)
	}
	// vote_average without vote_count yields no rating
	if len(eps[1].Ratings) != 0 {
		t.Errorf("episode 2 ratings = %+v, want none", eps[1].Ratings)
	}
}

func TestParseShow_Invalid(t *testing.T) {
	if _, err := ParseShow([]byte("not json"), "en"); err == nil {
		t.Error("expected error for non-JSON input")
	}
	if _, err := ParseShow([]byte(`{"name": "no id"}`), "en"); err == nil {
		t.Error("expected error for a document without a show id")
	}
}
