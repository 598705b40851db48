// Package anime holds the unified data model shared by the anidb and tmdb
// catalogs, the identifier codec, and the cross-catalog merger.
package anime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrNotFound reports that a catalog has no record for the requested id.
var ErrNotFound = errors.New("anime not found")

// Repo fetches one catalog's anime records by the catalog's own id (a
// decimal string, without the A/T prefix).
type Repo interface {
	Get(ctx context.Context, aid string) (Entry, error)
}

// Image categories across catalogs.
const (
	ImagePoster   = "poster"
	ImageBackdrop = "backdrop"
	ImageBanner   = "banner"
	ImageThumb    = "thumb"
	ImageUnknown  = "unknown"
)

// Title type values. Catalogs may carry more; these are the ones the
// matcher and repositories care about.
const (
	TitleMain     = "main"
	TitleOfficial = "official"
	TitleSynonym  = "synonym"
	TitleShort    = "short"
	TitleExtra    = "extra"
)

// Date is a calendar day without a time component, serialized as
// YYYY-MM-DD. The zero value means "unknown" and marshals to null.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string. Empty input yields the zero Date.
func ParseDate(value string) (Date, error) {
	if value == "" {
		return Date{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Title is a named title of an anime. Empty fields in a query mean
// "no restriction on that field".
type Title struct {
	Value string `json:"value"`
	Aid   string `json:"aid"`
	Lang  string `json:"lang"`
	Type  string `json:"type"`
}

// TitleEntry is a stored Title plus the time it was recorded.
type TitleEntry struct {
	Title `json:"title"`
	Age   time.Time `json:"age,omitempty"`
}

// Image references a picture by its name within the source catalog.
type Image struct {
	Source string `json:"source"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

// CastRole links a character to its voice actor.
type CastRole struct {
	Character      string `json:"character"`
	Actor          string `json:"actor"`
	CharacterImage *Image `json:"character_image,omitempty"`
	ActorImage     *Image `json:"actor_image,omitempty"`
}

// Credit is a production credit.
type Credit struct {
	Name       string `json:"name"`
	Job        string `json:"job"`
	Department string `json:"department"`
	Category   string `json:"category"`
}

// Rating is an aggregate user rating from one catalog.
type Rating struct {
	Source  string  `json:"source"`
	Average float64 `json:"average"`
	Votes   int     `json:"votes"`
}

// Episode is one episode within a season.
type Episode struct {
	Number  int      `json:"number"`
	Length  int      `json:"length"`
	Airdate Date     `json:"airdate"`
	Titles  []Title  `json:"titles"`
	Summary string   `json:"summary"`
	Images  []Image  `json:"images"`
	Ratings []Rating `json:"ratings,omitempty"`
}

// Season groups episodes. Episodes are kept sorted ascending by number.
type Season struct {
	ID        string            `json:"id"`
	Number    int               `json:"number"`
	UniqueIDs map[string]string `json:"uniqueids"`
	Titles    []Title           `json:"titles"`

	Description string    `json:"description"`
	Genres      []string  `json:"genres"`
	Tags        []string  `json:"tags"`
	Airdate     Date      `json:"airdate"`
	Episodes    []Episode `json:"episodes"`
	Images      []Image   `json:"images"`
	Ratings     []Rating  `json:"ratings"`

	Cast      []CastRole `json:"cast"`
	Directors []string   `json:"directors"`
	Credits   []Credit   `json:"credits"`
}

// SortEpisodes restores the ascending episode order after construction.
func (s *Season) SortEpisodes() {
	sort.SliceStable(s.Episodes, func(i, j int) bool {
		return s.Episodes[i].Number < s.Episodes[j].Number
	})
}

// FindEpisode returns the episode with the given number, or nil.
func (s *Season) FindEpisode(number int) *Episode {
	for i := range s.Episodes {
		if s.Episodes[i].Number == number {
			return &s.Episodes[i]
		}
	}
	return nil
}

// Anime is the top-level record: the same shape as a Season with seasons
// replacing episodes. UniqueIDs always contains at least the source
// catalog's own identifier. Seasons are kept sorted ascending by number.
type Anime struct {
	ID        string            `json:"id"`
	UniqueIDs map[string]string `json:"uniqueids"`
	Titles    []Title           `json:"titles"`

	Description string   `json:"description"`
	Genres      []string `json:"genres"`
	Tags        []string `json:"tags"`
	Airdate     Date     `json:"airdate"`
	Seasons     []Season `json:"seasons"`
	Images      []Image  `json:"images"`
	Ratings     []Rating `json:"ratings"`

	Cast      []CastRole `json:"cast"`
	Directors []string   `json:"directors"`
	Credits   []Credit   `json:"credits"`
}

// SortSeasons restores the ascending season order after construction.
func (a *Anime) SortSeasons() {
	sort.SliceStable(a.Seasons, func(i, j int) bool {
		return a.Seasons[i].Number < a.Seasons[j].Number
	})
}

// FindSeason returns the season with the given number, or nil.
func (a *Anime) FindSeason(number int) *Season {
	for i := range a.Seasons {
		if a.Seasons[i].Number == number {
			return &a.Seasons[i]
		}
	}
	return nil
}

// Entry is a retrieved Anime plus the age of the underlying object.
type Entry struct {
	Anime Anime     `json:"anime"`
	Age   time.Time `json:"age"`
}
