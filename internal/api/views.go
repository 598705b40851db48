package api

import (
	"strconv"

	"github.com/animemeta/animemeta/internal/anime"
	"github.com/animemeta/animemeta/internal/mapping"
	"github.com/animemeta/animemeta/internal/urlutil"
)

// Link is one hypermedia reference in a view's _links map.
type Link struct {
	Href   string `json:"href"`
	Method string `json:"method,omitempty"`
}

// Links is the _links collection embedded in every view.
type Links map[string]Link

// joinURL appends path segments to the service base URL.
func joinURL(base string, parts ...string) string {
	u, err := urlutil.Parse(base)
	if err != nil {
		return base
	}
	return u.JoinPath(parts...).String()
}

func animeLink(baseURL, animeID, method string) Link {
	return Link{Href: joinURL(baseURL, "anime", animeID), Method: method}
}

// CollectionView wraps a list endpoint's items.
type CollectionView[T any] struct {
	Items []T   `json:"items"`
	Links Links `json:"_links"`
}

// TitleView is the presentation shape of an anime.Title: the aid is
// carried by the surrounding view, not repeated here.
type TitleView struct {
	Title string `json:"title"`
	Lang  string `json:"lang"`
	Type  string `json:"type"`
}

func newTitleView(t anime.Title) TitleView {
	return TitleView{Title: t.Value, Lang: t.Lang, Type: t.Type}
}

func newTitleViews(titles []anime.Title) []TitleView {
	views := make([]TitleView, len(titles))
	for i, t := range titles {
		views[i] = newTitleView(t)
	}
	return views
}

// ImageView points at a catalog image and links to the cached copy
// served by this service.
type ImageView struct {
	Source string `json:"source"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Links  Links  `json:"_links"`
}

func newImageView(img anime.Image, baseURL string) ImageView {
	view := ImageView{
		Source: img.Source,
		Name:   img.Name,
		Type:   img.Type,
		Links:  Links{},
	}
	switch img.Source {
	case "anidb":
		view.Links["image"] = Link{Href: joinURL(baseURL, "anidb/images", img.Name), Method: "GET"}
	case "tmdb":
		view.Links["image"] = Link{Href: joinURL(baseURL, "tmdb/images", img.Name), Method: "GET"}
	}
	return view
}

func newImageViews(images []anime.Image, baseURL string) []ImageView {
	views := make([]ImageView, len(images))
	for i, img := range images {
		views[i] = newImageView(img, baseURL)
	}
	return views
}

func newImageViewPtr(img *anime.Image, baseURL string) *ImageView {
	if img == nil {
		return nil
	}
	view := newImageView(*img, baseURL)
	return &view
}

// CastRoleView links a character to its voice actor.
type CastRoleView struct {
	Character      string     `json:"character"`
	Actor          string     `json:"actor"`
	ActorImage     *ImageView `json:"actor_image,omitempty"`
	CharacterImage *ImageView `json:"character_image,omitempty"`
}

func newCastRoleViews(cast []anime.CastRole, baseURL string) []CastRoleView {
	views := make([]CastRoleView, len(cast))
	for i, role := range cast {
		views[i] = CastRoleView{
			Character:      role.Character,
			Actor:          role.Actor,
			ActorImage:     newImageViewPtr(role.ActorImage, baseURL),
			CharacterImage: newImageViewPtr(role.CharacterImage, baseURL),
		}
	}
	return views
}

// CreditView is one production credit.
type CreditView struct {
	Name       string `json:"name"`
	Job        string `json:"job"`
	Department string `json:"department"`
	Category   string `json:"category"`
}

func newCreditViews(credits []anime.Credit) []CreditView {
	views := make([]CreditView, len(credits))
	for i, c := range credits {
		views[i] = CreditView{Name: c.Name, Job: c.Job, Department: c.Department, Category: c.Category}
	}
	return views
}

// RatingView is one catalog's aggregate rating.
type RatingView struct {
	Source  string  `json:"source"`
	Average float64 `json:"average"`
	Votes   int     `json:"votes"`
}

func newRatingViews(ratings []anime.Rating) []RatingView {
	views := make([]RatingView, len(ratings))
	for i, r := range ratings {
		views[i] = RatingView{Source: r.Source, Average: r.Average, Votes: r.Votes}
	}
	return views
}

// EpisodeView is the presentation shape of one episode.
type EpisodeView struct {
	Number      int          `json:"number"`
	Titles      []TitleView  `json:"titles"`
	Description string       `json:"description"`
	Length      int          `json:"length"`
	Airdate     anime.Date   `json:"airdate"`
	Images      []ImageView  `json:"images"`
	Ratings     []RatingView `json:"ratings"`
	Links       Links        `json:"_links"`
}

func newEpisodeView(ep anime.Episode, baseURL string) EpisodeView {
	return EpisodeView{
		Number:      ep.Number,
		Titles:      newTitleViews(ep.Titles),
		Description: ep.Summary,
		Length:      ep.Length,
		Airdate:     ep.Airdate,
		Images:      newImageViews(ep.Images, baseURL),
		Ratings:     newRatingViews(ep.Ratings),
		Links:       Links{},
	}
}

// SeasonView is the presentation shape of one season.
type SeasonView struct {
	ID        string            `json:"id"`
	Number    int               `json:"number"`
	UniqueIDs map[string]string `json:"uniqueids"`
	Titles    []TitleView       `json:"titles"`

	Description string        `json:"description"`
	Genres      []string      `json:"genres"`
	Tags        []string      `json:"tags"`
	Airdate     anime.Date    `json:"airdate"`
	Episodes    []EpisodeView `json:"episodes"`
	Images      []ImageView   `json:"images"`
	Ratings     []RatingView  `json:"ratings"`

	Cast      []CastRoleView `json:"cast"`
	Directors []string       `json:"directors"`
	Credits   []CreditView   `json:"credits"`

	Links Links `json:"_links"`
}

func newSeasonView(s anime.Season, baseURL string) SeasonView {
	episodes := make([]EpisodeView, len(s.Episodes))
	for i, ep := range s.Episodes {
		episodes[i] = newEpisodeView(ep, baseURL)
	}
	return SeasonView{
		ID:          s.ID,
		Number:      s.Number,
		UniqueIDs:   s.UniqueIDs,
		Titles:      newTitleViews(s.Titles),
		Description: s.Description,
		Genres:      s.Genres,
		Tags:        s.Tags,
		Airdate:     s.Airdate,
		Episodes:    episodes,
		Images:      newImageViews(s.Images, baseURL),
		Ratings:     newRatingViews(s.Ratings),
		Cast:        newCastRoleViews(s.Cast, baseURL),
		Directors:   s.Directors,
		Credits:     newCreditViews(s.Credits),
		Links:       Links{},
	}
}

// AnimeView is the presentation shape of a full anime document.
type AnimeView struct {
	ID        string            `json:"id"`
	UniqueIDs map[string]string `json:"uniqueids"`
	Titles    []TitleView       `json:"titles"`

	Description string       `json:"description"`
	Genres      []string     `json:"genres"`
	Tags        []string     `json:"tags"`
	Airdate     anime.Date   `json:"airdate"`
	Seasons     []SeasonView `json:"seasons"`
	Images      []ImageView  `json:"images"`
	Ratings     []RatingView `json:"ratings"`

	Cast      []CastRoleView `json:"cast"`
	Directors []string       `json:"directors"`
	Credits   []CreditView   `json:"credits"`

	Links Links `json:"_links"`
}

func newAnimeView(a anime.Anime, baseURL string) AnimeView {
	seasons := make([]SeasonView, len(a.Seasons))
	for i, s := range a.Seasons {
		seasons[i] = newSeasonView(s, baseURL)
	}
	return AnimeView{
		ID:          a.ID,
		UniqueIDs:   a.UniqueIDs,
		Titles:      newTitleViews(a.Titles),
		Description: a.Description,
		Genres:      a.Genres,
		Tags:        a.Tags,
		Airdate:     a.Airdate,
		Seasons:     seasons,
		Images:      newImageViews(a.Images, baseURL),
		Ratings:     newRatingViews(a.Ratings),
		Cast:        newCastRoleViews(a.Cast, baseURL),
		Directors:   a.Directors,
		Credits:     newCreditViews(a.Credits),
		Links:       Links{},
	}
}

// TitleMappingAnime names one side of a match suggestion.
type TitleMappingAnime struct {
	Title TitleView `json:"title"`
	ID    string    `json:"id"`
}

// TitleMappingView is one match suggestion. Confirmed pairs carry a
// forget link, suggestions a remember link.
type TitleMappingView struct {
	AnimeID string            `json:"anime_id"`
	Anidb   TitleMappingAnime `json:"anidb"`
	Tmdb    TitleMappingAnime `json:"tmdb"`
	Links   Links             `json:"_links"`
}

func newTitleMappingView(result mapping.TitleMatchResult, baseURL string) (TitleMappingView, error) {
	anidbID, err := anime.ParseAnidbID(result.Anidb.Aid)
	if err != nil {
		return TitleMappingView{}, err
	}
	tmdbID, err := anime.ParseTmdbSeasonID(result.Tmdb.Aid)
	if err != nil {
		return TitleMappingView{}, err
	}
	mappingID := anime.MappingID{Anidb: anidbID, Tmdb: tmdbID}

	view := TitleMappingView{
		AnimeID: mappingID.String(),
		Anidb:   TitleMappingAnime{Title: newTitleView(result.Anidb), ID: result.Anidb.Aid},
		Tmdb:    TitleMappingAnime{Title: newTitleView(result.Tmdb), ID: result.Tmdb.Aid},
		Links:   Links{},
	}
	view.Links["anime"] = animeLink(baseURL, view.AnimeID, "GET")

	matchURL := joinURL(baseURL, "match", view.AnimeID)
	if result.IsFromStorage {
		view.Links["forget"] = Link{Href: matchURL, Method: "DELETE"}
	} else {
		view.Links["remember"] = Link{Href: matchURL, Method: "PUT"}
	}
	return view, nil
}

// AnimeMappingView is a stored cross-catalog pair.
type AnimeMappingView struct {
	AnimeID   string            `json:"anime_id"`
	UniqueIDs map[string]string `json:"uniqueids"`
	Links     Links             `json:"_links"`
}

func newAnimeMappingView(id anime.MappingID, baseURL string) AnimeMappingView {
	view := AnimeMappingView{
		AnimeID: id.String(),
		UniqueIDs: map[string]string{
			"anidb":       id.Anidb.String(),
			"tmdb":        strconv.Itoa(id.Tmdb.Show),
			"tmdb_season": strconv.Itoa(id.Tmdb.Season),
		},
		Links: Links{},
	}
	view.Links["anime"] = animeLink(baseURL, view.AnimeID, "GET")
	view.Links["forget"] = Link{Href: joinURL(baseURL, "match", view.AnimeID), Method: "DELETE"}
	return view
}
