package anime

import (
	"fmt"
	"regexp"
	"strconv"
)

// Canonical identifier string forms:
//
//	A<int>          anidb anime
//	T<int>          tmdb show
//	T<int>S<int>    tmdb show + season
//	A<int>-T<int>S<int>  cross-catalog mapping
var (
	anidbIDRe      = regexp.MustCompile(`^[Aa]([0-9]+)$`)
	tmdbIDRe       = regexp.MustCompile(`^[Tt]([0-9]+)(?:[Ss][0-9]+)?$`)
	tmdbSeasonIDRe = regexp.MustCompile(`^T([0-9]+)S([0-9]+)$`)
	mappingIDRe    = regexp.MustCompile(`^A([0-9]+)-T([0-9]+)S([0-9]+)$`)
)

// ID is any of the four identifier shapes. Use a type switch after
// ParseAnimeID to dispatch on the concrete kind.
type ID interface {
	fmt.Stringer
	animeID()
}

// AnidbID identifies an anidb anime.
type AnidbID int

func (id AnidbID) String() string { return fmt.Sprintf("A%d", int(id)) }
func (AnidbID) animeID()          {}

// ParseAnidbID accepts "A<int>" (case-insensitive prefix) or a bare decimal.
func ParseAnidbID(value string) (AnidbID, error) {
	if n, err := strconv.Atoi(value); err == nil && n >= 0 {
		return AnidbID(n), nil
	}
	m := anidbIDRe.FindStringSubmatch(value)
	if m == nil {
		return 0, fmt.Errorf("invalid anidb id %q", value)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid anidb id %q: %w", value, err)
	}
	return AnidbID(n), nil
}

// TmdbID identifies a tmdb show.
type TmdbID int

func (id TmdbID) String() string { return fmt.Sprintf("T%d", int(id)) }
func (TmdbID) animeID()          {}

// ParseTmdbID accepts "T<int>", a bare decimal, or a full season id
// "T<int>S<int>" from which the show part is taken.
func ParseTmdbID(value string) (TmdbID, error) {
	if n, err := strconv.Atoi(value); err == nil && n >= 0 {
		return TmdbID(n), nil
	}
	m := tmdbIDRe.FindStringSubmatch(value)
	if m == nil {
		return 0, fmt.Errorf("invalid tmdb id %q", value)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid tmdb id %q: %w", value, err)
	}
	return TmdbID(n), nil
}

// TmdbSeasonID identifies one season of a tmdb show.
type TmdbSeasonID struct {
	Show   int
	Season int
}

func (id TmdbSeasonID) String() string { return fmt.Sprintf("T%dS%d", id.Show, id.Season) }
func (TmdbSeasonID) animeID()          {}

// ParseTmdbSeasonID parses the strict "T<int>S<int>" form.
func ParseTmdbSeasonID(value string) (TmdbSeasonID, error) {
	m := tmdbSeasonIDRe.FindStringSubmatch(value)
	if m == nil {
		return TmdbSeasonID{}, fmt.Errorf("invalid tmdb season id %q", value)
	}
	show, err := strconv.Atoi(m[1])
	if err != nil {
		return TmdbSeasonID{}, fmt.Errorf("invalid tmdb season id %q: %w", value, err)
	}
	season, err := strconv.Atoi(m[2])
	if err != nil {
		return TmdbSeasonID{}, fmt.Errorf("invalid tmdb season id %q: %w", value, err)
	}
	return TmdbSeasonID{Show: show, Season: season}, nil
}

// MappingID is the composite identifier of a confirmed anidb↔tmdb pair.
type MappingID struct {
	Anidb AnidbID
	Tmdb  TmdbSeasonID
}

func (id MappingID) String() string { return id.Anidb.String() + "-" + id.Tmdb.String() }
func (MappingID) animeID()          {}

// ParseMappingID parses the strict "A<int>-T<int>S<int>" form.
func ParseMappingID(value string) (MappingID, error) {
	m := mappingIDRe.FindStringSubmatch(value)
	if m == nil {
		return MappingID{}, fmt.Errorf("invalid mapping id %q", value)
	}
	anidb, _ := strconv.Atoi(m[1])
	show, _ := strconv.Atoi(m[2])
	season, _ := strconv.Atoi(m[3])
	return MappingID{
		Anidb: AnidbID(anidb),
		Tmdb:  TmdbSeasonID{Show: show, Season: season},
	}, nil
}

// ParseAnimeID dispatches to the concrete identifier type by shape.
func ParseAnimeID(value string) (ID, error) {
	switch {
	case anidbIDRe.MatchString(value):
		return ParseAnidbID(value)
	case tmdbSeasonIDRe.MatchString(value):
		return ParseTmdbSeasonID(value)
	case tmdbIDRe.MatchString(value):
		return ParseTmdbID(value)
	case mappingIDRe.MatchString(value):
		return ParseMappingID(value)
	default:
		return nil, fmt.Errorf("invalid anime id %q", value)
	}
}
