package anime

// Clone returns a deep copy of the anime.
func (a Anime) Clone() Anime {
	c := a
	c.UniqueIDs = cloneMap(a.UniqueIDs)
	c.Titles = cloneSlice(a.Titles)
	c.Genres = cloneSlice(a.Genres)
	c.Tags = cloneSlice(a.Tags)
	c.Images = cloneSlice(a.Images)
	c.Ratings = cloneSlice(a.Ratings)
	c.Cast = cloneCast(a.Cast)
	c.Directors = cloneSlice(a.Directors)
	c.Credits = cloneSlice(a.Credits)
	c.Seasons = make([]Season, len(a.Seasons))
	for i, s := range a.Seasons {
		c.Seasons[i] = s.Clone()
	}
	return c
}

// Clone returns a deep copy of the season.
func (s Season) Clone() Season {
	c := s
	c.UniqueIDs = cloneMap(s.UniqueIDs)
	c.Titles = cloneSlice(s.Titles)
	c.Genres = cloneSlice(s.Genres)
	c.Tags = cloneSlice(s.Tags)
	c.Images = cloneSlice(s.Images)
	c.Ratings = cloneSlice(s.Ratings)
	c.Cast = cloneCast(s.Cast)
	c.Directors = cloneSlice(s.Directors)
	c.Credits = cloneSlice(s.Credits)
	c.Episodes = make([]Episode, len(s.Episodes))
	for i, e := range s.Episodes {
		c.Episodes[i] = e.Clone()
	}
	return c
}

// Clone returns a deep copy of the episode.
func (e Episode) Clone() Episode {
	c := e
	c.Titles = cloneSlice(e.Titles)
	c.Images = cloneSlice(e.Images)
	c.Ratings = cloneSlice(e.Ratings)
	return c
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneCast(in []CastRole) []CastRole {
	if in == nil {
		return nil
	}
	out := make([]CastRole, len(in))
	for i, r := range in {
		out[i] = r
		if r.CharacterImage != nil {
			img := *r.CharacterImage
			out[i].CharacterImage = &img
		}
		if r.ActorImage != nil {
			img := *r.ActorImage
			out[i].ActorImage = &img
		}
	}
	return out
}

// Combine merges an anidb anime with a tmdb anime confirmed to cover it as
// season tmdbSeason. The anidb record is authoritative for episodes (one
// anidb anime may span multiple tmdb seasons, so episodes are never
// aligned); tmdb contributes genres, extra images and ratings. The result
// carries exactly two seasons: anidb season 0 paired with tmdb season 0,
// and anidb season 1 paired with tmdb season tmdbSeason.
func Combine(anidbAnime, tmdbAnime Anime, tmdbSeason int) (Anime, error) {
	anidbID, err := ParseAnidbID(anidbAnime.ID)
	if err != nil {
		return Anime{}, err
	}
	tmdbID, err := ParseTmdbID(tmdbAnime.ID)
	if err != nil {
		return Anime{}, err
	}

	merged := anidbAnime.Clone()
	merged.ID = MappingID{
		Anidb: anidbID,
		Tmdb:  TmdbSeasonID{Show: int(tmdbID), Season: tmdbSeason},
	}.String()

	if merged.UniqueIDs == nil {
		merged.UniqueIDs = make(map[string]string)
	}
	for k, v := range tmdbAnime.UniqueIDs {
		merged.UniqueIDs[k] = v
	}

	merged.Images = append(merged.Images, cloneSlice(tmdbAnime.Images)...)
	merged.Ratings = append(merged.Ratings, cloneSlice(tmdbAnime.Ratings)...)

	// anidb has tags but no genres
	merged.Genres = cloneSlice(tmdbAnime.Genres)

	seasonMap := [][2]int{{0, 0}, {1, tmdbSeason}}
	seasons := make([]Season, 0, len(seasonMap))
	for _, pair := range seasonMap {
		as := merged.FindSeason(pair[0])
		ts := tmdbAnime.FindSeason(pair[1])
		if as == nil || ts == nil {
			continue
		}
		s := as.Clone()
		s.Images = append(s.Images, cloneSlice(ts.Images)...)
		s.Ratings = append(s.Ratings, cloneSlice(ts.Ratings)...)
		seasons = append(seasons, s)
	}
	merged.Seasons = seasons
	merged.SortSeasons()

	return merged, nil
}
