// Package tmdb integrates The Movie Database API: composed show documents,
// the image CDN behind /configuration, and title search.
package tmdb

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/animemeta/animemeta/internal/anime"
)

// jsonObj is a decoded JSON object.
type jsonObj = map[string]any

func jsonStr(obj jsonObj, key string) string {
	value, ok := obj[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func jsonInt(obj jsonObj, key string) (int, bool) {
	value, ok := obj[key]
	if !ok || value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

func jsonList(obj jsonObj, key string) []any {
	list, _ := obj[key].([]any)
	return list
}

func jsonChild(obj jsonObj, key string) jsonObj {
	child, _ := obj[key].(jsonObj)
	return child
}

// eachNumbered iterates the objects of a collection that carry the given
// numbering key, yielding the item and its number.
func eachNumbered(obj jsonObj, collectionKey, itemKey string, fn func(item jsonObj, num int) error) error {
	for _, raw := range jsonList(obj, collectionKey) {
		item, ok := raw.(jsonObj)
		if !ok {
			continue
		}
		num, ok := jsonInt(item, itemKey)
		if !ok {
			continue
		}
		if err := fn(item, num); err != nil {
			return err
		}
	}
	return nil
}

func parseImage(obj jsonObj, imgType string) (anime.Image, bool) {
	name := strings.Trim(jsonStr(obj, "file_path"), "/")
	if name == "" {
		return anime.Image{}, false
	}
	return anime.Image{Source: "tmdb", Name: name, Type: imgType}, true
}

func parseImages(images jsonObj) []anime.Image {
	var out []anime.Image
	groups := []struct {
		key     string
		imgType string
	}{
		{"posters", anime.ImagePoster},
		{"backdrops", anime.ImageBackdrop},
		{"stills", anime.ImageThumb},
	}
	for _, group := range groups {
		for _, raw := range jsonList(images, group.key) {
			obj, ok := raw.(jsonObj)
			if !ok {
				continue
			}
			if img, ok := parseImage(obj, group.imgType); ok {
				out = append(out, img)
			}
		}
	}
	return out
}

// parseVote reads vote_average/vote_count; both must be present.
func parseVote(obj jsonObj) *anime.Rating {
	avgRaw, ok := obj["vote_average"]
	if !ok {
		return nil
	}
	avg, ok := avgRaw.(float64)
	if !ok {
		return nil
	}
	votes, ok := jsonInt(obj, "vote_count")
	if !ok {
		return nil
	}
	return &anime.Rating{Source: "tmdb", Average: avg, Votes: votes}
}

// parseCast reads aggregate-credit cast entries: the first role names the
// character, profile_path becomes the actor thumbnail.
func parseCast(list []any) []anime.CastRole {
	var roles []anime.CastRole
	for _, raw := range list {
		obj, ok := raw.(jsonObj)
		if !ok {
			continue
		}

		var character string
		if roleList := jsonList(obj, "roles"); len(roleList) > 0 {
			if first, ok := roleList[0].(jsonObj); ok {
				character = jsonStr(first, "character")
			}
		}
		actor := jsonStr(obj, "name")
		if character == "" || actor == "" {
			continue
		}

		role := anime.CastRole{Character: character, Actor: actor}
		if img := strings.Trim(jsonStr(obj, "profile_path"), "/"); img != "" {
			role.ActorImage = &anime.Image{Source: "tmdb", Name: img, Type: anime.ImageThumb}
		}
		roles = append(roles, role)
	}
	return roles
}

// parseCredits expands aggregate-credit crew entries into one Credit per
// job. known_for_department maps to the category, lower-cased.
func parseCredits(list []any) []anime.Credit {
	var credits []anime.Credit
	for _, raw := range list {
		obj, ok := raw.(jsonObj)
		if !ok {
			continue
		}
		name := jsonStr(obj, "name")
		department := jsonStr(obj, "department")
		if name == "" || department == "" {
			continue
		}
		category := strings.ToLower(jsonStr(obj, "known_for_department"))

		for _, jobRaw := range jsonList(obj, "jobs") {
			jobObj, ok := jobRaw.(jsonObj)
			if !ok {
				continue
			}
			job := jsonStr(jobObj, "job")
			if job == "" {
				continue
			}
			credits = append(credits, anime.Credit{
				Name:       name,
				Job:        job,
				Department: department,
				Category:   category,
			})
		}
	}
	return credits
}

func parseEpisode(episode jsonObj, lang string) anime.Episode {
	number, _ := jsonInt(episode, "episode_number")
	length, _ := jsonInt(episode, "runtime")
	airdate, _ := anime.ParseDate(jsonStr(episode, "air_date"))

	var ratings []anime.Rating
	if vote := parseVote(episode); vote != nil {
		ratings = append(ratings, *vote)
	}

	return anime.Episode{
		Number:  number,
		Length:  length,
		Airdate: airdate,
		Titles:  []anime.Title{{Lang: lang, Type: anime.TitleMain, Value: jsonStr(episode, "name")}},
		Summary: jsonStr(episode, "overview"),
		Images:  parseImages(jsonChild(episode, "images")),
		Ratings: ratings,
	}
}

func parseSeason(season jsonObj, showID int, lang string) anime.Season {
	number, _ := jsonInt(season, "season_number")
	seasonID := anime.TmdbSeasonID{Show: showID, Season: number}.String()

	var episodes []anime.Episode
	for _, raw := range jsonList(season, "episodes") {
		if obj, ok := raw.(jsonObj); ok {
			episodes = append(episodes, parseEpisode(obj, lang))
		}
	}

	var (
		cast    []anime.CastRole
		credits []anime.Credit
	)
	if creditObj := jsonChild(season, "credits"); creditObj != nil {
		cast = parseCast(jsonList(creditObj, "cast"))
		credits = parseCredits(jsonList(creditObj, "crew"))
	}

	airdate, _ := anime.ParseDate(jsonStr(season, "air_date"))

	result := anime.Season{
		ID:        seasonID,
		Number:    number,
		UniqueIDs: map[string]string{"tmdb": strconv.Itoa(showID), "tmdb_season": strconv.Itoa(number)},
		Titles: []anime.Title{{
			Lang:  lang,
			Type:  anime.TitleMain,
			Value: jsonStr(season, "name"),
			Aid:   seasonID,
		}},

		Description: jsonStr(season, "overview"),
		Airdate:     airdate,
		Episodes:    episodes,
		Images:      parseImages(jsonChild(season, "images")),

		Cast:    cast,
		Credits: credits,
	}
	result.SortEpisodes()
	return result
}

// ParseShow parses a composed tmdb show document into the unified model.
// Backdrops live on the show only, so they are copied onto every season;
// season 1's cast, credits and airdate are hoisted to the show level when
// tmdb omits them there.
func ParseShow(data []byte, lang string) (anime.Anime, error) {
	var root jsonObj
	if err := json.Unmarshal(data, &root); err != nil {
		return anime.Anime{}, fmt.Errorf("invalid show JSON: %w", err)
	}

	showID, ok := jsonInt(root, "id")
	if !ok {
		return anime.Anime{}, fmt.Errorf("invalid show JSON: missing show id")
	}

	images := parseImages(jsonChild(root, "images"))
	var backdrops []anime.Image
	for _, img := range images {
		if img.Type == anime.ImageBackdrop {
			backdrops = append(backdrops, img)
		}
	}

	var genres []string
	for _, raw := range jsonList(root, "genres") {
		if obj, ok := raw.(jsonObj); ok {
			if name := jsonStr(obj, "name"); name != "" {
				genres = append(genres, name)
			}
		}
	}

	var (
		cast    []anime.CastRole
		credits []anime.Credit
		airdate anime.Date
		seasons []anime.Season
	)
	_ = eachNumbered(root, "seasons", "season_number", func(item jsonObj, num int) error {
		season := parseSeason(item, showID, lang)
		season.Genres = append([]string(nil), genres...)
		season.Images = append(season.Images, backdrops...)

		if num == 1 {
			clone := season.Clone()
			cast = clone.Cast
			credits = clone.Credits
			airdate = clone.Airdate
		}

		seasons = append(seasons, season)
		return nil
	})

	result := anime.Anime{
		ID:        "T" + strconv.Itoa(showID),
		UniqueIDs: map[string]string{"tmdb": strconv.Itoa(showID)},
		Titles:    []anime.Title{{Lang: lang, Type: anime.TitleMain, Value: jsonStr(root, "name")}},

		Description: jsonStr(root, "overview"),
		Genres:      genres,
		Airdate:     airdate,
		Seasons:     seasons,
		Images:      images,

		Cast:    cast,
		Credits: credits,
	}
	result.SortSeasons()
	return result, nil
}
