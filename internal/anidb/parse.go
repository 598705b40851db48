// Package anidb integrates the anidb HTTP API: the titles index, the
// per-anime XML documents, and the image CDN.
package anidb

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/animemeta/animemeta/internal/anime"
)

// translateTitleType maps anidb's short title types to the unified ones.
func translateTitleType(value string) string {
	if value == "syn" {
		return anime.TitleSynonym
	}
	return value
}

// ParseTitlesXML stream-parses the anime-titles.xml dump and calls handle
// for every <title> element, carrying the aid of the surrounding <anime>.
func ParseTitlesXML(data []byte, handle func(anime.Title) error) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	var (
		aid     string
		current *anime.Title
		value   strings.Builder
	)
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("invalid titles XML: %w", err)
		}

		switch tok := token.(type) {
		case xml.StartElement:
			switch strings.ToLower(tok.Name.Local) {
			case "anime":
				for _, attr := range tok.Attr {
					if attr.Name.Local == "aid" {
						aid = attr.Value
					}
				}
			case "title":
				title := anime.Title{Aid: aid}
				for _, attr := range tok.Attr {
					switch attr.Name.Local {
					case "type":
						title.Type = translateTitleType(attr.Value)
					case "lang":
						title.Lang = attr.Value
					}
				}
				current = &title
				value.Reset()
			}
		case xml.CharData:
			if current != nil {
				value.Write(tok)
			}
		case xml.EndElement:
			if strings.ToLower(tok.Name.Local) == "title" && current != nil {
				current.Value = value.String()
				if err := handle(*current); err != nil {
					return err
				}
				current = nil
			}
		}
	}
}

// ParseAPIError inspects a response body for an anidb <error> document and
// returns the lower-cased error text, or "" when the body is anything else.
func ParseAPIError(data []byte) string {
	var doc struct {
		XMLName xml.Name
		Text    string `xml:",chardata"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return ""
	}
	if strings.ToLower(doc.XMLName.Local) != "error" {
		return ""
	}
	return strings.ToLower(doc.Text)
}

// Anidb job type → tmdb-style department and category. Jobs outside the
// tables keep empty department/category.
var creditDepartments = map[string]string{
	"Character Design":           "Art",
	"Original Work":              "Writing",
	"Music":                      "Sound",
	"Animation Work":             "Art",
	"Direction":                  "Directing",
	"Chief Animation Direction":  "Directing",
	"Animation Character Design": "Art",
	"Series Composition":         "Writing",
}

var creditCategories = map[string]string{
	"Character Design":           "visual effects",
	"Original Work":              "writing",
	"Music":                      "sound",
	"Animation Work":             "visual effects",
	"Direction":                  "directing",
	"Chief Animation Direction":  "directing",
	"Animation Character Design": "visual effects",
	"Series Composition":         "writing",
}

// Episode numbering types from the UDP API definition. Only regular and
// special episodes make it into the parsed seasons.
const (
	epTypeRegular = 1
	epTypeSpecial = 2
)

type titleXML struct {
	Lang  string `xml:"lang,attr"`
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type epnoXML struct {
	Type  int    `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type ratingXML struct {
	Votes   string `xml:"votes,attr"`
	Count   string `xml:"count,attr"`
	Average string `xml:",chardata"`
}

type episodeXML struct {
	Epno    epnoXML    `xml:"epno"`
	Length  string     `xml:"length"`
	Airdate string     `xml:"airdate"`
	Summary string     `xml:"summary"`
	Titles  []titleXML `xml:"title"`
	Rating  *ratingXML `xml:"rating"`
}

type seiyuuXML struct {
	Picture string `xml:"picture,attr"`
	Name    string `xml:",chardata"`
}

type characterXML struct {
	Name    string     `xml:"name"`
	Picture string     `xml:"picture"`
	Seiyuu  *seiyuuXML `xml:"seiyuu"`
}

type tagXML struct {
	ID       string `xml:"id,attr"`
	ParentID string `xml:"parentid,attr"`
	Name     string `xml:"name"`
}

type creatorXML struct {
	Type string `xml:"type,attr"`
	Name string `xml:",chardata"`
}

type animeXML struct {
	ID          string `xml:"id,attr"`
	Description string `xml:"description"`
	Startdate   string `xml:"startdate"`

	Titles   []titleXML `xml:"titles>title"`
	Pictures []string   `xml:"picture"`

	PermanentRating *ratingXML `xml:"ratings>permanent"`

	Tags       []tagXML       `xml:"tags>tag"`
	Creators   []creatorXML   `xml:"creators>name"`
	Episodes   []episodeXML   `xml:"episodes>episode"`
	Characters []characterXML `xml:"characters>character"`
}

// ParseAnime parses an anidb HTTP API anime document into the unified
// model. The document yields two synthetic seasons: 0 holds the specials,
// 1 the regular episodes carrying the anime-level metadata.
func ParseAnime(data []byte) (anime.Anime, error) {
	var doc animeXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return anime.Anime{}, fmt.Errorf("invalid anime XML: %w", err)
	}
	if doc.ID == "" {
		return anime.Anime{}, fmt.Errorf("invalid anime XML: missing anime id")
	}

	titles := make([]anime.Title, 0, len(doc.Titles))
	for _, t := range doc.Titles {
		title := parseTitle(t)
		title.Aid = doc.ID
		titles = append(titles, title)
	}

	images := make([]anime.Image, 0, len(doc.Pictures))
	for _, name := range doc.Pictures {
		name = strings.Trim(strings.TrimSpace(name), "/")
		if name != "" {
			// the anidb document only ever references posters
			images = append(images, anime.Image{Source: "anidb", Name: name, Type: anime.ImagePoster})
		}
	}

	var ratings []anime.Rating
	if r := parseRating(doc.PermanentRating, true); r != nil {
		ratings = append(ratings, *r)
	}

	var cast []anime.CastRole
	for _, c := range doc.Characters {
		if role := parseCharacter(c); role != nil {
			cast = append(cast, *role)
		}
	}

	var directors []string
	for _, c := range doc.Creators {
		name := strings.TrimSpace(c.Name)
		if strings.EqualFold(strings.TrimSpace(c.Type), "Direction") && name != "" {
			directors = append(directors, name)
		}
	}

	var credits []anime.Credit
	for _, c := range doc.Creators {
		name := strings.TrimSpace(c.Name)
		job := strings.TrimSpace(c.Type)
		if name == "" || job == "" {
			continue
		}
		credits = append(credits, anime.Credit{
			Name:       name,
			Job:        job,
			Department: creditDepartments[job],
			Category:   creditCategories[job],
		})
	}

	airdate, _ := anime.ParseDate(strings.TrimSpace(doc.Startdate))

	result := anime.Anime{
		ID:          "A" + doc.ID,
		UniqueIDs:   map[string]string{"anidb": doc.ID},
		Titles:      titles,
		Description: strings.TrimSpace(doc.Description),
		Tags:        parseTags(doc.Tags),
		Airdate:     airdate,
		Images:      images,
		Ratings:     ratings,
		Cast:        cast,
		Directors:   directors,
		Credits:     credits,
	}

	specials, err := parseEpisodes(doc.Episodes, epTypeSpecial)
	if err != nil {
		return anime.Anime{}, err
	}
	regulars, err := parseEpisodes(doc.Episodes, epTypeRegular)
	if err != nil {
		return anime.Anime{}, err
	}

	result.Seasons = []anime.Season{
		{
			ID:        result.ID,
			Number:    0,
			UniqueIDs: map[string]string{"anidb": doc.ID},
			Titles:    []anime.Title{{Value: "Specials", Type: anime.TitleMain, Lang: "en"}},
			Episodes:  specials,
		},
		regularSeason(result, regulars),
	}
	for i := range result.Seasons {
		result.Seasons[i].SortEpisodes()
	}

	return result, nil
}

// regularSeason builds season 1 from the regular episodes, inheriting the
// anime-level metadata.
func regularSeason(a anime.Anime, episodes []anime.Episode) anime.Season {
	clone := a.Clone()
	return anime.Season{
		ID:        a.ID,
		Number:    1,
		UniqueIDs: clone.UniqueIDs,
		Titles:    clone.Titles,

		Description: a.Description,
		Genres:      clone.Genres,
		Tags:        clone.Tags,
		Airdate:     a.Airdate,
		Episodes:    episodes,
		Images:      clone.Images,
		Ratings:     clone.Ratings,

		Cast:      clone.Cast,
		Directors: clone.Directors,
		Credits:   clone.Credits,
	}
}

func parseTitle(t titleXML) anime.Title {
	return anime.Title{
		Value: t.Value,
		Lang:  t.Lang,
		Type:  translateTitleType(t.Type),
	}
}

// parseEpno decodes the typed episode number. Non-regular numbers carry a
// single prefix character (S, C, T, P, O) that is stripped before parsing.
func parseEpno(e epnoXML) (epType, number int, err error) {
	text := strings.TrimSpace(e.Value)
	if e.Type != epTypeRegular {
		if len(text) < 2 {
			return 0, 0, fmt.Errorf("invalid episode number %q", e.Value)
		}
		text = text[1:]
	}
	number, err = strconv.Atoi(text)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid episode number %q", e.Value)
	}
	return e.Type, number, nil
}

func parseEpisodes(episodes []episodeXML, wantType int) ([]anime.Episode, error) {
	var out []anime.Episode
	for _, e := range episodes {
		epType, number, err := parseEpno(e.Epno)
		if err != nil {
			return nil, err
		}
		if epType != wantType {
			continue
		}

		length, _ := strconv.Atoi(strings.TrimSpace(e.Length))
		airdate, _ := anime.ParseDate(strings.TrimSpace(e.Airdate))

		titles := make([]anime.Title, 0, len(e.Titles))
		for _, t := range e.Titles {
			titles = append(titles, parseTitle(t))
		}

		var ratings []anime.Rating
		if r := parseRating(e.Rating, false); r != nil {
			ratings = append(ratings, *r)
		}

		out = append(out, anime.Episode{
			Number:  number,
			Length:  length,
			Airdate: airdate,
			Titles:  titles,
			Summary: strings.TrimSpace(e.Summary),
			Images:  []anime.Image{},
			Ratings: ratings,
		})
	}
	return out, nil
}

// parseRating reads an anidb rating element. The permanent show rating
// carries its vote count in the count attribute instead of votes.
func parseRating(r *ratingXML, fromCount bool) *anime.Rating {
	if r == nil {
		return nil
	}
	average, err := strconv.ParseFloat(strings.TrimSpace(r.Average), 64)
	if err != nil {
		return nil
	}
	votesAttr := r.Votes
	if fromCount {
		votesAttr = r.Count
	}
	votes, err := strconv.Atoi(strings.TrimSpace(votesAttr))
	if err != nil {
		votes = 0
	}
	return &anime.Rating{Source: "anidb", Average: average, Votes: votes}
}

// parseCharacter builds a cast role. Characters without a seiyuu (the
// voice actor) are dropped.
func parseCharacter(c characterXML) *anime.CastRole {
	if c.Seiyuu == nil {
		return nil
	}
	role := anime.CastRole{
		Character: strings.TrimSpace(c.Name),
		Actor:     strings.TrimSpace(c.Seiyuu.Name),
	}
	if img := strings.Trim(strings.TrimSpace(c.Picture), "/"); img != "" {
		role.CharacterImage = &anime.Image{Source: "anidb", Name: img, Type: anime.ImageThumb}
	}
	if img := strings.Trim(strings.TrimSpace(c.Seiyuu.Picture), "/"); img != "" {
		role.ActorImage = &anime.Image{Source: "anidb", Name: img, Type: anime.ImageThumb}
	}
	return &role
}

// parseTags keeps only the leaf tags of the parent-linked tag tree: inner
// nodes act as tag categories. Anything under "maintenance tags" is an
// anidb housekeeping marker, not content.
func parseTags(tags []tagXML) []string {
	type node struct {
		name   string
		parent string
	}
	all := make(map[string]node)
	parentIDs := make(map[string]bool)
	order := make([]string, 0, len(tags))

	for _, t := range tags {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		id := t.ID
		all[id] = node{name: name, parent: strings.TrimSpace(t.ParentID)}
		parentIDs[strings.TrimSpace(t.ParentID)] = true
		order = append(order, id)
	}

	var out []string
	for _, id := range order {
		if parentIDs[id] {
			continue // inner node
		}
		maintenance := false
		for cur, steps := id, 0; cur != "" && steps <= len(all); steps++ {
			n, ok := all[cur]
			if !ok {
				break
			}
			if strings.EqualFold(n.name, "maintenance tags") {
				maintenance = true
				break
			}
			cur = n.parent
		}
		if !maintenance {
			out = append(out, all[id].name)
		}
	}
	return out
}
