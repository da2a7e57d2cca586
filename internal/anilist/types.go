package anilist

import (
	"regexp"
	"strconv"
	"strings"

	"manhwahub/pkg/models"
)

// gqlResponse is the GraphQL envelope: data plus a possibly-empty
// errors array. AniList returns HTTP 200 for resolver-level errors, so
// the errors array has to be checked on every call.
type gqlResponse[T any] struct {
	Data   T `json:"data"`
	Errors []struct {
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"errors"`
}

type pageInfo struct {
	Total       int  `json:"total"`
	CurrentPage int  `json:"currentPage"`
	HasNextPage bool `json:"hasNextPage"`
}

type media struct {
	ID    int `json:"id"`
	Title struct {
		Romaji  string `json:"romaji"`
		English string `json:"english"`
		Native  string `json:"native"`
	} `json:"title"`
	Synonyms    []string `json:"synonyms"`
	Description string   `json:"description"`
	CoverImage  struct {
		Large string `json:"large"`
	} `json:"coverImage"`
	Genres []string `json:"genres"`
	Tags   []struct {
		Name string `json:"name"`
	} `json:"tags"`
	Status    string `json:"status"`
	StartDate struct {
		Year int `json:"year"`
	} `json:"startDate"`
	Chapters     *int `json:"chapters"`
	AverageScore *int `json:"averageScore"`
	Popularity   int  `json:"popularity"`
	Staff        struct {
		Edges []struct {
			Role string `json:"role"`
			Node struct {
				Name struct {
					Full string `json:"full"`
				} `json:"name"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"staff"`
}

type pageData struct {
	Page struct {
		PageInfo pageInfo `json:"pageInfo"`
		Media    []media  `json:"media"`
	} `json:"Page"`
}

type mediaData struct {
	Media *media `json:"Media"`
}

type listCollectionData struct {
	MediaListCollection struct {
		Lists []struct {
			Name    string `json:"name"`
			Status  string `json:"status"`
			Entries []struct {
				Status   string  `json:"status"`
				Progress int     `json:"progress"`
				Score    float64 `json:"score"`
				Media    media   `json:"media"`
			} `json:"entries"`
		} `json:"lists"`
	} `json:"MediaListCollection"`
}

type saveEntryData struct {
	SaveMediaListEntry struct {
		ID       int     `json:"id"`
		Status   string  `json:"status"`
		Progress int     `json:"progress"`
		Score    float64 `json:"score"`
	} `json:"SaveMediaListEntry"`
}

type viewerData struct {
	Viewer *struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"Viewer"`
}

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

func (m media) toRecord() models.MangaRecord {
	title := m.Title.English
	if title == "" {
		title = m.Title.Romaji
	}
	if title == "" {
		title = m.Title.Native
	}

	var altTitles []string
	for _, t := range []string{m.Title.Romaji, m.Title.English, m.Title.Native} {
		if t != "" && t != title {
			altTitles = appendIfMissing(altTitles, t)
		}
	}
	for _, t := range m.Synonyms {
		if t != "" && t != title {
			altTitles = appendIfMissing(altTitles, t)
		}
	}

	tags := make([]string, 0, len(m.Tags))
	for _, t := range m.Tags {
		tags = append(tags, t.Name)
	}

	var authors, artists []string
	for _, edge := range m.Staff.Edges {
		role := strings.ToLower(edge.Role)
		name := edge.Node.Name.Full
		if name == "" {
			continue
		}
		switch {
		case strings.Contains(role, "story"):
			authors = appendIfMissing(authors, name)
			if strings.Contains(role, "art") {
				artists = appendIfMissing(artists, name)
			}
		case strings.Contains(role, "art"):
			artists = appendIfMissing(artists, name)
		}
	}

	var chapters int
	if m.Chapters != nil {
		chapters = *m.Chapters
	}

	// averageScore is 0-100 upstream; records carry 0-10.
	var rating *float64
	if m.AverageScore != nil {
		r := float64(*m.AverageScore) / 10
		rating = &r
	}

	return models.MangaRecord{
		ID:           strconv.Itoa(m.ID),
		Source:       models.SourceAniList,
		Title:        title,
		AltTitles:    altTitles,
		Description:  stripMarkup(m.Description),
		CoverURL:     m.CoverImage.Large,
		Authors:      authors,
		Artists:      artists,
		Genres:       m.Genres,
		Tags:         tags,
		Status:       normalizeStatus(m.Status),
		Year:         m.StartDate.Year,
		ChapterCount: chapters,
		Rating:       rating,
		Follows:      m.Popularity,
	}
}

// stripMarkup removes the HTML fragments AniList embeds in descriptions
// even with asHtml: false (line breaks and inline emphasis).
func stripMarkup(s string) string {
	s = strings.ReplaceAll(s, "<br>", "\n")
	s = strings.ReplaceAll(s, "<br/>", "\n")
	s = strings.ReplaceAll(s, "<br />", "\n")
	s = htmlTagPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func normalizeStatus(s string) string {
	switch s {
	case "RELEASING":
		return "ongoing"
	case "FINISHED":
		return "completed"
	case "HIATUS":
		return "hiatus"
	case "CANCELLED":
		return "cancelled"
	case "NOT_YET_RELEASED":
		return "upcoming"
	default:
		return strings.ToLower(s)
	}
}

func appendIfMissing(slice []string, v string) []string {
	for _, x := range slice {
		if x == v {
			return slice
		}
	}
	return append(slice, v)
}
