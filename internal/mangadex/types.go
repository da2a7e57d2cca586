package mangadex

import (
	"fmt"
	"strconv"
	"strings"

	"manhwahub/pkg/models"
)

const coversBase = "https://uploads.mangadex.org/covers"

// Raw wire shapes. Parsing into models.MangaRecord happens here at the
// client boundary; nothing upstream-shaped leaks past this package.

type mangaListResponse struct {
	Result string  `json:"result"`
	Data   []manga `json:"data"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
	Total  int     `json:"total"`
}

type mangaResponse struct {
	Result string `json:"result"`
	Data   *manga `json:"data"`
}

type manga struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Title       map[string]string   `json:"title"`
		AltTitles   []map[string]string `json:"altTitles"`
		Description map[string]string   `json:"description"`
		Status      string              `json:"status"`
		Year        int                 `json:"year"`
		LastChapter string              `json:"lastChapter"`
		Tags        []struct {
			Attributes struct {
				Name map[string]string `json:"name"`
			} `json:"attributes"`
		} `json:"tags"`
	} `json:"attributes"`
	Relationships []struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			Name     string `json:"name"`     // author / artist / scanlation_group
			FileName string `json:"fileName"` // cover_art
		} `json:"attributes"`
	} `json:"relationships"`
}

type statisticsResponse struct {
	Result     string `json:"result"`
	Statistics map[string]struct {
		Rating struct {
			Average  *float64 `json:"average"`
			Bayesian *float64 `json:"bayesian"`
		} `json:"rating"`
		Follows int `json:"follows"`
	} `json:"statistics"`
}

type chapterFeedResponse struct {
	Result string `json:"result"`
	Data   []struct {
		ID         string `json:"id"`
		Attributes struct {
			Chapter            string `json:"chapter"`
			Title              string `json:"title"`
			Volume             string `json:"volume"`
			Pages              int    `json:"pages"`
			TranslatedLanguage string `json:"translatedLanguage"`
			PublishAt          string `json:"publishAt"`
			ReadableAt         string `json:"readableAt"`
		} `json:"attributes"`
		Relationships []struct {
			Type       string `json:"type"`
			Attributes struct {
				Name string `json:"name"`
			} `json:"attributes"`
		} `json:"relationships"`
	} `json:"data"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

func (m manga) toRecord() models.MangaRecord {
	title := pickLang(m.Attributes.Title, "en")
	if title == "" {
		for _, v := range m.Attributes.Title {
			title = v
			break
		}
	}

	altTitles := make([]string, 0, len(m.Attributes.AltTitles))
	for _, alt := range m.Attributes.AltTitles {
		at := pickLang(alt, "en")
		if at == "" {
			for _, v := range alt {
				at = v
				break
			}
		}
		if at != "" && at != title {
			altTitles = appendIfMissing(altTitles, at)
		}
	}

	tags := make([]string, 0, len(m.Attributes.Tags))
	for _, t := range m.Attributes.Tags {
		if name := pickLang(t.Attributes.Name, "en"); name != "" {
			tags = append(tags, name)
		}
	}

	var (
		authors  []string
		artists  []string
		coverURL string
	)
	for _, rel := range m.Relationships {
		switch rel.Type {
		case "author":
			if rel.Attributes.Name != "" {
				authors = appendIfMissing(authors, rel.Attributes.Name)
			}
		case "artist":
			if rel.Attributes.Name != "" {
				artists = appendIfMissing(artists, rel.Attributes.Name)
			}
		case "cover_art":
			if coverURL == "" && rel.Attributes.FileName != "" {
				coverURL = fmt.Sprintf("%s/%s/%s", coversBase, m.ID, rel.Attributes.FileName)
			}
		}
	}

	return models.MangaRecord{
		ID:           m.ID,
		Source:       models.SourceMangaDex,
		Title:        title,
		AltTitles:    altTitles,
		Description:  pickLang(m.Attributes.Description, "en"),
		CoverURL:     coverURL,
		Authors:      authors,
		Artists:      artists,
		Tags:         tags,
		Status:       normalizeStatus(m.Attributes.Status),
		Year:         m.Attributes.Year,
		ChapterCount: parseChapterCount(m.Attributes.LastChapter),
	}
}

func pickLang(m map[string]string, lang string) string {
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[lang])
}

func appendIfMissing(slice []string, v string) []string {
	for _, x := range slice {
		if x == v {
			return slice
		}
	}
	return append(slice, v)
}

// parseChapterCount turns MangaDex's lastChapter ("179", "12.5", "")
// into a whole-chapter count, 0 when unknown.
func parseChapterCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		s = s[:dot]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func normalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ongoing":
		return "ongoing"
	case "completed":
		return "completed"
	case "hiatus":
		return "hiatus"
	case "cancelled", "canceled":
		return "cancelled"
	default:
		return strings.ToLower(strings.TrimSpace(s))
	}
}
