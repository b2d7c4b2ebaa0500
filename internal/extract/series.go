package extract

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// SeriesDetail holds the labelled fields of a series detail page. Nil means
// the label was absent.
type SeriesDetail struct {
	Title         *string
	TitleJapanese *string
	Score         *string
	Producer      *string
	Type          *string
	Status        *string
	TotalEpisodes *string
	Duration      *string
	ReleaseDate   *string
	Studio        *string
	ImageURL      *string
}

// EpisodeItem is one row of a series episode list.
type EpisodeItem struct {
	URL      string
	Title    string
	DateText *string
	Number   *int
}

// detailLabels maps the lowercase info labels to their field.
var detailLabels = map[string]func(*SeriesDetail) **string{
	"judul":         func(d *SeriesDetail) **string { return &d.Title },
	"japanese":      func(d *SeriesDetail) **string { return &d.TitleJapanese },
	"skor":          func(d *SeriesDetail) **string { return &d.Score },
	"produser":      func(d *SeriesDetail) **string { return &d.Producer },
	"tipe":          func(d *SeriesDetail) **string { return &d.Type },
	"status":        func(d *SeriesDetail) **string { return &d.Status },
	"total episode": func(d *SeriesDetail) **string { return &d.TotalEpisodes },
	"durasi":        func(d *SeriesDetail) **string { return &d.Duration },
	"tanggal rilis": func(d *SeriesDetail) **string { return &d.ReleaseDate },
	"studio":        func(d *SeriesDetail) **string { return &d.Studio },
}

// ParseSeriesDetail reads the info block under div.fotoanime, the genre
// links, and the synopsis paragraphs. Paragraphs are joined by a blank line.
func ParseSeriesDetail(html string) (SeriesDetail, []string, string) {
	var detail SeriesDetail
	doc, err := newDocument(html)
	if err != nil {
		return detail, nil, ""
	}

	var genres []string
	foto := doc.Find("div.fotoanime").First()
	if foto.Length() > 0 {
		if src, ok := foto.Find("img").First().Attr("src"); ok {
			src = strings.TrimSpace(src)
			detail.ImageURL = &src
		}
		foto.Find("div.infozin div.infozingle p").Each(func(_ int, p *goquery.Selection) {
			label, value, found := strings.Cut(p.Text(), ":")
			if !found {
				return
			}
			key := strings.ToLower(strings.TrimSpace(label))
			if key == "genre" {
				p.Find("a").Each(func(_ int, a *goquery.Selection) {
					if name := strings.TrimSpace(a.Text()); name != "" {
						genres = append(genres, name)
					}
				})
				return
			}
			field, ok := detailLabels[key]
			if !ok {
				return
			}
			v := strings.TrimSpace(value)
			*field(&detail) = &v
		})
	}

	var paragraphs []string
	doc.Find("div.sinopc p").Each(func(_ int, p *goquery.Selection) {
		if text := strings.TrimSpace(p.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	return detail, genres, strings.Join(paragraphs, "\n\n")
}

// ParseEpisodeList reads every `div.episodelist ul li` row that has a link.
func ParseEpisodeList(html string) []EpisodeItem {
	doc, err := newDocument(html)
	if err != nil {
		return nil
	}
	var out []EpisodeItem
	doc.Find("div.episodelist ul li").Each(func(_ int, li *goquery.Selection) {
		link := li.Find("a").First()
		if link.Length() == 0 {
			return
		}
		href := strings.TrimSpace(link.AttrOr("href", ""))
		if href == "" {
			return
		}
		title := strings.TrimSpace(link.Text())
		item := EpisodeItem{
			URL:    href,
			Title:  title,
			Number: EpisodeNumber(title),
		}
		if date := li.Find("span.zeebr").First(); date.Length() > 0 {
			text := strings.TrimSpace(date.Text())
			item.DateText = &text
		}
		out = append(out, item)
	})
	return out
}

// EpisodeNumber takes the text between the first and second "episode" token
// of the lowercased title and concatenates every digit in it. Titles such as
// "Episode 12 (2024)" therefore yield 122024; stored rows depend on this.
func EpisodeNumber(title string) *int {
	parts := strings.Split(strings.ToLower(title), "episode")
	if len(parts) < 2 {
		return nil
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			return r
		}
		return -1
	}, parts[1])
	if digits == "" {
		return nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	return &n
}
