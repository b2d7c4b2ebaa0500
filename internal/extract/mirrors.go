package extract

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/goccy/go-json"
)

// MirrorItem is one streaming option on an episode page. The payload
// fields come from the base64 JSON in the link's data-content attribute.
type MirrorItem struct {
	Quality        string
	Provider       string
	RawPayload     string
	PayloadID      int64
	PayloadIndex   int64
	PayloadQuality string
}

// ParseMirrorOptions reads every `div.mirrorstream ul` group. The group's
// class, minus a leading "m", is the quality label. Options are skipped
// unless the payload decodes to an object whose id and i are integers
// (JSON numbers or numeric strings) and which carries a q.
func ParseMirrorOptions(html string) []MirrorItem {
	doc, err := newDocument(html)
	if err != nil {
		return nil
	}
	var out []MirrorItem
	doc.Find("div.mirrorstream ul").Each(func(_ int, group *goquery.Selection) {
		quality := strings.TrimSpace(group.AttrOr("class", ""))
		quality = strings.TrimPrefix(quality, "m")
		group.Find("li a[data-content]").Each(func(_ int, link *goquery.Selection) {
			raw := strings.TrimSpace(link.AttrOr("data-content", ""))
			if raw == "" {
				return
			}
			id, index, q, ok := decodeMirrorPayload(raw)
			if !ok {
				return
			}
			out = append(out, MirrorItem{
				Quality:        quality,
				Provider:       strings.TrimSpace(link.Text()),
				RawPayload:     raw,
				PayloadID:      id,
				PayloadIndex:   index,
				PayloadQuality: q,
			})
		})
	})
	return out
}

func decodeMirrorPayload(raw string) (int64, int64, string, bool) {
	decoded, ok := DecodeBase64(raw)
	if !ok {
		return 0, 0, "", false
	}
	var payload map[string]any
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return 0, 0, "", false
	}
	id, ok := asInt(payload["id"])
	if !ok {
		return 0, 0, "", false
	}
	index, ok := asInt(payload["i"])
	if !ok {
		return 0, 0, "", false
	}
	q, ok := asString(payload["q"])
	if !ok {
		return 0, 0, "", false
	}
	return id, index, q, true
}

func asInt(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t != float64(int64(t)) {
			return 0, false
		}
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}
