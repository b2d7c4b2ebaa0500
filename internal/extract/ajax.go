package extract

import (
	"encoding/base64"
	"strings"

	"github.com/goccy/go-json"
)

// DecodeBase64 decodes s with either the standard or URL-safe alphabet,
// ignoring missing or surplus padding and embedded whitespace.
func DecodeBase64(s string) ([]byte, bool) {
	s = strings.Join(strings.Fields(s), "")
	s = strings.TrimRight(s, "=")
	if s == "" {
		return nil, false
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, true
	}
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, true
	}
	return nil, false
}

// ResolveEmbedSrc decodes an embed response and returns the src of its
// first iframe. Undecodable input or markup without an iframe src reports
// false.
func ResolveEmbedSrc(encoded string) (string, bool) {
	decoded, ok := DecodeBase64(encoded)
	if !ok {
		return "", false
	}
	doc, err := newDocument(string(decoded))
	if err != nil {
		return "", false
	}
	src := strings.TrimSpace(doc.Find("iframe").First().AttrOr("src", ""))
	if src == "" {
		return "", false
	}
	return src, true
}

type ajaxEnvelope struct {
	Data any `json:"data"`
}

// DecodeAjaxData returns the string "data" member of an admin-ajax JSON
// response. Missing, empty, or non-string data reports false.
func DecodeAjaxData(body []byte) (string, bool) {
	var env ajaxEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", false
	}
	data, ok := env.Data.(string)
	if !ok || data == "" {
		return "", false
	}
	return data, true
}
