package activate

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Script is a script element found in injected content.
type Script struct {
	// Index is the position of the script in document order.
	Index  int
	Src    string
	Type   string
	Inline string
}

// External reports whether the script is loaded by reference.
func (s Script) External() bool { return s.Src != "" }

// Name identifies the script in logs.
func (s Script) Name() string {
	if s.External() {
		return s.Src
	}
	return "inline#" + strconv.Itoa(s.Index)
}

// executable mirrors the script types a browser runs.
func executable(typ string) bool {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "text/javascript", "application/javascript", "module":
		return true
	}
	return false
}

func scriptFromTag(tok html.Token) Script {
	return Script{Src: attr(tok, "src"), Type: attr(tok, "type")}
}

// Discover returns the executable scripts in content in document order.
// Data blocks such as type="application/json" and empty inline scripts are
// skipped.
func Discover(content string) []Script {
	var (
		scripts []Script
		current *Script
	)
	add := func(s Script) {
		if !executable(s.Type) {
			return
		}
		if s.External() {
			s.Inline = ""
		} else if strings.TrimSpace(s.Inline) == "" {
			return
		}
		s.Index = len(scripts)
		scripts = append(scripts, s)
	}
	z := html.NewTokenizer(strings.NewReader(content))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if current != nil {
				add(*current)
			}
			return scripts
		case html.StartTagToken:
			if tok := z.Token(); tok.DataAtom == atom.Script {
				s := scriptFromTag(tok)
				current = &s
			}
		case html.SelfClosingTagToken:
			if tok := z.Token(); tok.DataAtom == atom.Script {
				add(scriptFromTag(tok))
			}
		case html.TextToken:
			if current != nil {
				current.Inline += string(z.Text())
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if current != nil && atom.Lookup(name) == atom.Script {
				add(*current)
				current = nil
			}
		}
	}
}

// ExtractMetadata reads the title, description and page markers from content.
// A <title> element wins over a data-title attribute.
func ExtractMetadata(content string) map[string]string {
	meta := make(map[string]string)
	var dataTitle string
	inTitle := false
	z := html.NewTokenizer(strings.NewReader(content))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if _, ok := meta["title"]; !ok && dataTitle != "" {
				meta["title"] = dataTitle
			}
			return meta
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Title:
				inTitle = tt == html.StartTagToken
			case atom.Meta:
				if attr(tok, "name") == "description" {
					setOnce(meta, "description", attr(tok, "content"))
				}
			}
			setOnce(meta, "page", attr(tok, "data-page"))
			if dataTitle == "" {
				dataTitle = attr(tok, "data-title")
			}
		case html.TextToken:
			if inTitle {
				setOnce(meta, "title", strings.TrimSpace(string(z.Text())))
			}
		case html.EndTagToken:
			inTitle = false
		}
	}
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func setOnce(m map[string]string, key, val string) {
	if val == "" {
		return
	}
	if _, ok := m[key]; !ok {
		m[key] = val
	}
}
