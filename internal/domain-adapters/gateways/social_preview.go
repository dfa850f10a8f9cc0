package gateways

import (
	"strings"

	"golang.org/x/net/html"
)

// socialPreviewProperty is the meta property carrying a repository's preview image
const socialPreviewProperty = "og:image"

// SocialPreviewURL returns the content of the first og:image meta tag in
// page, or an empty string when there is none
func SocialPreviewURL(page string) string {
	if page == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return ""
	}
	return findMetaContent(doc, socialPreviewProperty)
}

func findMetaContent(n *html.Node, property string) string {
	if n.Type == html.ElementNode && n.Data == "meta" {
		var prop, content string
		for _, a := range n.Attr {
			switch a.Key {
			case "property":
				prop = a.Val
			case "content":
				content = a.Val
			}
		}
		if prop == property {
			return content
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if v := findMetaContent(c, property); v != "" {
			return v
		}
	}
	return ""
}
