// Package htmlblock converts sanitized HTML email bodies into a small
// block tree shaped like the remote page API's content blocks:
// paragraph, heading, quote, list item, image, and divider.
package htmlblock

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// Block is one node of the resulting block tree, shaped to match the
// remote API's JSON block object (a "paragraph"/"heading_2"/... key
// holding a {rich_text, ...} payload).
type Block map[string]any

// InlineImage is what the attachment phase resolved for one cid: or
// filename reference, keyed by the same identifiers a <img> tag's src or
// alt might carry.
type InlineImage struct {
	FileUploadID string
	ContentType  string
}

var sanitizePolicy = newSanitizePolicy()

func newSanitizePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("src").OnElements("img")
	p.AllowURLSchemes("cid")
	p.AllowAttrs("href").OnElements("a")
	p.AllowElements("hr")
	return p
}

// Convert sanitizes html and walks the result into a flat top-level block
// list. inlineMap resolves cid: references (keyed by Content-ID, with or
// without the cid: prefix) and bare filenames to already-uploaded files.
func Convert(htmlBody string, inlineMap map[string]InlineImage) []Block {
	clean := sanitizePolicy.Sanitize(htmlBody)

	doc, err := html.Parse(strings.NewReader(clean))
	if err != nil {
		return []Block{textParagraph(stripTags(htmlBody))}
	}

	body := findBody(doc)
	if body == nil {
		body = doc
	}

	w := &walker{inlineMap: inlineMap}
	w.walkChildren(body)
	return w.blocks
}

type walker struct {
	blocks    []Block
	inlineMap map[string]InlineImage
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findBody(c); found != nil {
			return found
		}
	}
	return nil
}

func (w *walker) walkChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walkBlockLevel(c)
	}
}

func (w *walker) walkBlockLevel(n *html.Node) {
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			w.blocks = append(w.blocks, textParagraph(text))
		}
		return
	}
	if n.Type != html.ElementNode {
		return
	}

	switch n.Data {
	case "h1":
		w.blocks = append(w.blocks, headingBlock("heading_1", richTextFromInline(n)))
	case "h2":
		w.blocks = append(w.blocks, headingBlock("heading_2", richTextFromInline(n)))
	case "h3", "h4", "h5", "h6":
		w.blocks = append(w.blocks, headingBlock("heading_3", richTextFromInline(n)))
	case "p", "div":
		if img := soleImage(n); img != nil {
			w.appendImage(img)
			return
		}
		if rt := richTextFromInline(n); len(rt) > 0 {
			w.blocks = append(w.blocks, Block{"type": "paragraph", "paragraph": map[string]any{"rich_text": rt}})
		} else {
			w.walkChildren(n)
		}
	case "blockquote":
		w.blocks = append(w.blocks, Block{"type": "quote", "quote": map[string]any{"rich_text": richTextFromInline(n)}})
	case "ul":
		w.walkListItems(n, "bulleted_list_item")
	case "ol":
		w.walkListItems(n, "numbered_list_item")
	case "img":
		w.appendImage(n)
	case "hr":
		w.blocks = append(w.blocks, Block{"type": "divider", "divider": map[string]any{}})
	case "br":
		// No standalone block; line breaks inside a paragraph are folded
		// into its rich_text by richTextFromInline.
	default:
		w.walkChildren(n)
	}
}

func (w *walker) walkListItems(list *html.Node, blockType string) {
	for c := list.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "li" {
			w.blocks = append(w.blocks, Block{"type": blockType, blockType: map[string]any{"rich_text": richTextFromInline(c)}})
		}
	}
}

// soleImage returns the single <img> child of n if n's only meaningful
// content is that image, so an <img> wrapped in a <p> or <div> collapses
// to one image block instead of an empty paragraph plus an image.
func soleImage(n *html.Node) *html.Node {
	var img *html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode && strings.TrimSpace(c.Data) != "" {
			return nil
		}
		if c.Type == html.ElementNode {
			if c.Data == "img" && img == nil {
				img = c
				continue
			}
			return nil
		}
	}
	return img
}

func (w *walker) appendImage(imgNode *html.Node) {
	src := attr(imgNode, "src")
	ref, ok := resolveInline(w.inlineMap, src, attr(imgNode, "alt"))
	if !ok {
		return
	}
	w.blocks = append(w.blocks, Block{
		"type": "image",
		"image": map[string]any{
			"type": "file_upload",
			"file_upload": map[string]any{
				"id": ref.FileUploadID,
			},
		},
	})
}

// resolveInline matches an <img> reference against the inline map by
// Content-ID (the "cid:" form) first, then by bare filename.
func resolveInline(inlineMap map[string]InlineImage, src, alt string) (InlineImage, bool) {
	if strings.HasPrefix(src, "cid:") {
		key := strings.TrimPrefix(src, "cid:")
		if ref, ok := inlineMap[key]; ok {
			return ref, true
		}
	}
	if ref, ok := inlineMap[src]; ok {
		return ref, true
	}
	if ref, ok := inlineMap[alt]; ok {
		return ref, true
	}
	return InlineImage{}, false
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func headingBlock(blockType string, richText []map[string]any) Block {
	return Block{"type": blockType, blockType: map[string]any{"rich_text": richText}}
}

func textParagraph(text string) Block {
	return Block{"type": "paragraph", "paragraph": map[string]any{"rich_text": []map[string]any{plainRichText(text)}}}
}

func plainRichText(text string) map[string]any {
	return map[string]any{
		"type": "text",
		"text": map[string]any{"content": text},
	}
}

// richTextFromInline walks n's inline descendants (text, <b>/<strong>,
// <i>/<em>, <a>) into a flat rich_text array, preserving bold/italic/link
// annotations the remote API understands.
func richTextFromInline(n *html.Node) []map[string]any {
	var out []map[string]any
	var walk func(node *html.Node, bold, italic bool, link string)
	walk = func(node *html.Node, bold, italic bool, link string) {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				text := collapseWhitespace(c.Data)
				if text == "" {
					continue
				}
				rt := plainRichText(text)
				if bold || italic || link != "" {
					annotations := map[string]any{}
					if bold {
						annotations["bold"] = true
					}
					if italic {
						annotations["italic"] = true
					}
					rt["annotations"] = annotations
					if link != "" {
						rt["text"].(map[string]any)["link"] = map[string]any{"url": link}
					}
				}
				out = append(out, rt)
			case html.ElementNode:
				switch c.Data {
				case "b", "strong":
					walk(c, true, italic, link)
				case "i", "em":
					walk(c, bold, true, link)
				case "a":
					walk(c, bold, italic, attr(c, "href"))
				case "br":
					out = append(out, plainRichText("\n"))
				default:
					walk(c, bold, italic, link)
				}
			}
		}
	}
	walk(n, false, false, "")
	return out
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// stripTags is the last-resort fallback when sanitized HTML fails to
// re-parse at all (should not happen in practice since bluemonday always
// emits well-formed output, but Parse has no other error path to take).
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
