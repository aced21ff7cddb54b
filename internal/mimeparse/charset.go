package mimeparse

import (
	"fmt"
	"io"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	msgcharset "github.com/emersion/go-message/charset"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
)

// decodeCharset converts content to UTF-8. An empty or UTF-8 declared
// charset is validated rather than trusted outright — mislabeled
// encodings are common enough in real-world mail that auto-detection is
// attempted whenever the declared charset doesn't actually hold up.
func decodeCharset(content []byte, declaredCharset string) string {
	if declaredCharset == "" || strings.EqualFold(declaredCharset, "utf-8") || strings.EqualFold(declaredCharset, "us-ascii") {
		if utf8.Valid(content) && !looksLikeGibberish(string(content)) {
			return string(content)
		}

		encoding, _, _ := charset.DetermineEncoding(content, "text/html")
		if decoded, err := encoding.NewDecoder().Bytes(content); err == nil && !looksLikeGibberish(string(decoded)) {
			return string(decoded)
		}

		for _, encName := range []string{"gb18030", "gbk", "gb2312", "big5", "euc-tw"} {
			enc, err := htmlindex.Get(encName)
			if err != nil {
				continue
			}
			if decoded, err := enc.NewDecoder().Bytes(content); err == nil && utf8.Valid(decoded) && !looksLikeGibberish(string(decoded)) {
				return string(decoded)
			}
		}
		return string(content)
	}

	enc, err := htmlindex.Get(declaredCharset)
	if err != nil {
		aliases := map[string]string{"gb2312": "gbk", "x-gbk": "gbk", "x-big5": "big5"}
		if alias, ok := aliases[strings.ToLower(declaredCharset)]; ok {
			enc, err = htmlindex.Get(alias)
		}
		if err != nil {
			return string(content)
		}
	}

	decoded, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return string(content)
	}
	return string(decoded)
}

// looksLikeGibberish flags content that is technically valid UTF-8 but is
// almost certainly misencoded — a high density of replacement characters
// or rare CJK Extension B codepoints.
func looksLikeGibberish(s string) bool {
	if len(s) == 0 {
		return false
	}

	var replacementCount, cjkExtBCount, total int
	for _, r := range s {
		total++
		if r == '�' {
			replacementCount++
		}
		if r >= 0x20000 && r <= 0x2A6DF {
			cjkExtBCount++
		}
	}

	if total > 10 && float64(replacementCount)/float64(total) > 0.1 {
		return true
	}
	if total > 20 && float64(cjkExtBCount)/float64(total) > 0.05 {
		return true
	}
	return false
}

var (
	metaCharsetRe   = regexp.MustCompile(`(?i)<meta[^>]+charset=["']?([^"'\s>]+)`)
	metaHTTPEquivRe = regexp.MustCompile(`(?i)<meta[^>]+content=["'][^"']*charset=([^"'\s;]+)`)
)

// extractCharsetFromHTML looks for a declared charset in the first 1KiB of
// HTML, where <meta> tags conventionally live.
func extractCharsetFromHTML(html []byte) string {
	search := html
	if len(search) > 1024 {
		search = search[:1024]
	}

	if match := metaCharsetRe.FindSubmatch(search); len(match) > 1 {
		return string(match[1])
	}
	if match := metaHTTPEquivRe.FindSubmatch(search); len(match) > 1 {
		return string(match[1])
	}
	return ""
}

// decodeMIMEWord decodes RFC 2047 encoded words in headers (filenames,
// subjects), falling back to go-message's and golang.org/x/text's charset
// tables when the standard decoder's built-ins don't cover the charset.
func decodeMIMEWord(s string) string {
	if s == "" {
		return s
	}
	dec := &mime.WordDecoder{
		CharsetReader: func(charsetName string, r io.Reader) (io.Reader, error) {
			if reader, err := msgcharset.Reader(charsetName, r); err == nil {
				return reader, nil
			}
			enc, err := htmlindex.Get(charsetName)
			if err != nil {
				return nil, fmt.Errorf("unknown charset: %s", charsetName)
			}
			return enc.NewDecoder().Reader(r), nil
		},
	}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}
