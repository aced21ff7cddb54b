package mimeparse

import (
	"strings"
	"testing"
)

const multipartExample = "From: a@example.com\r\n" +
	"To: b@example.com\r\n" +
	"Subject: test\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"BOUNDARY\"\r\n" +
	"\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"hello world\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>hello</p>\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: image/png\r\n" +
	"Content-Disposition: inline\r\n" +
	"Content-ID: <img1>\r\n" +
	"\r\n" +
	"fakepngbytes\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"report.pdf\"\r\n" +
	"\r\n" +
	"fakepdfbytes\r\n" +
	"--BOUNDARY--\r\n"

func TestParse_MultipartExtractsTextHTMLAndAttachments(t *testing.T) {
	result := Parse([]byte(multipartExample))

	if !strings.Contains(result.BodyText, "hello world") {
		t.Errorf("expected body text to contain plain part, got %q", result.BodyText)
	}
	if !strings.Contains(result.BodyHTML, "<p>hello</p>") {
		t.Errorf("expected body html to contain html part, got %q", result.BodyHTML)
	}
	if len(result.Attachments) != 2 {
		t.Fatalf("expected 2 attachments (inline image + pdf), got %d", len(result.Attachments))
	}

	var inline, file *Attachment
	for i := range result.Attachments {
		if result.Attachments[i].IsInline {
			inline = &result.Attachments[i]
		} else {
			file = &result.Attachments[i]
		}
	}
	if inline == nil || inline.ContentID != "img1" {
		t.Errorf("expected inline attachment with content id img1, got %+v", inline)
	}
	if file == nil || file.Filename != "report.pdf" {
		t.Errorf("expected file attachment named report.pdf, got %+v", file)
	}
}

func TestParse_PlainTextFallbackOnUnparsable(t *testing.T) {
	result := Parse([]byte("not a valid mime message at all \x00\x01"))
	if result.BodyText == "" {
		t.Error("expected fallback to raw bytes as plain text")
	}
}

func TestExtractCharsetFromHTML(t *testing.T) {
	html := []byte(`<html><head><meta charset="gb2312"></head><body></body></html>`)
	if got := extractCharsetFromHTML(html); got != "gb2312" {
		t.Errorf("extractCharsetFromHTML() = %q, want gb2312", got)
	}
}

func TestExtractCharsetFromHTML_HTTPEquivForm(t *testing.T) {
	html := []byte(`<meta http-equiv="Content-Type" content="text/html; charset=big5">`)
	if got := extractCharsetFromHTML(html); got != "big5" {
		t.Errorf("extractCharsetFromHTML() = %q, want big5", got)
	}
}

func TestDecodeCharset_PassesThroughValidUTF8(t *testing.T) {
	got := decodeCharset([]byte("hello"), "utf-8")
	if got != "hello" {
		t.Errorf("decodeCharset() = %q, want hello", got)
	}
}

func TestDecodeMIMEWord(t *testing.T) {
	got := decodeMIMEWord("=?UTF-8?B?aGVsbG8=?=")
	if got != "hello" {
		t.Errorf("decodeMIMEWord() = %q, want hello", got)
	}
}

func TestExtensionForContentType(t *testing.T) {
	if got := extensionForContentType("image/png"); got != ".png" {
		t.Errorf("extensionForContentType(image/png) = %q, want .png", got)
	}
	if got := extensionForContentType("application/octet-stream"); got != ".bin" {
		t.Errorf("extensionForContentType(application/octet-stream) = %q, want .bin", got)
	}
}
