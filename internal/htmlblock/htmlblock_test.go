package htmlblock

import (
	"testing"
)

func TestConvert_ParagraphsAndHeadings(t *testing.T) {
	blocks := Convert(`<h1>Title</h1><p>Hello <b>world</b></p>`, nil)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d: %+v", len(blocks), blocks)
	}
	if blocks[0]["type"] != "heading_1" {
		t.Errorf("expected first block heading_1, got %v", blocks[0]["type"])
	}
	if blocks[1]["type"] != "paragraph" {
		t.Errorf("expected second block paragraph, got %v", blocks[1]["type"])
	}
}

func TestConvert_ResolvesInlineImageByContentID(t *testing.T) {
	inlineMap := map[string]InlineImage{
		"logo123": {FileUploadID: "upload-1", ContentType: "image/png"},
	}
	blocks := Convert(`<p><img src="cid:logo123" alt="logo"></p>`, inlineMap)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 image block, got %d: %+v", len(blocks), blocks)
	}
	if blocks[0]["type"] != "image" {
		t.Fatalf("expected image block, got %v", blocks[0]["type"])
	}
	img := blocks[0]["image"].(map[string]any)
	fu := img["file_upload"].(map[string]any)
	if fu["id"] != "upload-1" {
		t.Errorf("expected resolved upload id, got %v", fu["id"])
	}
}

func TestConvert_UnresolvedImageDropped(t *testing.T) {
	blocks := Convert(`<p><img src="cid:missing"></p>`, nil)
	if len(blocks) != 0 {
		t.Errorf("expected unresolved image to be dropped, got %d blocks", len(blocks))
	}
}

func TestConvert_ListItems(t *testing.T) {
	blocks := Convert(`<ul><li>one</li><li>two</li></ul>`, nil)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 list items, got %d", len(blocks))
	}
	for _, b := range blocks {
		if b["type"] != "bulleted_list_item" {
			t.Errorf("expected bulleted_list_item, got %v", b["type"])
		}
	}
}

func TestConvert_Blockquote(t *testing.T) {
	blocks := Convert(`<blockquote>quoted text</blockquote>`, nil)
	if len(blocks) != 1 || blocks[0]["type"] != "quote" {
		t.Fatalf("expected 1 quote block, got %+v", blocks)
	}
}

func TestConvert_Divider(t *testing.T) {
	blocks := Convert(`<p>a</p><hr><p>b</p>`, nil)
	var sawDivider bool
	for _, b := range blocks {
		if b["type"] == "divider" {
			sawDivider = true
		}
	}
	if !sawDivider {
		t.Errorf("expected a divider block, got %+v", blocks)
	}
}

func TestConvert_SanitizesScriptTags(t *testing.T) {
	blocks := Convert(`<p>safe</p><script>alert(1)</script>`, nil)
	for _, b := range blocks {
		if para, ok := b["paragraph"].(map[string]any); ok {
			rt := para["rich_text"].([]map[string]any)
			for _, seg := range rt {
				text := seg["text"].(map[string]any)["content"].(string)
				if text == "alert(1)" {
					t.Error("expected script content to be stripped by sanitizer")
				}
			}
		}
	}
}

func TestStripTags(t *testing.T) {
	got := stripTags("<p>hello <b>world</b></p>")
	if got != "hello world" {
		t.Errorf("stripTags() = %q, want %q", got, "hello world")
	}
}
