package normalize

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

const page = `<!DOCTYPE html><html><head><title>T</title><script>var x = 1;</script></head>
<body>
<nav>Menu</nav>
<main id="main">
  <article class="post lead">
    <h1>Deadlines</h1>
    <p>File by <strong>May 2</strong>.</p>
    <div class="post"><p>Nested</p></div>
  </article>
</main>
<div role="note">Aside text</div>
</body></html>`

func parse(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestSelect(t *testing.T) {
	// WHAT: The selector subset resolves the expected nodes.
	// WHY: content_selector narrows stored text to the useful part of a page.
	doc := parse(t, page)
	tests := []struct {
		sel  string
		want int
		tag  string
	}{
		{"article", 1, "article"},
		{".post", 1, "article"},
		{"#main", 1, "main"},
		{"article.post.lead", 1, "article"},
		{"div[role=note]", 1, "div"},
		{`div[role="note"]`, 1, "div"},
		{"div[role]", 1, "div"},
		{"main p", 2, "p"},
		{"h1, nav", 2, "nav"},
		{"section", 0, ""},
		{"main .missing", 0, ""},
	}
	for _, tc := range tests {
		got := Select(doc, tc.sel)
		if len(got) != tc.want {
			t.Errorf("%q: got %d nodes, want %d", tc.sel, len(got), tc.want)
			continue
		}
		if tc.want > 0 && got[0].Data != tc.tag {
			t.Errorf("%q: first node %q, want %q", tc.sel, got[0].Data, tc.tag)
		}
	}
}

func TestText_SkipsScriptsAndCollapses(t *testing.T) {
	doc := parse(t, page)
	got := Text(doc)
	if strings.Contains(got, "var x") {
		t.Errorf("script text leaked: %q", got)
	}
	if !strings.Contains(got, "File by May 2 .") && !strings.Contains(got, "File by May 2.") {
		t.Errorf("paragraph text missing: %q", got)
	}
	if strings.Contains(got, "  ") {
		t.Errorf("whitespace not collapsed: %q", got)
	}
}

func TestNormalize_PlainPassThrough(t *testing.T) {
	n := New(true)
	res, err := n.Normalize(Input{Body: []byte("just text"), ContentType: "text/plain; charset=utf-8", Selector: "article"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "just text" || res.Kind != KindText || res.SelectorMissed {
		t.Errorf("got %+v", res)
	}
}

func TestNormalize_SelectorText(t *testing.T) {
	// WHAT: Without markdown, a selector yields the text of the matches.
	n := New(false)
	res, err := n.Normalize(Input{Body: []byte(page), ContentType: "text/html", Selector: "article"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(res.Text, "Deadlines\n") || strings.Contains(res.Text, "Menu") {
		t.Errorf("text: %q", res.Text)
	}
	if res.SelectorMissed {
		t.Error("selector should have matched")
	}
}

func TestNormalize_SelectorMissKeepsDocument(t *testing.T) {
	// WHAT: A selector that matches nothing keeps the whole document.
	// WHY: A changed page layout must not wipe the source content.
	n := New(false)
	res, err := n.Normalize(Input{Body: []byte(page), ContentType: "text/html", Selector: ".gone"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.SelectorMissed {
		t.Error("SelectorMissed should be true")
	}
	if res.Text != page {
		t.Error("document should be kept unchanged")
	}
}

func TestNormalize_Markdown(t *testing.T) {
	// WHAT: HTML is sanitized and converted to markdown.
	// WHY: Markdown is what the compiled corpus feeds to the prompt.
	n := New(true)
	res, err := n.Normalize(Input{Body: []byte(page), ContentType: "text/html; charset=utf-8", Selector: "article", SourceURL: "https://example.com/x"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != KindMarkdown {
		t.Errorf("kind: %q", res.Kind)
	}
	if !strings.Contains(res.Text, "# Deadlines") || !strings.Contains(res.Text, "**May 2**") {
		t.Errorf("markdown: %q", res.Text)
	}
	if strings.Contains(res.Text, "Menu") || strings.Contains(res.Text, "var x") {
		t.Errorf("unselected content leaked: %q", res.Text)
	}
}

func TestNormalize_SniffsHTMLWithoutContentType(t *testing.T) {
	n := New(true)
	res, err := n.Normalize(Input{Body: []byte(page)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != KindMarkdown || strings.Contains(res.Text, "var x") {
		t.Errorf("got kind=%q text=%q", res.Kind, res.Text)
	}
}

func TestNormalize_InvalidPDF(t *testing.T) {
	n := New(true)
	if _, err := n.Normalize(Input{Body: []byte("%PDF-1.4 garbage"), ContentType: "application/pdf"}); err == nil {
		t.Fatal("expected error for invalid PDF")
	}
}

func TestShowText(t *testing.T) {
	// WHAT: Text-showing operators in a content stream become text.
	stream := []byte("BT\n/F1 12 Tf\n72 712 Td\n(Hello \\(PDF\\)) Tj\nT*\n[(Wor) -20 (ld)] TJ\n(caf\\351) '\nET\n")
	got := showText(stream)
	if !strings.HasPrefix(got, "Hello (PDF)\nWorld\ncaf") {
		t.Errorf("got %q", got)
	}
}
