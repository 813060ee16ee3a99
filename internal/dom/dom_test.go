package dom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func TestAttrAndClass(t *testing.T) {
	n := Element(atom.Span, "class", "jpdb-word known")
	require.True(t, HasClass(n, ClassWord))
	require.True(t, HasClass(n, "known"))
	require.False(t, HasClass(n, "jpdb"))

	SetAttr(n, "class", "jpdb-word new")
	v, ok := Attr(n, "class")
	require.True(t, ok)
	require.Equal(t, "jpdb-word new", v)

	SetAttr(n, "data-vid", "12")
	v, _ = Attr(n, "data-vid")
	require.Equal(t, "12", v)
	require.False(t, HasClass(Text("x"), "x"))
}

func TestTextContent_SkipsReadings(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<p><ruby>漢<rp>(</rp><rt>かん</rt><rp>)</rp>字</ruby>です</p>`))
	require.NoError(t, err)

	require.Equal(t, "漢字です", TextContent(doc, IsReadingAnnotation))
	require.Equal(t, "漢(かん)字です", TextContent(doc, nil))
}

func TestDetachAndAttached(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<p>a</p>`))
	require.NoError(t, err)

	text := firstText(doc)
	require.NotNil(t, text)
	require.True(t, Attached(text))

	InsertAfter(text, Text("b"))
	require.Equal(t, "b", text.NextSibling.Data)

	Detach(text)
	require.False(t, Attached(text))
	Detach(text) // no parent: no-op
}

func firstText(n *html.Node) *html.Node {
	if n.Type == html.TextNode {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := firstText(c); t != nil {
			return t
		}
	}
	return nil
}
