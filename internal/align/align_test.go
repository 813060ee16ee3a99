package align

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/max-kamps/jpd-breader-sub000/internal/card"
	"github.com/max-kamps/jpd-breader-sub000/internal/dom"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
	"github.com/max-kamps/jpd-breader-sub000/internal/fragment"
	"github.com/max-kamps/jpd-breader-sub000/internal/index"
)

func paragraph(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	p := find(doc, "p")
	require.NotNil(t, p)
	return p
}

func find(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := find(c, name); f != nil {
			return f
		}
	}
	return nil
}

func render(t *testing.T, n *html.Node) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, html.Render(&buf, n))
	return buf.String()
}

func tok(start, end int, vid int64, furigana ...card.Ruby) card.Token {
	c := &card.Card{VID: vid, State: card.Plain(card.New)}
	return card.NewToken(start, end, c, furigana)
}

func TestApply_Sentence(t *testing.T) {
	p := paragraph(t, `<p>今日は<b>学校</b>に行く</p>`)
	frags := fragment.Extract([]*html.Node{p}, nil)
	idx := index.New()

	err := New(idx).Apply(frags, []card.Token{
		tok(0, 2, 1, card.Ruby{Base: "今日", Reading: "きょう"}),
		tok(2, 3, 2),
		tok(3, 5, 3, card.Ruby{Base: "学", Reading: "がく"}, card.Ruby{Base: "校", Reading: "こう"}),
		tok(5, 6, 4),
		tok(6, 8, 5, card.Ruby{Base: "行", Reading: "い"}, card.Ruby{Base: "く", Reading: "く"}),
	}, false)
	require.NoError(t, err)

	require.Equal(t, `<p>`+
		`<span class="jpdb-word new" data-vid="1" data-sid="0"><ruby>今日<rt>きょう</rt></ruby></span>`+
		`<span class="jpdb-word new" data-vid="2" data-sid="0">は</span>`+
		`<b><span class="jpdb-word new" data-vid="3" data-sid="0"><ruby>学<rt>がく</rt></ruby><ruby>校<rt>こう</rt></ruby></span></b>`+
		`<span class="jpdb-word new" data-vid="4" data-sid="0">に</span>`+
		`<span class="jpdb-word new" data-vid="5" data-sid="0"><ruby>行<rt>い</rt></ruby>く</span>`+
		`</p>`, render(t, p))
	require.Equal(t, "今日は学校に行く", BaseText(p))
	require.Equal(t, "きょうはがっこうにいく", ReadingText(p))
	require.Equal(t, 5, idx.Len())
}

func TestApply_NoTokensWrapsEverythingUnparsed(t *testing.T) {
	p := paragraph(t, `<p>あ<i>い</i>う</p>`)
	frags := fragment.Extract([]*html.Node{p}, nil)
	orig := frags[1].Node

	require.NoError(t, New(index.New()).Apply(frags, nil, false))
	require.Equal(t, `<p><span class="jpdb-word unparsed">あ</span><i><span class="jpdb-word unparsed">い</span></i><span class="jpdb-word unparsed">う</span></p>`, render(t, p))
	require.True(t, dom.HasClass(orig.Parent, dom.ClassUnparsed), "whole fragments are wrapped, not replaced")
	require.Equal(t, "あいう", BaseText(p))
}

func TestApply_ReadingRoundTrip(t *testing.T) {
	p := paragraph(t, `<p>読む</p>`)
	frags := fragment.Extract([]*html.Node{p}, nil)
	idx := index.New()
	token := tok(0, 2, 7, card.Ruby{Base: "読", Reading: "よ"}, card.Ruby{Base: "む", Reading: "む"})

	require.NoError(t, New(idx).Apply(frags, []card.Token{token}, false))

	_, elems, ok := idx.Lookup(token.Card.Key())
	require.True(t, ok)
	require.Len(t, elems, 1)
	w := elems[0].Node
	require.Equal(t, `<span class="jpdb-word new" data-vid="7" data-sid="0"><ruby>読<rt>よ</rt></ruby>む</span>`, render(t, w))
	require.Equal(t, "読む", BaseText(w))
	require.Equal(t, "よむ", ReadingText(w))
}

func TestApply_TokenAcrossFragments(t *testing.T) {
	p := paragraph(t, `<p>学<i>校</i>へ</p>`)
	frags := fragment.Extract([]*html.Node{p}, nil)
	require.Len(t, frags, 3)

	err := New(index.New()).Apply(frags, []card.Token{
		tok(0, 2, 1, card.Ruby{Base: "学校", Reading: "がっこう"}),
	}, false)
	require.NoError(t, err)
	require.Equal(t, `<p><span class="jpdb-word new" data-vid="1" data-sid="0"><ruby>学校<rt>がっこう</rt></ruby></span><i></i><span class="jpdb-word unparsed">へ</span></p>`, render(t, p))
	require.Equal(t, "学校へ", BaseText(p))
}

func TestApply_TokenInsideFragment(t *testing.T) {
	p := paragraph(t, `<p>ああ猫だ</p>`)
	frags := fragment.Extract([]*html.Node{p}, nil)

	require.NoError(t, New(index.New()).Apply(frags, []card.Token{tok(2, 3, 9, card.Ruby{Base: "猫", Reading: "ねこ"})}, false))
	require.Equal(t, `<p><span class="jpdb-word unparsed">ああ</span><span class="jpdb-word new" data-vid="9" data-sid="0"><ruby>猫<rt>ねこ</rt></ruby></span><span class="jpdb-word unparsed">だ</span></p>`, render(t, p))
}

func TestApply_PreserveOriginalNodes(t *testing.T) {
	p := paragraph(t, `<p>今日は</p>`)
	frags := fragment.Extract([]*html.Node{p}, nil)
	orig := frags[0].Node

	require.NoError(t, New(index.New()).Apply(frags, []card.Token{tok(0, 2, 1)}, true))
	require.Equal(t, `<p><span class="jpdb-word new" data-vid="1" data-sid="0"><span class="jpdb-hidden" style="display:none !important">今日は</span>今日</span><span class="jpdb-word unparsed">は</span></p>`, render(t, p))

	tomb := orig.Parent
	require.True(t, dom.HasClass(tomb, dom.ClassHidden))
	require.True(t, dom.HasClass(tomb.Parent, dom.ClassWord))
	require.Equal(t, "今日は", BaseText(p))
	require.Equal(t, "今日は", fragment.Text(fragment.Extract([]*html.Node{p}, nil)))
}

func TestApply_DiscardsOriginalNodesByDefault(t *testing.T) {
	p := paragraph(t, `<p>今日は</p>`)
	frags := fragment.Extract([]*html.Node{p}, nil)
	orig := frags[0].Node

	require.NoError(t, New(index.New()).Apply(frags, []card.Token{tok(0, 2, 1)}, false))
	require.Nil(t, orig.Parent)
}

func TestApply_IndexFanOutAcrossCalls(t *testing.T) {
	idx := index.New()
	e := New(idx)
	shared := &card.Card{VID: 42, SID: 1, State: card.Plain(card.New)}

	for _, src := range []string{`<p>猫が</p>`, `<p>白い猫</p>`} {
		p := paragraph(t, src)
		frags := fragment.Extract([]*html.Node{p}, nil)
		start := strings.Index(fragment.Text(frags), "猫")
		start = card.UTF16Len(fragment.Text(frags)[:start])
		require.NoError(t, e.Apply(frags, []card.Token{card.NewToken(start, start+1, shared, nil)}, false))
	}

	class, elems, ok := idx.Lookup(shared.Key())
	require.True(t, ok)
	require.Equal(t, "jpdb-word new", class)
	require.Len(t, elems, 2)

	require.Equal(t, 2, idx.ApplyStateChange(shared.Key(), card.State{Tag: card.Learning, Modifier: card.Redundant}))
	for _, el := range elems {
		v, _ := dom.Attr(el.Node, "class")
		require.Equal(t, "jpdb-word redundant learning", v)
	}
}

func TestApply_RubyFragments(t *testing.T) {
	const src = `<p>私は<ruby>漢<rt>かん</rt>字<rt>じ</rt></ruby>が好き</p>`

	t.Run("unparsed ruby is untouched", func(t *testing.T) {
		p := paragraph(t, src)
		frags := fragment.Extract([]*html.Node{p}, nil)
		ruby := frags[1].Node

		require.NoError(t, New(index.New()).Apply(frags, []card.Token{tok(0, 1, 1), tok(1, 2, 2)}, false))
		require.Same(t, p, ruby.Parent)
		require.Equal(t, "私は漢字が好き", BaseText(p))
	})

	t.Run("token covering a ruby takes it whole", func(t *testing.T) {
		p := paragraph(t, src)
		frags := fragment.Extract([]*html.Node{p}, nil)
		ruby := frags[1].Node

		require.NoError(t, New(index.New()).Apply(frags, []card.Token{tok(2, 4, 3, card.Ruby{Base: "漢字", Reading: "かんじ"})}, false))
		require.True(t, dom.HasClass(ruby.Parent, dom.ClassWord))
		require.Equal(t, `<span class="jpdb-word new" data-vid="3" data-sid="0"><ruby>漢<rt>かん</rt>字<rt>じ</rt></ruby></span>`, render(t, ruby.Parent))
		require.Equal(t, "かんじ", ReadingText(ruby.Parent))
	})

	t.Run("token starting inside an absorbed ruby is dropped", func(t *testing.T) {
		p := paragraph(t, src)
		frags := fragment.Extract([]*html.Node{p}, nil)
		idx := index.New()
		first, second := tok(1, 3, 4), tok(3, 5, 5)

		require.NoError(t, New(idx).Apply(frags, []card.Token{first, second}, false))
		_, elems, ok := idx.Lookup(first.Card.Key())
		require.True(t, ok)
		require.Equal(t, "は漢字", BaseText(elems[0].Node))
		_, _, ok = idx.Lookup(second.Card.Key())
		require.False(t, ok)
		require.Equal(t, "私は漢字が好き", BaseText(p))
	})
}

func TestApply_TokensPastTheEndAreSkipped(t *testing.T) {
	p := paragraph(t, `<p>猫</p>`)
	frags := fragment.Extract([]*html.Node{p}, nil)
	idx := index.New()

	require.NoError(t, New(idx).Apply(frags, []card.Token{tok(0, 1, 1), tok(1, 3, 2), tok(5, 6, 3)}, false))
	require.Equal(t, 1, idx.Len())
}

func TestApply_Astral(t *testing.T) {
	p := paragraph(t, `<p>𠮷野家</p>`)
	frags := fragment.Extract([]*html.Node{p}, nil)

	require.NoError(t, New(index.New()).Apply(frags, []card.Token{tok(0, 2, 1), tok(2, 4, 2)}, false))
	require.Equal(t, `<p><span class="jpdb-word new" data-vid="1" data-sid="0">𠮷</span><span class="jpdb-word new" data-vid="2" data-sid="0">野家</span></p>`, render(t, p))
}

func TestApply_Preconditions(t *testing.T) {
	const src = `<p>今日は<b>学校</b></p>`
	shifted := func(frags []fragment.Fragment) []fragment.Fragment {
		frags[1].Start++
		return frags
	}
	badLength := tok(0, 2, 1)
	badLength.Length = 3

	tests := []struct {
		name   string
		frags  func([]fragment.Fragment) []fragment.Fragment
		tokens []card.Token
	}{
		{"fragments not contiguous", shifted, nil},
		{"tokens overlap", nil, []card.Token{tok(0, 2, 1), tok(1, 3, 2)}},
		{"tokens unsorted", nil, []card.Token{tok(3, 5, 1), tok(0, 2, 2)}},
		{"length mismatch", nil, []card.Token{badLength}},
		{"runs past the end", nil, []card.Token{tok(3, 9, 1)}},
		{"furigana does not spell the text", nil, []card.Token{tok(0, 2, 1, card.Ruby{Base: "明日", Reading: "あした"})}},
		{"missing card", nil, []card.Token{card.NewToken(0, 1, nil, nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := paragraph(t, src)
			frags := fragment.Extract([]*html.Node{p}, nil)
			if tt.frags != nil {
				frags = tt.frags(frags)
			}
			before := render(t, p)

			err := New(index.New()).Apply(frags, tt.tokens, false)
			require.Error(t, err)
			require.True(t, errors.Is(err, errors.ErrPrecondition))
			require.Equal(t, before, render(t, p), "document must be untouched")
		})
	}
}

func TestApply_SurrogateSplitIsRejected(t *testing.T) {
	p := paragraph(t, `<p>𠮷野家</p>`)
	frags := fragment.Extract([]*html.Node{p}, nil)

	err := New(index.New()).Apply(frags, []card.Token{tok(1, 3, 1)}, false)
	require.True(t, errors.Is(err, errors.ErrPrecondition))
}

func TestApply_StaleFragments(t *testing.T) {
	p := paragraph(t, `<p>今日</p>`)
	frags := fragment.Extract([]*html.Node{p}, nil)
	e := New(index.New())

	require.NoError(t, e.Apply(frags, []card.Token{tok(0, 2, 1)}, false))
	err := e.Apply(frags, []card.Token{tok(0, 2, 1)}, false)
	require.True(t, errors.Is(err, errors.ErrPrecondition))
}
