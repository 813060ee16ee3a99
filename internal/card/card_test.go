package card

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseState(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    State
		wantErr bool
	}{
		{"empty is not in deck", nil, Plain(NotInDeck), false},
		{"single tag", []string{"known"}, Plain(Known), false},
		{"modifier first", []string{"redundant", "learning"}, State{Tag: Learning, Modifier: Redundant}, false},
		{"modifier last", []string{"new", "locked"}, State{Tag: New, Modifier: Locked}, false},
		{"unknown tag", []string{"mastered"}, State{}, true},
		{"two tags", []string{"new", "known"}, State{}, true},
		{"modifier alone", []string{"locked"}, State{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseState(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestClassString(t *testing.T) {
	require.Equal(t, "jpdb-word known", ClassString(Plain(Known)))
	require.Equal(t, "jpdb-word redundant learning", ClassString(State{Tag: Learning, Modifier: Redundant}))
	require.Equal(t, "jpdb-word not-in-deck", ClassString(State{}))
}

func TestState_JSON(t *testing.T) {
	data, err := json.Marshal(State{Tag: Due, Modifier: Locked})
	require.NoError(t, err)
	require.JSONEq(t, `["locked","due"]`, string(data))

	var s State
	require.NoError(t, json.Unmarshal([]byte(`null`), &s))
	require.Equal(t, Plain(NotInDeck), s)

	require.Error(t, json.Unmarshal([]byte(`["bogus"]`), &s))
}

func TestToken_Validate(t *testing.T) {
	c := &Card{VID: 1, SID: 2, Spelling: "読む"}

	tok := NewToken(0, 2, c, []Ruby{{"読", "よ"}, {"む", "む"}})
	require.NoError(t, tok.Validate("読む"))
	require.Error(t, tok.Validate("読め"))

	bad := tok
	bad.Length = 3
	require.Error(t, bad.Validate("読む"))

	noCard := NewToken(0, 2, nil, nil)
	require.Error(t, noCard.Validate("読む"))

	plain := NewToken(0, 2, c, nil)
	require.NoError(t, plain.Validate("anything"))
}

func TestRuby_NeedsReading(t *testing.T) {
	require.True(t, Ruby{"読", "よ"}.NeedsReading())
	require.False(t, Ruby{"む", "む"}.NeedsReading())
	require.False(t, Ruby{"は", ""}.NeedsReading())
}

func TestUTF16(t *testing.T) {
	require.Equal(t, 4, UTF16Len("今日は!"))
	require.Equal(t, 3, UTF16Len("𠮷a")) // astral rune counts twice

	head, tail, err := SplitUTF16("今日は", 2)
	require.NoError(t, err)
	require.Equal(t, "今日", head)
	require.Equal(t, "は", tail)

	head, tail, err = SplitUTF16("ab", 2)
	require.NoError(t, err)
	require.Equal(t, "ab", head)
	require.Equal(t, "", tail)

	_, _, err = SplitUTF16("𠮷a", 1)
	require.Error(t, err)
	_, _, err = SplitUTF16("ab", 3)
	require.Error(t, err)

	mid, err := SliceUTF16("𠮷今日は", 2, 4)
	require.NoError(t, err)
	require.Equal(t, "今日", mid)

	require.Equal(t, []int{0, 2, 3, 4}, RuneToUTF16Offsets("𠮷今日"))
}

func TestKey_String(t *testing.T) {
	require.Equal(t, "1234/5", Key{VID: 1234, SID: 5}.String())
	require.Equal(t, Key{VID: 1, SID: 2}, (&Card{VID: 1, SID: 2}).Key())
}
