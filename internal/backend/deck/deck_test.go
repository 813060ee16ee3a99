package deck

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/max-kamps/jpd-breader-sub000/internal/backend"
	"github.com/max-kamps/jpd-breader-sub000/internal/card"
	"github.com/max-kamps/jpd-breader-sub000/internal/db"
	"github.com/max-kamps/jpd-breader-sub000/internal/errors"
)

func seed(t *testing.T, cards ...*card.Card) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	for _, c := range cards {
		if err := db.InsertCard(context.Background(), database, c); err != nil {
			t.Fatalf("InsertCard failed: %v", err)
		}
	}
	return database
}

func newCard(vid int64, spelling, reading string, tag card.Tag) *card.Card {
	return &card.Card{VID: vid, SID: 1, Spelling: spelling, Reading: reading, State: card.Plain(tag)}
}

func TestMatcher_LeftmostLongest(t *testing.T) {
	convey.Convey("leftmost longest matching", t, func() {
		m, err := newMatcher([]*card.Card{
			newCard(1, "学", "がく", card.New),
			newCard(2, "学校", "がっこう", card.New),
			newCard(3, "校長", "こうちょう", card.New),
			newCard(4, "今日", "きょう", card.New),
			newCard(5, "行く", "いく", card.New),
		})
		convey.So(err, convey.ShouldBeNil)

		got := m.find([]rune("今日は学校に行く"))
		convey.So(got, convey.ShouldResemble, []match{
			{start: 0, end: 2, key: card.Key{VID: 4, SID: 1}},
			{start: 3, end: 5, key: card.Key{VID: 2, SID: 1}},
			{start: 6, end: 8, key: card.Key{VID: 5, SID: 1}},
		})

		got = m.find([]rune("学校長"))
		convey.So(len(got), convey.ShouldEqual, 1)
		convey.So(got[0].key.VID, convey.ShouldEqual, 2)
	})

	convey.Convey("duplicate spellings keep the first card", t, func() {
		m, err := newMatcher([]*card.Card{
			newCard(1, "生", "なま", card.New),
			newCard(2, "生", "せい", card.New),
		})
		convey.So(err, convey.ShouldBeNil)
		convey.So(m.find([]rune("生"))[0].key.VID, convey.ShouldEqual, 1)
	})

	convey.Convey("empty deck matches nothing", t, func() {
		m, err := newMatcher(nil)
		convey.So(err, convey.ShouldBeNil)
		convey.So(m.empty(), convey.ShouldBeTrue)
		convey.So(m.find([]rune("何か")), convey.ShouldBeEmpty)
	})
}

func TestFurigana(t *testing.T) {
	convey.Convey("kana at either end is peeled off", t, func() {
		convey.So(furigana("読む", "よむ"), convey.ShouldResemble, []card.Ruby{{Base: "読", Reading: "よ"}, {Base: "む", Reading: "む"}})
		convey.So(furigana("お茶", "おちゃ"), convey.ShouldResemble, []card.Ruby{{Base: "お", Reading: "お"}, {Base: "茶", Reading: "ちゃ"}})
		convey.So(furigana("今日", "きょう"), convey.ShouldResemble, []card.Ruby{{Base: "今日", Reading: "きょう"}})
	})

	convey.Convey("kana-only spellings need no furigana", t, func() {
		convey.So(furigana("これ", "これ"), convey.ShouldBeNil)
		convey.So(furigana("テレビ", "てれび"), convey.ShouldBeNil)
		convey.So(furigana("猫", ""), convey.ShouldBeNil)
	})
}

func TestParse(t *testing.T) {
	convey.Convey("parse resolves tokens against the deck", t, func() {
		database := seed(t,
			newCard(1, "今日", "きょう", card.Known),
			newCard(2, "学校", "がっこう", card.New),
			newCard(3, "野家", "のや", card.NotInDeck),
		)
		b := New(database, WithDelay(5*time.Millisecond))

		results, delay, err := b.Parse(context.Background(), []string{"今日は学校", "𠮷野家", "なし"})
		convey.So(err, convey.ShouldBeNil)
		convey.So(delay, convey.ShouldEqual, 5*time.Millisecond)
		convey.So(len(results), convey.ShouldEqual, 3)

		convey.So(len(results[0]), convey.ShouldEqual, 2)
		first := results[0][0]
		convey.So(first.Start, convey.ShouldEqual, 0)
		convey.So(first.End, convey.ShouldEqual, 2)
		convey.So(first.Card.State, convey.ShouldResemble, card.Plain(card.Known))
		convey.So(first.Validate("今日"), convey.ShouldBeNil)

		convey.So(results[1][0].Start, convey.ShouldEqual, 2)
		convey.So(results[1][0].End, convey.ShouldEqual, 4)
		convey.So(results[2], convey.ShouldBeEmpty)
	})

	convey.Convey("an empty deck reports no results", t, func() {
		b := New(seed(t))
		_, _, err := b.Parse(context.Background(), []string{"何か"})
		convey.So(err, convey.ShouldEqual, backend.ErrNoResults)
	})

	convey.Convey("the matcher picks up imported cards", t, func() {
		database := seed(t, newCard(1, "猫", "ねこ", card.New))
		b := New(database)

		results, _, err := b.Parse(context.Background(), []string{"猫と犬"})
		convey.So(err, convey.ShouldBeNil)
		convey.So(len(results[0]), convey.ShouldEqual, 1)

		convey.So(db.InsertCard(context.Background(), database, newCard(2, "犬", "いぬ", card.New)), convey.ShouldBeNil)
		results, _, err = b.Parse(context.Background(), []string{"猫と犬"})
		convey.So(err, convey.ShouldBeNil)
		convey.So(len(results[0]), convey.ShouldEqual, 2)
	})
}

func TestMutate(t *testing.T) {
	convey.Convey("mutations move the stored state and log a review", t, func() {
		ctx := context.Background()
		database := seed(t, newCard(1, "猫", "ねこ", card.NotInDeck))
		b := New(database)
		key := card.Key{VID: 1, SID: 1}

		changes, _, err := b.Mutate(ctx, backend.Mutation{Key: key, Action: backend.ActionAdd})
		convey.So(err, convey.ShouldBeNil)
		convey.So(changes, convey.ShouldResemble, []card.StateChange{{Key: key, State: card.Plain(card.New)}})

		changes, _, err = b.Mutate(ctx, backend.Mutation{Key: key, Action: backend.ActionReview, Grade: backend.GradeOkay})
		convey.So(err, convey.ShouldBeNil)
		convey.So(changes[0].State, convey.ShouldResemble, card.Plain(card.Learning))

		stored, err := db.GetCard(ctx, database, key)
		convey.So(err, convey.ShouldBeNil)
		convey.So(stored.State, convey.ShouldResemble, card.Plain(card.Learning))

		reviews, err := db.ListReviews(ctx, database, key)
		convey.So(err, convey.ShouldBeNil)
		convey.So(len(reviews), convey.ShouldEqual, 2)
		convey.So(reviews[0].Action, convey.ShouldEqual, "review")
		convey.So(reviews[0].ID > reviews[1].ID, convey.ShouldBeTrue)
	})

	convey.Convey("invalid mutations and unknown cards", t, func() {
		b := New(seed(t, newCard(1, "猫", "ねこ", card.New)))

		_, _, err := b.Mutate(context.Background(), backend.Mutation{Key: card.Key{VID: 1, SID: 1}, Action: backend.ActionReview})
		convey.So(errors.Is(err, errors.ErrInvalidRequest), convey.ShouldBeTrue)

		_, _, err = b.Mutate(context.Background(), backend.Mutation{Key: card.Key{VID: 2, SID: 1}, Action: backend.ActionAdd})
		convey.So(errors.Is(err, errors.ErrNotFound), convey.ShouldBeTrue)
	})
}

func TestTransition(t *testing.T) {
	convey.Convey("state transition table", t, func() {
		m := func(a backend.Action, g backend.Grade) backend.Mutation {
			return backend.Mutation{Action: a, Grade: g}
		}
		locked := card.State{Tag: card.Learning, Modifier: card.Locked}

		convey.So(transition(card.Plain(card.NotInDeck), m(backend.ActionAdd, "")), convey.ShouldResemble, card.Plain(card.New))
		convey.So(transition(card.Plain(card.Known), m(backend.ActionAdd, "")), convey.ShouldResemble, card.Plain(card.Known))
		convey.So(transition(locked, m(backend.ActionRemove, "")), convey.ShouldResemble, card.Plain(card.NotInDeck))
		convey.So(transition(card.Plain(card.Known), m(backend.ActionBlacklist, "")), convey.ShouldResemble, card.Plain(card.Blacklisted))
		convey.So(transition(card.Plain(card.Blacklisted), m(backend.ActionUnblacklist, "")), convey.ShouldResemble, card.Plain(card.NotInDeck))
		convey.So(transition(card.Plain(card.New), m(backend.ActionUnblacklist, "")), convey.ShouldResemble, card.Plain(card.New))
		convey.So(transition(locked, m(backend.ActionNeverForget, "")), convey.ShouldResemble, card.State{Tag: card.NeverForget, Modifier: card.Locked})

		convey.So(transition(locked, m(backend.ActionReview, backend.GradeFail)), convey.ShouldResemble, card.State{Tag: card.Failed, Modifier: card.Locked})
		convey.So(transition(card.Plain(card.Due), m(backend.ActionReview, backend.GradeOkay)), convey.ShouldResemble, card.Plain(card.Known))
		convey.So(transition(card.Plain(card.New), m(backend.ActionReview, backend.GradeOkay)), convey.ShouldResemble, card.Plain(card.Learning))
		convey.So(transition(card.Plain(card.Known), m(backend.ActionReview, backend.GradeHard)), convey.ShouldResemble, card.Plain(card.Learning))
		convey.So(transition(card.Plain(card.New), m(backend.ActionReview, backend.GradeEasy)), convey.ShouldResemble, card.Plain(card.Known))
		convey.So(transition(card.Plain(card.Blacklisted), m(backend.ActionReview, backend.GradeEasy)), convey.ShouldResemble, card.Plain(card.Blacklisted))
	})
}
