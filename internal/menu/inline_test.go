package menu

import (
	"context"
	"testing"

	"github.com/amirpoya/Telegram-auto/internal/settings"
	kit "github.com/amirpoya/Telegram-auto/internal/transport"
)

func inlineQuery(id string, from int64) *kit.InlineQuery {
	return &kit.InlineQuery{ID: id, FromID: from}
}

func TestInlineAnswersOwnerWithStoredPost(t *testing.T) {
	m, st, ad, _ := newTestMenu(t)
	if _, err := st.Mutate(func(s *settings.Settings) error {
		s.Text = "sale is live"
		s.Buttons = kit.ButtonLayout{{{Label: "Shop", URL: "https://shop.example.com"}}}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := m.InlineHandler(ad, func() bool { return true }, func() []int64 { return []int64{testOwner} })
	h(context.Background(), inlineQuery("q1", testOwner))

	if len(ad.inline) != 1 {
		t.Fatalf("expected one inline answer, got %d", len(ad.inline))
	}
	ans := ad.inline[0]
	if ans.queryID != "q1" || len(ans.results) != 1 {
		t.Fatalf("unexpected answer: %+v", ans)
	}
	res := ans.results[0]
	if res.ID == "" {
		t.Fatal("result needs a unique id")
	}
	if res.Text != "sale is live" || res.Buttons.Empty() {
		t.Fatalf("result should carry the stored payload: %+v", res)
	}

	// A second answer gets a fresh result id.
	h(context.Background(), inlineQuery("q2", testOwner))
	if ad.inline[1].results[0].ID == res.ID {
		t.Fatal("result ids must not repeat")
	}
}

func TestInlineNonOwnerGetsEmptyAnswer(t *testing.T) {
	m, st, ad, _ := newTestMenu(t)
	if _, err := st.Mutate(func(s *settings.Settings) error {
		s.Text = "secret promo"
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := m.InlineHandler(ad, func() bool { return true }, func() []int64 { return []int64{testOwner} })
	h(context.Background(), inlineQuery("q1", 999))

	if len(ad.inline) != 1 {
		t.Fatalf("expected an (empty) answer, got %d", len(ad.inline))
	}
	if len(ad.inline[0].results) != 0 {
		t.Fatalf("non-owner must get no results: %+v", ad.inline[0].results)
	}
}

func TestInlineDisabledStaysSilent(t *testing.T) {
	m, _, ad, _ := newTestMenu(t)

	h := m.InlineHandler(ad, func() bool { return false }, func() []int64 { return []int64{testOwner} })
	h(context.Background(), inlineQuery("q1", testOwner))

	if len(ad.inline) != 0 {
		t.Fatalf("disabled inline mode must not answer, got %+v", ad.inline)
	}
}

func TestInlineEmptyPayloadAnswersNothing(t *testing.T) {
	m, st, ad, _ := newTestMenu(t)
	if _, err := st.Mutate(func(s *settings.Settings) error {
		s.Text = ""
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := m.InlineHandler(ad, func() bool { return true }, func() []int64 { return []int64{testOwner} })
	h(context.Background(), inlineQuery("q1", testOwner))

	if len(ad.inline) != 1 || len(ad.inline[0].results) != 0 {
		t.Fatalf("empty payload should produce an empty answer: %+v", ad.inline)
	}
}
