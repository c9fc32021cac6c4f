package tagindex

import (
	"reflect"
	"testing"

	"github.com/null-order/localbooru-sub000/internal/domain/booru"
)

func tag(label string, kind booru.TagKind) booru.Tag {
	return booru.Tag{Label: label, Norm: label, Kind: kind}
}

func key(norm string, kind booru.TagKind) booru.TagKey {
	return booru.TagKey{Kind: kind, Norm: norm}
}

func TestExtendBuildsBothDirections(t *testing.T) {
	x := New()
	x.Extend(1, []booru.Tag{tag("cat", booru.KindPrompt), tag("outdoors", booru.KindPrompt)})
	x.Extend(2, []booru.Tag{tag("cat", booru.KindPrompt)})

	if got := x.IDsFor(key("cat", booru.KindPrompt)); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("IDsFor(cat) = %v", got)
	}
	if got := x.IDsFor(key("outdoors", booru.KindPrompt)); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("IDsFor(outdoors) = %v", got)
	}
	if got := x.KeysFor(2); len(got) != 1 || got[0] != key("cat", booru.KindPrompt) {
		t.Errorf("KeysFor(2) = %v", got)
	}
}

func TestExtendReplacesMemberships(t *testing.T) {
	x := New()
	x.Extend(1, []booru.Tag{tag("cat", booru.KindPrompt)})
	x.Extend(1, []booru.Tag{tag("dog", booru.KindPrompt)})

	if got := x.IDsFor(key("cat", booru.KindPrompt)); len(got) != 0 {
		t.Errorf("stale membership survived: %v", got)
	}
	if got := x.IDsFor(key("dog", booru.KindPrompt)); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("IDsFor(dog) = %v", got)
	}
}

func TestSameNormDifferentKindAreDistinct(t *testing.T) {
	x := New()
	x.Extend(1, []booru.Tag{tag("blurry", booru.KindPrompt)})
	x.Extend(2, []booru.Tag{tag("blurry", booru.KindNegative)})

	if got := x.IDsFor(key("blurry", booru.KindPrompt)); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("IDsFor(prompt blurry) = %v", got)
	}
	if got := x.IDsFor(key("blurry", booru.KindNegative)); !reflect.DeepEqual(got, []int{2}) {
		t.Errorf("IDsFor(negative blurry) = %v", got)
	}
}

func TestRebuildDropsOldEntries(t *testing.T) {
	x := New()
	x.Extend(1, []booru.Tag{tag("cat", booru.KindPrompt)})
	x.HighlightCard(1)

	x.Rebuild(map[int][]booru.Tag{2: {tag("dog", booru.KindPrompt)}})

	if got := x.IDsFor(key("cat", booru.KindPrompt)); len(got) != 0 {
		t.Errorf("old entry survived rebuild: %v", got)
	}
	if got := x.IDsFor(key("dog", booru.KindPrompt)); !reflect.DeepEqual(got, []int{2}) {
		t.Errorf("IDsFor(dog) = %v", got)
	}
	if x.CardHighlighted(1) {
		t.Error("highlight must not survive a rebuild")
	}
}

func TestFacetOrdering(t *testing.T) {
	x := New()
	x.Extend(1, []booru.Tag{
		tag("zebra", booru.KindPrompt),
		tag("alice", booru.KindCharacter),
		tag("blurry", booru.KindNegative),
	})
	x.Extend(2, []booru.Tag{
		tag("zebra", booru.KindPrompt),
		tag("apple", booru.KindPrompt),
	})

	facets := x.Facets()
	var got []string
	for _, f := range facets {
		got = append(got, string(f.Kind)+":"+f.Label)
	}
	// Prompt group first (freq desc, label asc), then characters, then the rest.
	want := []string{"prompt:zebra", "prompt:apple", "character:alice", "negative:blurry"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("facet order = %v, want %v", got, want)
	}
	if facets[0].Freq != 2 {
		t.Errorf("zebra freq = %d", facets[0].Freq)
	}
}

func TestHighlightCardLightsFacets(t *testing.T) {
	x := New()
	x.Extend(1, []booru.Tag{tag("cat", booru.KindPrompt), tag("outdoors", booru.KindPrompt)})
	x.Extend(2, []booru.Tag{tag("cat", booru.KindPrompt)})

	x.HighlightCard(1)

	if !x.CardHighlighted(1) || x.CardHighlighted(2) {
		t.Error("only card 1 should be lit")
	}
	if !x.KeyHighlighted(key("cat", booru.KindPrompt)) || !x.KeyHighlighted(key("outdoors", booru.KindPrompt)) {
		t.Error("both of card 1's facets should be lit")
	}
}

func TestHighlightFacetLightsCards(t *testing.T) {
	x := New()
	x.Extend(1, []booru.Tag{tag("cat", booru.KindPrompt)})
	x.Extend(2, []booru.Tag{tag("cat", booru.KindPrompt)})
	x.Extend(3, []booru.Tag{tag("dog", booru.KindPrompt)})

	x.HighlightFacet(key("cat", booru.KindPrompt))

	if got := x.HighlightedCards(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("HighlightedCards = %v", got)
	}
}

func TestHighlightClearsPreviousMarks(t *testing.T) {
	x := New()
	x.Extend(1, []booru.Tag{tag("cat", booru.KindPrompt)})
	x.Extend(2, []booru.Tag{tag("dog", booru.KindPrompt)})

	x.HighlightCard(1)
	x.HighlightCard(2)

	if x.CardHighlighted(1) {
		t.Error("previous highlight must be cleared on a new one")
	}
	if x.KeyHighlighted(key("cat", booru.KindPrompt)) {
		t.Error("previous facet marks must be cleared")
	}

	x.ClearHighlight()
	if len(x.HighlightedCards()) != 0 || len(x.HighlightedKeys()) != 0 {
		t.Error("ClearHighlight left marks")
	}
}
