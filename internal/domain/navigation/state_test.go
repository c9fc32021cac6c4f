package navigation

import "testing"

func TestEncodeOmitsZeroFields(t *testing.T) {
	st := State{Query: "", DetailID: NoDetail, Anchor: 0, ProbeToken: ""}
	if got := st.Encode(); got != "" {
		t.Errorf("expected empty encoding, got %q", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []State{
		{Query: "landscape", DetailID: NoDetail},
		{Query: "landscape, !uc:blurry", DetailID: 7, Anchor: 120},
		{Query: "", DetailID: 0, Anchor: 3, ProbeToken: "image:42"},
		{Query: "outdoors", DetailID: NoDetail, ProbeToken: "text:red+bicycle"},
	}
	for _, st := range tests {
		raw := st.Encode()
		back := Decode(raw)
		if !back.Equal(st) {
			t.Errorf("round trip mismatch for %q: %+v != %+v", raw, back, st)
		}
	}
}

func TestDecodeTolerance(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want State
	}{
		{"empty", "", State{DetailID: NoDetail}},
		{"bad detail", "q=cat&detail=xyz", State{Query: "cat", DetailID: NoDetail}},
		{"negative detail", "detail=-3", State{DetailID: NoDetail}},
		{"bad pos", "pos=abc", State{DetailID: NoDetail}},
		{"negative pos", "pos=-4", State{DetailID: NoDetail}},
		{"bad clip token", "clip=vector%3AAAAA", State{DetailID: NoDetail}},
		{"valid clip", "clip=image%3A42", State{DetailID: NoDetail, ProbeToken: "image:42"}},
		{"detail zero is valid", "detail=0", State{DetailID: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.raw)
			if !got.Equal(tt.want) {
				t.Errorf("Decode(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDecodeNeverPanicsOnGarbage(t *testing.T) {
	for _, raw := range []string{"%%%", ";;;=;;;", "q=%zz", "detail=9999999999999999999999"} {
		_ = Decode(raw)
	}
}
