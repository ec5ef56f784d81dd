package broadcast

import "testing"

func TestChannelName(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Vessel Alongside", "VESSEL_ALONGSIDE"},
		{"berth status", "BERTH_STATUS"},
		{"  Pilot   Boarding  ", "PILOT_BOARDING"},
		{"TIDES", "TIDES"},
		{"tabs\tand\nnewlines", "TABS_AND_NEWLINES"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := ChannelName(tc.name); got != tc.want {
			t.Errorf("ChannelName(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

// Derivation must be deterministic: the same display name always maps to
// the same channel, because subscribers compute it independently.
func TestChannelName_Deterministic(t *testing.T) {
	a := ChannelName("Vessel Alongside")
	b := ChannelName("Vessel Alongside")
	if a != b {
		t.Errorf("non-deterministic derivation: %q vs %q", a, b)
	}
}
