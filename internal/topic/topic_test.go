package topic

import "testing"

func TestMatches(t *testing.T) {
	cases := []struct {
		sub, pub string
		want     bool
	}{
		{"/broker/test", "/broker/test", true},
		{"/broker/test", "/broker/test/sub", true},
		{"/broker/test", "/broker/testing", false},
		{"/broker", "/broker/test/sub", true},
		{"/broker/test/sub", "/broker/test", false},
		{"", "/anything", true},
	}
	for _, c := range cases {
		if got := Matches(Topic(c.sub), Topic(c.pub)); got != c.want {
			t.Errorf("Matches(%q, %q) = %v, want %v", c.sub, c.pub, got, c.want)
		}
	}
}

func TestCloneTopic(t *testing.T) {
	if got, want := CloneTopic("mystore"), Topic("mystore/clone"); got != want {
		t.Errorf("CloneTopic() = %q, want %q", got, want)
	}
}
