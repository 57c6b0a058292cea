package metrics

import "testing"

func TestLabelSetEquality(t *testing.T) {
	a := NewLabelSet(map[string]string{"service": "a", "region": "us"})
	b := NewLabelSet(map[string]string{"region": "us", "service": "a"})

	if !a.Equal(b) {
		t.Errorf("label sets with same pairs should be equal: %v vs %v", a, b)
	}
	if a.Canonical() != "region=us,service=a" {
		t.Errorf("unexpected canonical form: %q", a.Canonical())
	}

	c := NewLabelSet(map[string]string{"service": "b", "region": "us"})
	if a.Equal(c) {
		t.Errorf("label sets with different values should not be equal")
	}
}

func TestLabelSetContains(t *testing.T) {
	series := NewLabelSet(map[string]string{"service": "a", "region": "us"})

	cases := []struct {
		filter map[string]string
		want   bool
	}{
		{map[string]string{"service": "a"}, true},
		{map[string]string{"service": "b"}, false},
		{map[string]string{"service": "a", "region": "us"}, true},
		{map[string]string{"service": "a", "region": "eu"}, false},
		{map[string]string{"zone": "1"}, false},
		{nil, true}, // empty filter matches everything
	}

	for _, tc := range cases {
		got := series.Contains(NewLabelSet(tc.filter))
		if got != tc.want {
			t.Errorf("Contains(%v) = %v, want %v", tc.filter, got, tc.want)
		}
	}
}

func TestLabelSetGet(t *testing.T) {
	ls := NewLabelSet(map[string]string{"a": "1", "b": "2", "c": "3"})

	if v, ok := ls.Get("b"); !ok || v != "2" {
		t.Errorf("Get(b) = %q, %v", v, ok)
	}
	if _, ok := ls.Get("z"); ok {
		t.Errorf("Get(z) should miss")
	}
	if ls.Len() != 3 {
		t.Errorf("Len = %d, want 3", ls.Len())
	}
}

func TestSeriesIDStable(t *testing.T) {
	a := SeriesID("latency", NewLabelSet(map[string]string{"route": "/app1"}))
	b := SeriesID("latency", NewLabelSet(map[string]string{"route": "/app1"}))
	if a != b {
		t.Errorf("same name+labels must produce the same id: %d vs %d", a, b)
	}

	c := SeriesID("latency", NewLabelSet(map[string]string{"route": "/app2"}))
	if a == c {
		t.Errorf("different labels should produce different ids")
	}

	d := SeriesID("latency", LabelSet{})
	e := SeriesID("latency", NewLabelSet(nil))
	if d != e {
		t.Errorf("zero value and empty set must agree: %d vs %d", d, e)
	}
}
