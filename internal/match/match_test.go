package match

import "testing"

func TestScoreContainedTerm(t *testing.T) {
	if s := Score("dinner", "Let's get dinner?"); s < 70 {
		t.Errorf("score = %d, want >= 70 for a contained token", s)
	}
	if s := Score("dinner", "See you tomorrow"); s >= 70 {
		t.Errorf("score = %d, want < 70 for unrelated text", s)
	}
}

func TestScoreCaseInsensitive(t *testing.T) {
	a := Score("DINNER", "let's get dinner?")
	b := Score("dinner", "LET'S GET DINNER?")
	if a != b {
		t.Errorf("case changed the score: %d vs %d", a, b)
	}
}

func TestScoreIdentical(t *testing.T) {
	if s := Score("hello world", "hello world"); s != 100 {
		t.Errorf("score = %d, want 100", s)
	}
}

func TestScoreEmpty(t *testing.T) {
	if s := Score("", "anything"); s != 0 {
		t.Errorf("score = %d, want 0 for empty term", s)
	}
	if s := Score("term", ""); s != 0 {
		t.Errorf("score = %d, want 0 for empty text", s)
	}
}

func TestValidThreshold(t *testing.T) {
	for _, v := range []int{0, 50, 100} {
		if !ValidThreshold(v) {
			t.Errorf("ValidThreshold(%d) = false", v)
		}
	}
	for _, v := range []int{-1, 101, 150} {
		if ValidThreshold(v) {
			t.Errorf("ValidThreshold(%d) = true", v)
		}
	}
}
