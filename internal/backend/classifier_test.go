package backend

import "testing"

func TestClassifyMultilingualOverridesEverything(t *testing.T) {
	c := NewClassifier("en")

	// Keyword content that would otherwise be Simple or Complex.
	cases := []struct {
		text     string
		language string
	}{
		{"menu please", "lv"},
		{"I'm allergic to nuts", "ru"},
		{"Сколько стоит кофе?", ""},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.text, tc.language, ""); got != ComplexityMultilingual {
			t.Errorf("Classify(%q, %q) = %s, want multilingual", tc.text, tc.language, got)
		}
	}
}

func TestClassifySignalPrecedence(t *testing.T) {
	c := NewClassifier("en")

	cases := []struct {
		name     string
		text     string
		language string
		intent   string
		want     Complexity
	}{
		{"simple intent", "anything", "en", "menu_inquiry", ComplexitySimple},
		{"simple keyword", "what are your hours?", "en", "", ComplexitySimple},
		{"price keyword", "how much does a latte cost", "", "", ComplexitySimple},
		{"complex negation", "a latte without milk please", "en", "", ComplexityComplex},
		{"complex allergy", "I'm allergic to gluten", "en", "", ComplexityComplex},
		{"moderate default", "I'd like two lattes", "en", "", ComplexityModerate},
		{"regional tag of default", "hello there", "en-US", "", ComplexityModerate},
		{"marker inside word ignored", "bring me a butter croissant", "en", "", ComplexityModerate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Classify(tc.text, tc.language, tc.intent); got != tc.want {
				t.Errorf("Classify(%q) = %s, want %s", tc.text, got, tc.want)
			}
		})
	}
}
