package glossary

import "testing"

func TestBase(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"zh", "zh"},
		{"zh-TW", "zh"},
		{"ZH_hant", "zh"},
		{" en-US ", "en"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Base(tt.input); got != tt.expected {
			t.Errorf("Base(%q): expected %q, got %q", tt.input, tt.expected, got)
		}
	}

	if !SameLanguage("zh-TW", "zh-CN") {
		t.Error("Expected zh-TW and zh-CN to share a language")
	}
	if SameLanguage("", "") {
		t.Error("Expected empty codes not to match")
	}
}

func TestIsAcknowledgement(t *testing.T) {
	tests := []struct {
		lang     string
		text     string
		expected bool
	}{
		{"zh", "好", true},
		{"zh", "好的。", true},
		{"zh-TW", " 謝謝！", true},
		{"zh", "好痛", false},
		{"en", "OK.", true},
		{"en", "Thank you!", true},
		{"en", "ok but my chest hurts", false},
		{"fr", "oui", false},
	}

	for _, tt := range tests {
		if got := IsAcknowledgement(tt.lang, tt.text); got != tt.expected {
			t.Errorf("IsAcknowledgement(%q, %q): expected %v, got %v", tt.lang, tt.text, tt.expected, got)
		}
	}
}

func TestNegationPattern(t *testing.T) {
	tests := []struct {
		lang     string
		text     string
		expected bool
	}{
		{"zh", "我不痛", true},
		{"zh", "我沒有發燒", true},
		{"zh", "我頭很痛", false},
		{"en", "I am not in pain", true},
		{"en", "I don't have a fever", true},
		{"en", "I don’t have a fever", true},
		{"en", "No.", true},
		{"en", "I know the answer", false},
		{"en", "My head hurts", false},
		{"es", "No tengo fiebre", true},
		{"de", "Ich habe keine Schmerzen", true},
		{"ja", "痛くない", true},
	}

	for _, tt := range tests {
		re := NegationPattern(tt.lang)
		if re == nil {
			t.Fatalf("Expected a negation pattern for %s", tt.lang)
		}
		if got := re.MatchString(tt.text); got != tt.expected {
			t.Errorf("negation %s %q: expected %v, got %v", tt.lang, tt.text, tt.expected, got)
		}
	}

	if NegationPattern("xx") != nil {
		t.Error("Expected no pattern for an unknown language")
	}
}

func TestTables(t *testing.T) {
	if len(RiskKeywords("zh-TW")) == 0 {
		t.Error("Expected zh risk keywords")
	}
	if len(Units("zh")) == 0 {
		t.Error("Expected zh units")
	}
	if len(Terms("zh", "en")) == 0 || len(Terms("en-US", "zh-TW")) == 0 {
		t.Error("Expected glossary terms for zh<->en")
	}
	if Terms("zh", "fr") != nil {
		t.Error("Expected no glossary for an unsupported pair")
	}

	categories := make(map[Category]bool)
	for _, kw := range RiskKeywords("zh") {
		categories[kw.Category] = true
	}
	for _, c := range []Category{CategoryVital, CategoryMedication, CategorySymptom, CategoryProcedure, CategoryChronic, CategoryNegation} {
		if !categories[c] {
			t.Errorf("Expected zh keywords for category %s", c)
		}
	}
}
