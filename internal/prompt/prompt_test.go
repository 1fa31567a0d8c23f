package prompt

import (
	"strings"
	"testing"

	"github.com/skypro1111/interp-service/internal/gate"
	"github.com/skypro1111/interp-service/internal/glossary"
)

func TestFast(t *testing.T) {
	p := Fast("我頭很痛", "zh", "en")

	if !strings.Contains(p, "Chinese") || !strings.Contains(p, "English") {
		t.Errorf("Expected language names in prompt, got %q", p)
	}
	if !strings.HasSuffix(p, "我頭很痛") {
		t.Errorf("Expected prompt to end with the source text, got %q", p)
	}
	if strings.Contains(p, "conversation") {
		t.Error("Fast prompt must not carry conversation context")
	}
}

func TestQualityIncludesContextAndGlossary(t *testing.T) {
	req := Request{
		Text:        "需要止痛藥",
		SourceLang:  "zh",
		TargetLang:  "en",
		SpeakerRole: "patient",
		Context: []Turn{
			{Role: "doctor", Source: "Where does it hurt?", Translation: "哪裡痛？"},
			{Role: "patient", Source: "我頭很痛", Translation: "My head hurts a lot"},
		},
		Glossary: glossary.Terms("zh", "en"),
	}

	p := Quality(req)

	for _, want := range []string{
		"[doctor] Where does it hurt? => 哪裡痛？",
		"[patient] 我頭很痛 => My head hurts a lot",
		"止痛藥 => painkiller",
		"The patient says:",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("Expected prompt to contain %q", want)
		}
	}
	if !strings.HasSuffix(p, "需要止痛藥") {
		t.Error("Expected prompt to end with the utterance")
	}
	if strings.Index(p, "[doctor]") > strings.Index(p, "[patient]") {
		t.Error("Expected context turns oldest first")
	}
}

func TestQualityIsDeterministic(t *testing.T) {
	req := Request{Text: "我不痛", SourceLang: "zh", TargetLang: "en", Glossary: glossary.Terms("zh", "en")}
	if Quality(req) != Quality(req) {
		t.Error("Expected identical prompts for identical input")
	}
}

func TestRetryCarriesRejectionAndIssues(t *testing.T) {
	req := Request{Text: "血壓120/80", SourceLang: "zh", TargetLang: "en"}
	issues := gate.DetectTranslationIssues(req.Text, "high blood pressure", "zh", "en").Issues

	p := Retry(req, "high blood pressure", issues)

	if !strings.Contains(p, "high blood pressure") {
		t.Error("Expected the rejected translation in the retry prompt")
	}
	if !strings.Contains(p, "120") || !strings.Contains(p, "missing") {
		t.Errorf("Expected issue details in the retry prompt, got %q", p)
	}
	if !strings.HasSuffix(p, "血壓120/80") {
		t.Error("Expected retry prompt to end with the utterance")
	}
}

func TestLanguageName(t *testing.T) {
	tests := map[string]string{
		"zh":    "Chinese",
		"zh-TW": "Traditional Chinese",
		"en-US": "English",
		"xx":    "xx",
	}
	for code, want := range tests {
		if got := LanguageName(code); got != want {
			t.Errorf("LanguageName(%q): expected %q, got %q", code, want, got)
		}
	}
}
