package prompt

import (
	"fmt"
	"strings"

	"github.com/skypro1111/interp-service/internal/gate"
	"github.com/skypro1111/interp-service/internal/glossary"
)

// Turn is one earlier utterance of the conversation, used as context
type Turn struct {
	Role        string
	Source      string
	Translation string
}

// Request describes one utterance to translate with its surrounding context
type Request struct {
	Text        string
	SourceLang  string
	TargetLang  string
	SpeakerRole string
	Context     []Turn
	Glossary    []glossary.Term
}

var languageNames = map[string]string{
	"zh": "Chinese",
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"ja": "Japanese",
	"ko": "Korean",
	"vi": "Vietnamese",
}

// LanguageName returns the English name of a language code, or the code itself
func LanguageName(lang string) string {
	if name, ok := languageNames[glossary.Base(lang)]; ok {
		if strings.EqualFold(lang, "zh-TW") || strings.EqualFold(lang, "zh-Hant") {
			return "Traditional Chinese"
		}
		return name
	}
	return lang
}

// Fast builds the minimal context-free prompt for the low-latency pass
func Fast(text, sourceLang, targetLang string) string {
	return fmt.Sprintf(
		"Translate the following %s into %s. Reply with the translation only.\n\n%s",
		LanguageName(sourceLang), LanguageName(targetLang), text)
}

// Quality builds the context-aware prompt with the conversation window and glossary
func Quality(req Request) string {
	var b strings.Builder
	writeInstructions(&b, req)
	writeGlossary(&b, req.Glossary)
	writeContext(&b, req.Context)
	writeUtterance(&b, req)
	return b.String()
}

// Retry rebuilds the quality prompt with the rejected translation and its defects
func Retry(req Request, rejected string, issues []gate.Issue) string {
	var b strings.Builder
	writeInstructions(&b, req)
	writeGlossary(&b, req.Glossary)
	writeContext(&b, req.Context)

	b.WriteString("A previous translation of this utterance was rejected:\n")
	fmt.Fprintf(&b, "%s\n", rejected)
	if len(issues) > 0 {
		b.WriteString("Problems found:\n")
		for _, issue := range issues {
			fmt.Fprintf(&b, "- %s\n", issue.Detail)
		}
	}
	b.WriteString("Fix these problems in the new translation.\n\n")

	writeUtterance(&b, req)
	return b.String()
}

func writeInstructions(b *strings.Builder, req Request) {
	fmt.Fprintf(b, "You are a professional medical interpreter translating spoken %s into %s.\n",
		LanguageName(req.SourceLang), LanguageName(req.TargetLang))
	b.WriteString("Preserve every number, unit, medication name and negation exactly. ")
	b.WriteString("Keep the speaker's register. Reply with the translation only, without notes or brackets.\n\n")
}

func writeGlossary(b *strings.Builder, terms []glossary.Term) {
	if len(terms) == 0 {
		return
	}
	b.WriteString("Use these term translations:\n")
	for _, t := range terms {
		fmt.Fprintf(b, "- %s => %s\n", t.Source, t.Target)
	}
	b.WriteString("\n")
}

func writeContext(b *strings.Builder, turns []Turn) {
	if len(turns) == 0 {
		return
	}
	b.WriteString("Recent conversation, oldest first:\n")
	for _, t := range turns {
		role := t.Role
		if role == "" {
			role = "speaker"
		}
		fmt.Fprintf(b, "[%s] %s => %s\n", role, t.Source, t.Translation)
	}
	b.WriteString("\n")
}

func writeUtterance(b *strings.Builder, req Request) {
	if req.SpeakerRole != "" {
		fmt.Fprintf(b, "The %s says:\n", req.SpeakerRole)
	} else {
		b.WriteString("Utterance:\n")
	}
	b.WriteString(req.Text)
}
