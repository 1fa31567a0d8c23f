package gate

import (
	"fmt"
	"strings"

	"github.com/skypro1111/interp-service/internal/glossary"
)

// Reason explains a cost-control decision
type Reason string

const (
	ReasonForeignLanguage Reason = "foreign_language"
	ReasonAcknowledgement Reason = "acknowledgement"
	ReasonTooShort        Reason = "too_short"
	ReasonRiskKeyword     Reason = "risk_keyword"
	ReasonNumeral         Reason = "numeral"
	ReasonUnit            Reason = "unit"
	ReasonLongText        Reason = "long_text"
	ReasonRoutine         Reason = "routine"
)

// Decision is the outcome of the cost-control heuristic
type Decision struct {
	RunQualityPass bool
	Reason         Reason
	Match          string
}

// CostControl decides whether a segment is risky enough to warrant a Quality Pass.
// It is deterministic and performs no I/O.
type CostControl struct {
	// Language the keyword heuristics are written for; other languages always run
	Language string
	// MinChars is the minimum content length, ignoring whitespace and punctuation
	MinChars int
	// CarefulLength is the content length above which text always runs
	CarefulLength int
}

// DefaultCostControl returns the reference heuristic for Chinese source speech
func DefaultCostControl() CostControl {
	return CostControl{
		Language:      "zh",
		MinChars:      2,
		CarefulLength: 20,
	}
}

// Validate checks the heuristic parameters
func (c CostControl) Validate() error {
	if glossary.Base(c.Language) == "" {
		return fmt.Errorf("heuristic language cannot be empty")
	}
	if c.MinChars < 0 {
		return fmt.Errorf("min chars cannot be negative, got %d", c.MinChars)
	}
	if c.CarefulLength <= c.MinChars {
		return fmt.Errorf("careful length (%d) must exceed min chars (%d)", c.CarefulLength, c.MinChars)
	}
	return nil
}

// ShouldRunQualityPass reports whether text in lang should get a Quality Pass
func (c CostControl) ShouldRunQualityPass(text, lang string) bool {
	return c.Decide(text, lang).RunQualityPass
}

// Decide applies the precedence rules in order and returns the first match
func (c CostControl) Decide(text, lang string) Decision {
	if !glossary.SameLanguage(lang, c.Language) {
		return Decision{RunQualityPass: true, Reason: ReasonForeignLanguage}
	}

	if glossary.IsAcknowledgement(lang, text) {
		return Decision{RunQualityPass: false, Reason: ReasonAcknowledgement}
	}

	length := contentLength(text)
	if length < c.MinChars {
		return Decision{RunQualityPass: false, Reason: ReasonTooShort}
	}

	cjk := glossary.IsCJK(lang)
	lowered := strings.ToLower(text)

	for _, kw := range glossary.RiskKeywords(lang) {
		if containsToken(lowered, kw.Text, cjk) {
			return Decision{RunQualityPass: true, Reason: ReasonRiskKeyword, Match: kw.Text}
		}
	}

	if hasDigit(text) {
		return Decision{RunQualityPass: true, Reason: ReasonNumeral}
	}
	if cjk {
		if nums := zhNumbers(text); len(nums) > 0 {
			return Decision{RunQualityPass: true, Reason: ReasonNumeral, Match: nums[0]}
		}
	}

	for _, unit := range glossary.Units(lang) {
		if containsToken(lowered, unit, cjk) {
			return Decision{RunQualityPass: true, Reason: ReasonUnit, Match: unit}
		}
	}

	if length > c.CarefulLength {
		return Decision{RunQualityPass: true, Reason: ReasonLongText}
	}

	return Decision{RunQualityPass: false, Reason: ReasonRoutine}
}

// ShouldRunQualityPass applies the default heuristic
func ShouldRunQualityPass(text, lang string) bool {
	return DefaultCostControl().ShouldRunQualityPass(text, lang)
}
