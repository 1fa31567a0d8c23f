package gate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/skypro1111/interp-service/internal/glossary"
)

// Recommendation is the QualityGate verdict on what to do with a translation
type Recommendation string

const (
	RecommendAccept       Recommendation = "accept"
	RecommendRetryFast    Recommendation = "retry_fast"
	RecommendRetryQuality Recommendation = "retry_quality"
)

// IssueCode identifies a systematic translation defect
type IssueCode string

const (
	IssueEmpty         IssueCode = "empty_output"
	IssueIdentical     IssueCode = "identical_to_source"
	IssueMissingNumber IssueCode = "missing_number"
	IssueNegation      IssueCode = "negation_mismatch"
	IssueLengthRatio   IssueCode = "length_ratio"
	IssueArtifacts     IssueCode = "formatting_artifacts"
)

// Issue is one detected defect with a human-readable detail used in retry prompts
type Issue struct {
	Code   IssueCode `json:"code"`
	Detail string    `json:"detail"`
}

// severe issues force a quality retry
func (i Issue) severe() bool {
	switch i.Code {
	case IssueEmpty, IssueIdentical, IssueMissingNumber, IssueNegation:
		return true
	}
	return false
}

// Assessment is the QualityGate result for one (source, translation) pair
type Assessment struct {
	Passed         bool           `json:"passed"`
	Score          int            `json:"score"`
	Issues         []Issue        `json:"issues,omitempty"`
	Recommendation Recommendation `json:"recommendation"`
}

// Has reports whether the assessment contains an issue with the given code
func (a Assessment) Has(code IssueCode) bool {
	for _, issue := range a.Issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}

// Weights are the penalty magnitudes subtracted from a starting score of 100
type Weights struct {
	Empty            int `yaml:"empty"`
	Identical        int `yaml:"identical"`
	MissingNumber    int `yaml:"missing_number"`
	NegationMismatch int `yaml:"negation_mismatch"`
	LengthRatio      int `yaml:"length_ratio"`
	Artifacts        int `yaml:"artifacts"`
	PassThreshold    int `yaml:"pass_threshold"`
}

// DefaultWeights returns the empirically chosen penalty table
func DefaultWeights() Weights {
	return Weights{
		Empty:            100,
		Identical:        50,
		MissingNumber:    40,
		NegationMismatch: 40,
		LengthRatio:      15,
		Artifacts:        10,
		PassThreshold:    70,
	}
}

// Validate checks that penalties are non-negative and the threshold is a valid score
func (w Weights) Validate() error {
	penalties := map[string]int{
		"empty":             w.Empty,
		"identical":         w.Identical,
		"missing_number":    w.MissingNumber,
		"negation_mismatch": w.NegationMismatch,
		"length_ratio":      w.LengthRatio,
		"artifacts":         w.Artifacts,
	}
	for name, p := range penalties {
		if p < 0 {
			return fmt.Errorf("%s penalty cannot be negative, got %d", name, p)
		}
	}
	if w.PassThreshold < 0 || w.PassThreshold > 100 {
		return fmt.Errorf("pass_threshold must be between 0 and 100, got %d", w.PassThreshold)
	}
	return nil
}

var artifactPattern = regexp.MustCompile(`\[[^\]]*\]|\{[^}]*\}|<[^>]+>|【[^】]*】|(?i:^\s*(?:translation|translated text|译文|譯文|翻译|翻譯)\s*[:：])`)

// minRatioSource is the shortest source content length checked for length ratio
const minRatioSource = 4

// Scorer scores translations against a weight table
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the given weights
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// Weights returns the scorer's penalty table
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Detect scores a translation for systematic defects
func (s *Scorer) Detect(source, translated, sourceLang, targetLang string) Assessment {
	w := s.weights
	score := 100
	var issues []Issue

	penalize := func(penalty int, issue Issue) {
		score -= penalty
		issues = append(issues, issue)
	}

	if strings.TrimSpace(translated) == "" {
		penalize(w.Empty, Issue{Code: IssueEmpty, Detail: "the translation is empty"})
		return s.assess(score, issues)
	}

	if normalizeForCompare(source) == normalizeForCompare(translated) {
		penalize(w.Identical, Issue{Code: IssueIdentical, Detail: "the translation is identical to the source text"})
	}

	if missing := missingNumbers(source, translated, sourceLang); len(missing) > 0 {
		penalize(w.MissingNumber, Issue{
			Code:   IssueMissingNumber,
			Detail: fmt.Sprintf("numbers from the source are missing: %s", strings.Join(missing, ", ")),
		})
	}

	if negationLost(source, translated, sourceLang, targetLang) {
		penalize(w.NegationMismatch, Issue{
			Code:   IssueNegation,
			Detail: "the source contains a negation but the translation has no negation marker",
		})
	}

	if ratio, lo, hi, checked := lengthRatio(source, translated, sourceLang, targetLang); checked && (ratio < lo || ratio > hi) {
		penalize(w.LengthRatio, Issue{
			Code:   IssueLengthRatio,
			Detail: fmt.Sprintf("translation/source length ratio %.2f is outside the expected range %.2f-%.2f", ratio, lo, hi),
		})
	}

	if artifact := leftoverArtifact(source, translated); artifact != "" {
		penalize(w.Artifacts, Issue{
			Code:   IssueArtifacts,
			Detail: fmt.Sprintf("the translation contains leftover formatting %q", artifact),
		})
	}

	return s.assess(score, issues)
}

func (s *Scorer) assess(score int, issues []Issue) Assessment {
	if score < 0 {
		score = 0
	}
	a := Assessment{
		Passed: score >= s.weights.PassThreshold,
		Score:  score,
		Issues: issues,
	}

	switch {
	case a.Passed:
		a.Recommendation = RecommendAccept
	case hasSevere(issues):
		a.Recommendation = RecommendRetryQuality
	default:
		a.Recommendation = RecommendRetryFast
	}
	return a
}

func hasSevere(issues []Issue) bool {
	for _, issue := range issues {
		if issue.severe() {
			return true
		}
	}
	return false
}

func missingNumbers(source, translated, sourceLang string) []string {
	want := extractNumbers(source)
	have := extractNumbers(translated)

	// Chinese numerals only count when the translation writes numbers as digits
	if glossary.IsCJK(sourceLang) && len(have) > 0 {
		want = append(want, zhNumbers(source)...)
	}

	var missing []string
	seen := make(map[string]bool)
	for _, n := range want {
		if seen[n] {
			continue
		}
		seen[n] = true
		if !containsNumber(have, n) {
			missing = append(missing, n)
		}
	}
	return missing
}

// negationLost reports a source negation with no target negation marker.
// A language without a pattern table never produces a mismatch.
func negationLost(source, translated, sourceLang, targetLang string) bool {
	srcPattern := glossary.NegationPattern(sourceLang)
	dstPattern := glossary.NegationPattern(targetLang)
	if srcPattern == nil || dstPattern == nil {
		return false
	}
	return srcPattern.MatchString(source) && !dstPattern.MatchString(translated)
}

func lengthRatio(source, translated, sourceLang, targetLang string) (ratio, lo, hi float64, checked bool) {
	srcLen := contentLength(source)
	if srcLen < minRatioSource {
		return 0, 0, 0, false
	}

	srcCJK, dstCJK := glossary.IsCJK(sourceLang), glossary.IsCJK(targetLang)
	switch {
	case srcCJK && !dstCJK:
		lo, hi = 1.0, 8.0
	case !srcCJK && dstCJK:
		lo, hi = 0.12, 1.0
	default:
		lo, hi = 0.4, 2.5
	}
	return float64(contentLength(translated)) / float64(srcLen), lo, hi, true
}

func leftoverArtifact(source, translated string) string {
	for _, m := range artifactPattern.FindAllString(translated, -1) {
		if !strings.Contains(source, strings.TrimSpace(m)) {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

// DetectTranslationIssues scores a translation with the default weights
func DetectTranslationIssues(source, translated, sourceLang, targetLang string) Assessment {
	return NewScorer(DefaultWeights()).Detect(source, translated, sourceLang, targetLang)
}
