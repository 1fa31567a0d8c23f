package gate

import (
	"strings"
	"testing"
)

func TestShouldRunQualityPass(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		lang     string
		expected bool
	}{
		{"acknowledgement", "好", "zh", false},
		{"symptom keyword", "我頭很痛", "zh", true},
		{"vital with numeral and unit", "體溫38.5度", "zh", true},
		{"negation", "我不痛", "zh", true},
		{"regional subtag", "我頭很痛", "zh-TW", true},
		{"non-source language", "ok", "en", true},
		{"missing language", "好", "", true},
		{"acknowledgement with punctuation", "好的！", "zh", false},
		{"too short after stripping", "啊。", "zh", false},
		{"routine short sentence", "我們走吧", "zh", false},
		{"full-width numeral", "三號房間１２", "zh", true},
		{"chinese numeral run", "我吃了兩顆", "zh", true},
		{"unit only", "再給我一片", "zh", true},
		{"long text", "今天天氣很好我們一起去公園散步然後去吃午餐再回家休息", "zh", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRunQualityPass(tt.text, tt.lang); got != tt.expected {
				d := DefaultCostControl().Decide(tt.text, tt.lang)
				t.Errorf("ShouldRunQualityPass(%q, %q): expected %v, got %v (reason %s)",
					tt.text, tt.lang, tt.expected, got, d.Reason)
			}
		})
	}
}

func TestCostControlPrecedence(t *testing.T) {
	cc := DefaultCostControl()

	tests := []struct {
		text   string
		lang   string
		reason Reason
	}{
		{"痛", "en", ReasonForeignLanguage},
		{"不客氣", "zh", ReasonAcknowledgement},
		{"哈", "zh", ReasonTooShort},
		{"我沒事了吧", "zh", ReasonRiskKeyword},
		{"房間12", "zh", ReasonNumeral},
		{"我們走吧", "zh", ReasonRoutine},
	}

	for _, tt := range tests {
		d := cc.Decide(tt.text, tt.lang)
		if d.Reason != tt.reason {
			t.Errorf("Decide(%q, %q): expected reason %s, got %s", tt.text, tt.lang, tt.reason, d.Reason)
		}
	}
}

func TestCostControlDeterministic(t *testing.T) {
	cc := DefaultCostControl()
	for i := 0; i < 50; i++ {
		if !cc.ShouldRunQualityPass("體溫38.5度", "zh") {
			t.Fatal("Expected a stable true decision")
		}
		if cc.ShouldRunQualityPass("好", "zh") {
			t.Fatal("Expected a stable false decision")
		}
	}
}

func TestCostControlEnglishWordBoundaries(t *testing.T) {
	cc := CostControl{Language: "en", MinChars: 2, CarefulLength: 60}

	if !cc.ShouldRunQualityPass("I have no allergies", "en") {
		t.Error("Expected negation to trigger")
	}
	if cc.ShouldRunQualityPass("I know where it is", "en") {
		t.Error("Expected 'know' not to match the 'no' keyword")
	}
	if !cc.ShouldRunQualityPass("my blood pressure is high", "en-US") {
		t.Error("Expected vital keyword to trigger")
	}
}

func TestCostControlValidate(t *testing.T) {
	tests := []struct {
		name      string
		cc        CostControl
		expectErr bool
	}{
		{"default", DefaultCostControl(), false},
		{"empty language", CostControl{MinChars: 2, CarefulLength: 20}, true},
		{"negative min", CostControl{Language: "zh", MinChars: -1, CarefulLength: 20}, true},
		{"careful below min", CostControl{Language: "zh", MinChars: 5, CarefulLength: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cc.Validate()
			if tt.expectErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestDetectTranslationIssues(t *testing.T) {
	tests := []struct {
		name           string
		source         string
		translated     string
		sourceLang     string
		targetLang     string
		maxScore       int
		minScore       int
		passed         bool
		recommendation Recommendation
		issue          IssueCode
	}{
		{
			name: "good translation", source: "我頭很痛，需要止痛藥", translated: "My head hurts a lot and I need a painkiller.",
			sourceLang: "zh", targetLang: "en", minScore: 100, maxScore: 100, passed: true, recommendation: RecommendAccept,
		},
		{
			name: "digit-free translation of a reading", source: "血壓120/80", translated: "high blood pressure",
			sourceLang: "zh", targetLang: "en", maxScore: 60, recommendation: RecommendRetryQuality, issue: IssueMissingNumber,
		},
		{
			name: "verbatim copy", source: "血壓120/80", translated: "血壓120/80",
			sourceLang: "zh", targetLang: "en", maxScore: 50, recommendation: RecommendRetryQuality, issue: IssueIdentical,
		},
		{
			name: "empty output", source: "我頭很痛", translated: "  ",
			sourceLang: "zh", targetLang: "en", maxScore: 0, recommendation: RecommendRetryQuality, issue: IssueEmpty,
		},
		{
			name: "negation dropped", source: "我沒有發燒", translated: "I have a fever",
			sourceLang: "zh", targetLang: "en", maxScore: 60, recommendation: RecommendRetryQuality, issue: IssueNegation,
		},
		{
			name: "negation kept", source: "我沒有發燒", translated: "I don't have a fever",
			sourceLang: "zh", targetLang: "en", minScore: 100, maxScore: 100, passed: true, recommendation: RecommendAccept,
		},
		{
			name: "no negation table for target", source: "我沒有發燒", translated: "Ich habe Fieber",
			sourceLang: "zh", targetLang: "xx", minScore: 100, maxScore: 100, passed: true, recommendation: RecommendAccept,
		},
		{
			name: "full-width digits preserved", source: "體溫３８.５度", translated: "Temperature is 38.5 degrees",
			sourceLang: "zh", targetLang: "en", minScore: 100, maxScore: 100, passed: true, recommendation: RecommendAccept,
		},
		{
			name: "chinese numerals rendered as digits", source: "我吃了兩百毫克", translated: "I took 200 mg",
			sourceLang: "zh", targetLang: "en", minScore: 100, maxScore: 100, passed: true, recommendation: RecommendAccept,
		},
		{
			name: "chinese numeral value wrong", source: "體溫三十八度", translated: "Temperature is 39 degrees",
			sourceLang: "zh", targetLang: "en", maxScore: 60, recommendation: RecommendRetryQuality, issue: IssueMissingNumber,
		},
		{
			name: "chinese numeral with trailing digit after 萬", source: "一萬五單位", translated: "15,000 units",
			sourceLang: "zh", targetLang: "en", minScore: 100, maxScore: 100, passed: true, recommendation: RecommendAccept,
		},
		{
			name: "numeral characters inside a word", source: "萬一吃了2顆藥怎麼辦", translated: "What if I took 2 pills",
			sourceLang: "zh", targetLang: "en", minScore: 100, maxScore: 100, passed: true, recommendation: RecommendAccept,
		},
		{
			name: "length and artifacts only", source: "今天我覺得比昨天好多了", translated: "[Better] ok",
			sourceLang: "zh", targetLang: "en", minScore: 75, maxScore: 75, passed: true, recommendation: RecommendAccept,
			issue: IssueArtifacts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := DetectTranslationIssues(tt.source, tt.translated, tt.sourceLang, tt.targetLang)
			if a.Score > tt.maxScore || a.Score < tt.minScore {
				t.Errorf("Expected score in [%d, %d], got %d (issues %+v)", tt.minScore, tt.maxScore, a.Score, a.Issues)
			}
			if a.Passed != tt.passed {
				t.Errorf("Expected passed=%v, got %v", tt.passed, a.Passed)
			}
			if a.Recommendation != tt.recommendation {
				t.Errorf("Expected recommendation %s, got %s", tt.recommendation, a.Recommendation)
			}
			if tt.issue != "" && !a.Has(tt.issue) {
				t.Errorf("Expected issue %s, got %+v", tt.issue, a.Issues)
			}
		})
	}
}

func TestRetryFastRecommendation(t *testing.T) {
	// Only minor defects, enough of them to fail
	scorer := NewScorer(Weights{LengthRatio: 20, Artifacts: 20, PassThreshold: 70})
	a := scorer.Detect("今天我覺得比昨天好多了", "[x]", "zh", "en")
	if a.Passed {
		t.Fatalf("Expected failure, got score %d", a.Score)
	}
	if a.Recommendation != RecommendRetryFast {
		t.Errorf("Expected retry_fast, got %s", a.Recommendation)
	}
}

func TestScoreFloorsAtZero(t *testing.T) {
	scorer := NewScorer(Weights{Identical: 90, MissingNumber: 90, PassThreshold: 70})
	a := scorer.Detect("血壓120/80", "血壓120/80", "zh", "zh")
	if a.Score != 10 {
		t.Errorf("Expected score 10, got %d", a.Score)
	}

	scorer = NewScorer(Weights{Empty: 250, PassThreshold: 70})
	if a := scorer.Detect("痛", "", "zh", "en"); a.Score != 0 {
		t.Errorf("Expected score floored at 0, got %d", a.Score)
	}
}

func TestIssueDetailsNameMissingNumbers(t *testing.T) {
	a := DetectTranslationIssues("血壓120/80", "blood pressure 120", "zh", "en")
	if !a.Has(IssueMissingNumber) {
		t.Fatal("Expected missing number issue")
	}
	for _, issue := range a.Issues {
		if issue.Code == IssueMissingNumber && !strings.Contains(issue.Detail, "80") {
			t.Errorf("Expected detail to name 80, got %q", issue.Detail)
		}
	}
}

func TestWeightsValidate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Errorf("Expected default weights to be valid: %v", err)
	}

	w := DefaultWeights()
	w.Identical = -1
	if err := w.Validate(); err == nil {
		t.Error("Expected error for negative penalty")
	}

	w = DefaultWeights()
	w.PassThreshold = 101
	if err := w.Validate(); err == nil {
		t.Error("Expected error for threshold above 100")
	}
}

func TestParseZhNumeral(t *testing.T) {
	tests := map[string]string{
		"三十八":   "38",
		"十五":    "15",
		"一百二":   "120",
		"一百零二":  "102",
		"兩千":    "2000",
		"三十八點五": "38.5",
		"一萬二千":  "12000",
		"一萬五":   "15000",
		"三萬二":   "32000",
		"一萬零五":  "10005",
	}
	for input, expected := range tests {
		got, ok := parseZhNumeral([]rune(input))
		if !ok || got != expected {
			t.Errorf("parseZhNumeral(%q): expected %s, got %s (ok=%v)", input, expected, got, ok)
		}
	}

	for _, input := range []string{"萬一", "千萬", "百五"} {
		if got, ok := parseZhNumeral([]rune(input)); ok {
			t.Errorf("parseZhNumeral(%q): expected rejection, got %s", input, got)
		}
	}
}

func TestZhNumbersIgnoresNumeralWords(t *testing.T) {
	if got := zhNumbers("萬一吃錯藥"); len(got) != 0 {
		t.Errorf("Expected no numbers, got %v", got)
	}
	got := zhNumbers("一萬五單位")
	if len(got) != 1 || got[0] != "15000" {
		t.Errorf("Expected [15000], got %v", got)
	}
}
