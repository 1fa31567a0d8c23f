package glossary

import (
	"regexp"
	"strings"
)

// Category groups high-risk vocabulary
type Category string

const (
	CategoryVital      Category = "vital"
	CategoryMedication Category = "medication"
	CategorySymptom    Category = "symptom"
	CategoryProcedure  Category = "procedure"
	CategoryChronic    Category = "chronic"
	CategoryBodyPart   Category = "body_part"
	CategoryUnit       Category = "unit"
	CategoryNegation   Category = "negation"
)

// Keyword is a risk-bearing token in a source language
type Keyword struct {
	Text     string
	Category Category
}

// Term maps a source-language term to its preferred rendering in a target language
type Term struct {
	Source   string
	Target   string
	Category Category
}

// Base returns the lowercased primary subtag of a language code ("zh-TW" → "zh")
func Base(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	return lang
}

// SameLanguage reports whether two language codes share a primary subtag
func SameLanguage(a, b string) bool {
	return Base(a) != "" && Base(a) == Base(b)
}

// IsCJK reports whether the language is written without spaces between words
func IsCJK(lang string) bool {
	switch Base(lang) {
	case "zh", "ja", "ko", "yue":
		return true
	}
	return false
}

var acknowledgements = map[string]map[string]struct{}{
	"zh": set(
		"好", "好的", "好啊", "好吧", "嗯", "嗯嗯", "對", "对", "對啊", "对啊", "是", "是的",
		"行", "可以", "明白", "知道了", "收到", "哦", "喔", "噢", "謝謝", "谢谢", "謝謝你", "谢谢你",
		"不客氣", "不客气", "沒問題", "没问题", "沒事", "没事", "ok", "okay", "再見", "再见", "你好",
	),
	"en": set(
		"ok", "okay", "yes", "yeah", "yep", "sure", "right", "alright", "thanks", "thank you",
		"got it", "uh huh", "mhm", "hello", "hi", "bye", "goodbye", "you're welcome",
	),
}

// IsAcknowledgement reports whether normalized text exactly matches a short
// acknowledgement for the language. Matching ignores surrounding punctuation and case.
func IsAcknowledgement(lang, text string) bool {
	acks, ok := acknowledgements[Base(lang)]
	if !ok {
		return false
	}
	_, found := acks[normalizeAck(text)]
	return found
}

func normalizeAck(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	return strings.TrimFunc(text, func(r rune) bool {
		return strings.ContainsRune(" \t\n.,!?;:~…。，！？；：、「」『』\"'", r)
	})
}

var riskKeywords = map[string][]Keyword{
	"zh": concat(
		keywords(CategoryVital,
			"血壓", "血压", "心跳", "心率", "脈搏", "脉搏", "體溫", "体温", "發燒", "发烧", "發熱", "发热",
			"血糖", "血氧", "呼吸"),
		keywords(CategoryMedication,
			"藥", "药", "止痛", "抗生素", "胰島素", "胰岛素", "阿斯匹靈", "阿司匹林", "劑量", "剂量",
			"過敏", "过敏", "點滴", "点滴", "針劑", "针剂"),
		keywords(CategorySymptom,
			"痛", "疼", "暈", "晕", "吐", "嘔", "呕", "咳", "腫", "肿", "癢", "痒", "麻", "出血", "流血",
			"腹瀉", "腹泻", "拉肚子", "喘", "抽筋", "發冷", "发冷", "不舒服"),
		keywords(CategoryProcedure,
			"手術", "手术", "開刀", "开刀", "打針", "打针", "抽血", "檢查", "检查", "掃描", "扫描",
			"照光", "住院", "注射", "麻醉", "化驗", "化验"),
		keywords(CategoryChronic,
			"糖尿病", "高血壓", "高血压", "心臟病", "心脏病", "氣喘", "哮喘", "癌", "中風", "中风",
			"腎臟", "肾脏", "洗腎", "洗肾"),
		keywords(CategoryNegation, "不", "沒", "没", "無", "无", "別", "别", "未"),
	),
	"en": concat(
		keywords(CategoryVital,
			"blood pressure", "heart rate", "pulse", "temperature", "fever", "blood sugar", "oxygen", "breathing"),
		keywords(CategoryMedication,
			"medicine", "medication", "pill", "dose", "painkiller", "antibiotic", "insulin", "aspirin", "allergic", "allergy"),
		keywords(CategorySymptom,
			"pain", "hurt", "ache", "dizzy", "vomit", "nausea", "cough", "swollen", "itch", "numb", "bleeding", "diarrhea"),
		keywords(CategoryProcedure,
			"surgery", "operation", "injection", "blood test", "scan", "x-ray", "anesthesia", "admitted"),
		keywords(CategoryChronic,
			"diabetes", "hypertension", "heart disease", "asthma", "cancer", "stroke", "kidney"),
		keywords(CategoryNegation, "not", "no", "never", "don't", "didn't", "can't", "without"),
	),
}

// RiskKeywords returns the domain-risk keyword list for a source language
func RiskKeywords(lang string) []Keyword {
	return riskKeywords[Base(lang)]
}

var units = map[string][]string{
	"zh": {
		"度", "℃", "°c", "mg", "毫克", "公斤", "kg", "毫升", "ml", "cc", "mmhg", "毫米汞柱",
		"顆", "颗", "粒", "片", "單位", "单位", "%",
	},
	"en": {
		"°c", "°f", "degrees", "mg", "milligram", "kg", "kilogram", "ml", "cc", "mmhg", "units", "tablets", "%",
	},
}

// Units returns the lowercased unit tokens for a source language
func Units(lang string) []string {
	return units[Base(lang)]
}

// negationPatterns detect negation markers per language. Languages without an
// entry cannot be checked for negation mismatches.
var negationPatterns = map[string]*regexp.Regexp{
	"zh": regexp.MustCompile(`不|沒|没|無|无|別|别|未|否認|否认|勿`),
	"ja": regexp.MustCompile(`ない|ません|なかった|なし|無い|いいえ|ず[、。]?$`),
	"ko": regexp.MustCompile(`않|없|못|아니|안 `),
	"en": wordPattern(`no`, `not`, `never`, `none`, `nothing`, `nobody`, `neither`, `nor`, `without`,
		`deny`, `denies`, `denied`, `cannot`,
		`(?:do|does|did|is|are|was|were|have|has|had|can|could|would|should|wo|ca)n['’]t`),
	"es": wordPattern(`no`, `nunca`, `nada`, `nadie`, `ningún`, `ninguno`, `ninguna`, `sin`, `tampoco`, `jamás`),
	"fr": wordPattern(`ne`, `pas`, `jamais`, `aucun`, `aucune`, `sans`, `non`, `rien`),
	"de": wordPattern(`nicht`, `kein`, `keine`, `keinen`, `keiner`, `nie`, `niemals`, `ohne`, `nein`),
	"vi": wordPattern(`không`, `chưa`, `chẳng`, `đừng`, `chớ`),
}

// NegationPattern returns the negation-marker pattern for a language, or nil
func NegationPattern(lang string) *regexp.Regexp {
	return negationPatterns[Base(lang)]
}

func wordPattern(words ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(?:` + strings.Join(words, "|") + `)(?:[^\p{L}\p{N}]|$)`)
}

var terms = map[string][]Term{
	"zh>en": {
		{"血壓", "blood pressure", CategoryVital},
		{"心跳", "heart rate", CategoryVital},
		{"脈搏", "pulse", CategoryVital},
		{"體溫", "body temperature", CategoryVital},
		{"發燒", "fever", CategoryVital},
		{"血糖", "blood sugar", CategoryVital},
		{"血氧", "blood oxygen level", CategoryVital},
		{"止痛藥", "painkiller", CategoryMedication},
		{"抗生素", "antibiotics", CategoryMedication},
		{"胰島素", "insulin", CategoryMedication},
		{"阿斯匹靈", "aspirin", CategoryMedication},
		{"過敏", "allergy", CategoryMedication},
		{"頭", "head", CategoryBodyPart},
		{"胸口", "chest", CategoryBodyPart},
		{"肚子", "abdomen", CategoryBodyPart},
		{"喉嚨", "throat", CategoryBodyPart},
		{"糖尿病", "diabetes", CategoryChronic},
		{"高血壓", "hypertension", CategoryChronic},
		{"氣喘", "asthma", CategoryChronic},
		{"手術", "surgery", CategoryProcedure},
		{"抽血", "blood draw", CategoryProcedure},
		{"毫克", "mg", CategoryUnit},
		{"度", "degrees Celsius", CategoryUnit},
		{"公斤", "kg", CategoryUnit},
		{"沒有", "no / did not", CategoryNegation},
		{"不要", "do not", CategoryNegation},
	},
	"en>zh": {
		{"blood pressure", "血壓", CategoryVital},
		{"heart rate", "心跳", CategoryVital},
		{"temperature", "體溫", CategoryVital},
		{"fever", "發燒", CategoryVital},
		{"blood sugar", "血糖", CategoryVital},
		{"painkiller", "止痛藥", CategoryMedication},
		{"antibiotics", "抗生素", CategoryMedication},
		{"insulin", "胰島素", CategoryMedication},
		{"allergy", "過敏", CategoryMedication},
		{"chest", "胸口", CategoryBodyPart},
		{"abdomen", "肚子", CategoryBodyPart},
		{"diabetes", "糖尿病", CategoryChronic},
		{"hypertension", "高血壓", CategoryChronic},
		{"surgery", "手術", CategoryProcedure},
		{"mg", "毫克", CategoryUnit},
		{"do not", "不要", CategoryNegation},
	},
}

// Terms returns the fixed glossary for a language pair, or nil when none exists
func Terms(sourceLang, targetLang string) []Term {
	return terms[Base(sourceLang)+">"+Base(targetLang)]
}

func set(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, item := range items {
		m[item] = struct{}{}
	}
	return m
}

func keywords(category Category, texts ...string) []Keyword {
	out := make([]Keyword, len(texts))
	for i, text := range texts {
		out[i] = Keyword{Text: text, Category: category}
	}
	return out
}

func concat(groups ...[]Keyword) []Keyword {
	var out []Keyword
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
