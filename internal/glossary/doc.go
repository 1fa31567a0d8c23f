// Package glossary holds the static, read-only domain tables shared by the
// cost-control gate, the quality gate and prompt construction: acknowledgement
// blacklists, risk keywords, unit tokens, per-language negation patterns and
// the term glossary per language pair.
package glossary
