// Package gate implements the two deterministic gates of the translation
// pipeline: the cost-control heuristic that decides whether a segment earns a
// Quality Pass, and the QualityGate scorer that judges a produced translation.
package gate
