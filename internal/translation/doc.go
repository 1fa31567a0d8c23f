// Package translation implements model invocation against an OpenAI-compatible
// chat completions endpoint. The same client serves both translation passes;
// only the prompt and the model differ.
package translation
