// Package transcription implements the HTTP client for the speech-to-text API.
// Finalized segments are wrapped in WAV and uploaded as multipart form data;
// the client retries transient failures with exponential backoff and bounds
// concurrent requests with a semaphore.
package transcription
