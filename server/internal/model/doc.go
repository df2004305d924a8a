// Package model talks to the external forecast model.
//
// Predictor is the only contract the pipeline depends on: 11 features in,
// three numbers in [0, 1] out. HTTPClient calls a model service over JSON with
// a per-attempt timeout, a bounded number of retries and a token-bucket rate
// limit. Heuristic is the rule-based fallback used when no model endpoint is
// configured; its output is flagged Fallback.
//
// Failures are classified for the forecast cache: deadline errors are
// fault.KindModelTimeout, everything else that prevents an answer is
// fault.KindModelUnavailable, and an answer outside [0, 1] is
// fault.KindOutOfRange.
package model
