// Package features assembles the model's 11-field input from a hospital's
// current state and the environmental signal for the forecast date.
//
// The aggregator is a pure read: it validates what it reads and fails fast on
// missing or out-of-range data. It never clamps.
package features
