// Package compute turns the forecast model's raw numbers into decisions.
//
// Classifier maps a risk score in [0, 1] to a RiskLevel through an ordered,
// configurable threshold table. Planner converts surge percentages and current
// capacity into non-negative integer resource deltas (ICU beds, staff) and
// derives the supply status.
//
// Both are pure: no I/O, no clock, no shared state.
package compute
