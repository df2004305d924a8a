// Package forecast chains the stages that turn a hospital and a date into a
// Briefing: feature aggregation, the model call, risk classification,
// resource planning and the advisor's recommendations and reasons.
//
// A Pipeline has no caching and no history; the forecast cache in package
// store calls Compute and publishes the result.
package forecast
