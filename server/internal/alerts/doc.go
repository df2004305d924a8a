// Package alerts implements the rule evaluation engine and webhook delivery
// for briefing alerting. Rules are evaluated against every published
// briefing; webhooks are delivered to Teams, Slack or generic HTTP targets.
package alerts
