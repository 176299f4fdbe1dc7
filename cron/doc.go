// Package cron decides whether a recurring schedule is due "now".
//
// The engine is poll-driven: clients ask roughly once a minute whether
// anything should fire, so there is no resident tick loop here. The
// Evaluator computes the next fire time of a 5-field cron expression in a
// fixed reference timezone and reports due when it falls within a short
// tolerance window around the caller's "now".
//
// Malformed expressions fail closed (not due) so a single broken mission
// cannot block evaluation of the rest of a user's schedule.
package cron
