// Package engine implements the one-shot reminder scheduling core.
//
// # Overview
//
// A Schedule is a durable row asking for a single notification at a target
// instant. The instant is stored as a 5-field cron expression ("m h dom mon
// *", the original minute/hour/day/month encoding), and a registry of live
// timers evaluates every active schedule's expression on a shared sweep
// tick. When an expression matches, the dispatcher refetches the schedule
// and its owner/vehicle/service rows, emails the reminder, and flips the row
// to sent/inactive with a compare-and-set guard.
//
// # Delivery semantics
//
// Delivery is at-most-once, best-effort. A fire is one-shot regardless of
// callback outcome: the registry entry is removed when the pattern matches,
// and a failed send only comes back through reconciliation (see the
// failure_policy config). The expression itself would match again a year
// later; the Active flag plus the CAS transition is what prevents a second
// send.
//
// # Reconciliation
//
// Reload materializes registry entries for every active schedule not
// already registered. It runs at startup and synchronously after every
// create/reschedule/cancel/delete, is idempotent, and never unregisters;
// removal happens only through explicit Stop calls on the mutation paths.
package engine
