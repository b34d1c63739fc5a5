// Package scheduler registers named schedules and turns their triggers into
// tasks for the task engine.
//
// Schedules are upserted by name: registering a name that already exists
// replaces the previous registration. Definitions survive Stop/Start and
// timezone changes.
package scheduler
