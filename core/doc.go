// Package core defines the domain model, store contracts, error taxonomy
// and configuration for the scheduling integration subsystem: webhook
// events, sync/notification jobs, audit entries and the collaborator
// interfaces the outer packages (auth, webhooks, ats, writeback, worker)
// are built against.
package core
