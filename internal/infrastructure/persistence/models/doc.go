// Package models contains the GORM models that map the ledger to database
// tables. Domain entities carry no ORM tags; each model has a ToDomain
// method and a <Model>FromDomain constructor.
//
//   - base.go: embedded ID and cooperative columns, and All for AutoMigrate
//   - cooperative.go: cooperatives, members, memberships, machines, usage events
//   - banking.go: import profiles, bank transactions, cooperative costs
//   - ledger.go: invoices, postings, cached balances, payment allocations
//
// The SQL migrations under migrations/ are the schema of record. AutoMigrate
// is only used by the in-memory test database.
package models
