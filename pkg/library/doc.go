/*
Package library implements the catalogue facade.

A Manager owns the store, the archive codec and the deployer. Every public
operation reads a record from the store, mutates it and writes it back, then
publishes an event and counts the outcome in pkg/metrics.

	┌──────────────────────── Manager ────────────────────────┐
	│                                                         │
	│  AddOrUpdate / Get / List / Delete                      │
	│  Deploy / DeployOff          ──▶ deploy.Deployer        │
	│  CreateFromFolder / Compress ──▶ archive.Codec (7z)     │
	│  Export / Import / ImportLegacy                         │
	│                   │                                     │
	│                   ▼                                     │
	│            storage.Store (bbolt)                        │
	│                                                         │
	│  events.Broker ──▶ log subscriber                       │
	└─────────────────────────────────────────────────────────┘

# Upsert

AddOrUpdate returns Inserted or Updated. An insert stores the record as
given. An update keeps the stored DateCreated, advances DateUpdated and
recalculates the size when the archive path changed; a failed recalculation
is logged and the update still happens.

# Deployment

Deploy and DeployOff persist the mutated record only after the filesystem
step succeeds. The exception is DeployOff on a record without a valid
deployment: the cleared record is saved and ErrInvalidOperation is still
returned.

The read-modify-write of a deploy is not one store transaction, so two
concurrent deploys of the same entry can lose an update.

# Created archives

CreateFromFolder writes to

	<data>/archive/<platform>/<platform id>.7z
	<data>/archive/<platform>/ANONYMOUS-YYYYMMDD-HHMMSS.7z   (no platform id)

at archive.MaxLevel, then stores a record with the calculated size and the
password.
*/
package library
