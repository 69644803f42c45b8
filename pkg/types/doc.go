/*
Package types defines the catalogue data model shared by every other package.

A Record is one archived title: its provenance (Platform, PlatformID), the
on-disk archive it points at (ArchivePath, ArchivePassword, SizeBytes) and
its current deployment (DeployedPath, DeployedType). Records are value types:
the store owns the persisted copy and callers always receive clones.

# Deployment state

A record is either not deployed (DeployedPath and DeployedType both empty) or
deployed (both set). The helpers SetDeployment and ClearDeployment are the
only places that write those two fields and always write them together.

	NotDeployed ──Deploy──▶ Deployed{path, Directory|CopyFile}
	     ▲                          │
	     └────────Undeploy──────────┘

# Timestamps

DateCreated is set once. DateUpdated is advanced by Touch, which guarantees a
strictly later value on every mutation so ordering by update time is stable
even on coarse clocks.

# Platform

Platform is a closed set of kinds (Unknown, Steam, DLSite) plus an open
Other(name) variant. It serializes as {"platform": kind, "id": name} for
compatibility with libraries exported by earlier releases.

# Errors

errors.go declares the error kinds used across the module (ErrNotFound,
ErrStorage, ErrCodec, ErrFilesystem, ErrInvalidArchive, ErrInvalidOperation,
ErrConfig). Packages wrap them with fmt.Errorf("...: %w", kind).
*/
package types
