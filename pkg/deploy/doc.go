/*
Package deploy implements the deployment lifecycle of catalogue records.

A Deployer extracts or copies a record's archive into a target location and
later cleans it up again, keeping the record's deployed_path/deployed_type
pair consistent with what is on disk.

# State machine

	                  Deploy(target)
	┌──────────────┐ ───────────────────▶ ┌──────────────────────────┐
	│ NotDeployed  │                      │ Deployed{path, kind}     │
	│ path="" type=""│ ◀─────────────────── │ kind = Directory|CopyFile│
	└──────────────┘     Undeploy()       └──────────────────────────┘

Deploy:
  - the record must have an archive path that exists
  - the target must not be an existing file; a missing target is created
  - directory archives and .zip/.rar/.7z need an empty target and yield
    Deployed{target, Directory}
  - any other file is copied into the target and yields
    Deployed{target/<name>, CopyFile}
  - a record that is already deployed is rejected unless
    Options.AllowRedeploy is set

Undeploy:
  - Directory: every entry inside the target is removed, the directory stays
  - CopyFile: the file is deleted
  - a missing, half-set or kind-mismatched deployment is cleared on the
    record and reported as ErrInvalidOperation

The record is only modified after the filesystem step succeeds, except for
the normalization in Undeploy. Persisting the record is the caller's job.

# Size calculation

PathSize returns a file's length or the recursive sum of file lengths in a
directory. Unreadable entries inside a directory are skipped.

	d := deploy.NewDeployer(archive.NewRegistry(archive.Options{}), deploy.Options{})
	if err := d.CalculateSize(rec); err != nil {
		return err
	}
	if err := d.Deploy(rec, "/games/active"); err != nil {
		return err
	}
*/
package deploy
