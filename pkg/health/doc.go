/*
Package health provides the checks behind `metamgr doctor`.

	Checker
	├── StoreChecker    WarmUp + Count on the library store
	├── DataDirChecker  data directory exists and accepts a temp file
	└── ExecChecker     runs a command, exit code 0 is healthy (7z --help)

Run executes a list of named checks in order, each bounded by
Config.Timeout. A failing optional check is reported but does not make the
overall result unhealthy; the external 7z tool is optional because the
in-process codec covers it.
*/
package health
