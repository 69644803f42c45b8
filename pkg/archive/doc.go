/*
Package archive hides archive-format differences behind one capability.

Callers hand the Registry a path and a destination; the Registry classifies
the path and routes it to a format extractor, the same way a volume manager
routes requests to drivers:

	┌────────────────────────────────────────────────────┐
	│                     Registry                       │
	│  • DetectFormat (stat + case-insensitive extension)│
	│  • Decompress → Extractor for the format           │
	│  • Compress   → SevenZip only                      │
	└────────┬───────────────────────────────────────────┘
	         │
	   ┌─────┼─────────┬──────────┬──────────┐
	   ▼     ▼         ▼          ▼          ▼
	 dir    zip       rar        7z        plain
	 copy   klauspost rardecode  SevenZip  copy file
	        yeka(pw)             strategy  into dest

# Formats

	directory  recursive copy, structure preserved, symlinks recreated
	.zip       klauspost/compress (deflate, zstd method 93); with a password
	           yeka/zip decrypts each entry (ZipCrypto or WinZip AES)
	.rar       header-driven extraction with rardecode; directories are
	           created, links and other non-file headers are skipped
	.7z        SevenZip strategy, below
	other      copied verbatim into the destination under its own name

Every member name is resolved with safeJoin, so archives cannot write
outside the destination.

# 7z strategy

SevenZip picks a backend once per Registry and caches it:

	ExternalSevenZip   7z binary found on PATH and answering --help
	InProcessSevenZip  bodgit/sevenzip reader + WriteSevenZip

The external tool is only considered when Options.PreferExternal is set.
Both backends produce the same extracted tree.

WriteSevenZip emits a single solid folder: a Copy coder at level 0 or an
LZMA2 coder (ulikunitz/xz) otherwise, optionally chained behind a 7zAES
coder when a password is supplied. Headers are not encrypted on this path;
the external tool is invoked with -mhe=on.

# Errors

	ErrInvalidArchive     missing path, corrupt or unreadable archive
	ErrWrongPassword      encrypted member with a missing or bad password
	ErrUnsupportedFormat  Compress to anything other than .7z
	ErrFilesystem         I/O failures while copying or writing
*/
package archive
