package types

import (
	"time"

	"github.com/google/uuid"
)

// DefaultVersion is assigned to records that do not carry a version
const DefaultVersion = "1.0"

// ContentType classifies what an entry's archive holds
type ContentType string

const (
	ContentTypeUnknown ContentType = "Unknown"
	ContentTypeGame    ContentType = "Game"
	ContentTypeComic   ContentType = "Comic"
	ContentTypeNovel   ContentType = "Novel"
	ContentTypeMusic   ContentType = "Music"
	ContentTypeAnime   ContentType = "Anime"
)

// ContentTypes lists every known content type in display order
var ContentTypes = []ContentType{
	ContentTypeUnknown,
	ContentTypeGame,
	ContentTypeComic,
	ContentTypeNovel,
	ContentTypeMusic,
	ContentTypeAnime,
}

// Valid reports whether c is one of the known content types
func (c ContentType) Valid() bool {
	for _, known := range ContentTypes {
		if c == known {
			return true
		}
	}
	return false
}

// PlatformKind is the closed part of the Platform union
type PlatformKind string

const (
	PlatformUnknown PlatformKind = "Unknown"
	PlatformSteam   PlatformKind = "Steam"
	PlatformDLSite  PlatformKind = "DLSite"
	PlatformOther   PlatformKind = "Other"
)

// Platform records where an entry came from. Name carries the payload of
// PlatformOther and is empty for every other kind.
//
// The serialized shape {"platform": "...", "id": "..."} matches data written
// by earlier releases.
type Platform struct {
	Kind PlatformKind `json:"platform" yaml:"platform"`
	Name string       `json:"id,omitempty" yaml:"id,omitempty"`
}

// NewPlatform builds a closed-variant platform. Use OtherPlatform for the
// open variant.
func NewPlatform(kind PlatformKind) Platform {
	if kind == PlatformOther {
		return Platform{Kind: PlatformOther}
	}
	return Platform{Kind: kind}
}

// OtherPlatform builds the open variant carrying a free-form name
func OtherPlatform(name string) Platform {
	return Platform{Kind: PlatformOther, Name: name}
}

// ParsePlatform maps user input onto a Platform. Anything that is not a
// known kind becomes Other(input).
func ParsePlatform(s string) Platform {
	switch PlatformKind(s) {
	case "", PlatformUnknown:
		return Platform{Kind: PlatformUnknown}
	case PlatformSteam, PlatformDLSite:
		return Platform{Kind: PlatformKind(s)}
	default:
		return OtherPlatform(s)
	}
}

// String returns the display name; Other renders as its payload
func (p Platform) String() string {
	switch p.Kind {
	case PlatformOther:
		return p.Name
	case "":
		return string(PlatformUnknown)
	default:
		return string(p.Kind)
	}
}

// DeployType describes how a deployment was materialized on disk
type DeployType string

const (
	// DeployTypeDirectory means the archive contents fill a target directory
	DeployTypeDirectory DeployType = "Directory"
	// DeployTypeCopyFile means a single file was copied into the target
	DeployTypeCopyFile DeployType = "CopyFile"
)

// Tag is a free-form label with an optional category
type Tag struct {
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
}

// Record is one catalogue entry. Optional string fields use the empty string
// for "absent"; SizeBytes is a pointer because zero is a valid size.
type Record struct {
	ID            string      `json:"id" yaml:"id,omitempty"`
	Title         string      `json:"title" yaml:"title"`
	OriginalTitle string      `json:"original_title,omitempty" yaml:"original_title,omitempty"`
	ContentType   ContentType `json:"content_type" yaml:"content_type,omitempty"`
	Platform      Platform    `json:"platform" yaml:"platform"`
	PlatformID    string      `json:"platform_id,omitempty" yaml:"platform_id,omitempty"`

	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string `json:"version" yaml:"version,omitempty"`
	Developer   string `json:"developer,omitempty" yaml:"developer,omitempty"`
	Publisher   string `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	ReleaseDate string `json:"release_date,omitempty" yaml:"release_date,omitempty"`

	ArchivePath     string     `json:"archive_path,omitempty" yaml:"archive_path,omitempty"`
	ArchivePassword string     `json:"archive_password,omitempty" yaml:"archive_password,omitempty"`
	DeployedPath    string     `json:"deployed_path,omitempty" yaml:"deployed_path,omitempty"`
	DeployedType    DeployType `json:"deployed_type,omitempty" yaml:"deployed_type,omitempty"`
	SizeBytes       *uint64    `json:"size_bytes,omitempty" yaml:"size_bytes,omitempty"`

	Tags []Tag `json:"tags" yaml:"tags,omitempty"`

	DateCreated time.Time `json:"date_created" yaml:"date_created,omitempty"`
	DateUpdated time.Time `json:"date_updated" yaml:"date_updated,omitempty"`
}

// Now is the clock used for record timestamps. Tests may replace it.
var Now = func() time.Time {
	return time.Now().UTC()
}

// NewID returns a fresh record identifier
func NewID() string {
	return uuid.New().String()
}

// NewRecord creates a record pointing at an existing archive
func NewRecord(title string, platform Platform, platformID, archivePath string) *Record {
	now := Now()
	return &Record{
		ID:          NewID(),
		Title:       title,
		ContentType: ContentTypeUnknown,
		Platform:    platform,
		PlatformID:  platformID,
		Version:     DefaultVersion,
		ArchivePath: archivePath,
		Tags:        []Tag{},
		DateCreated: now,
		DateUpdated: now,
	}
}

// ApplyDefaults fills in the values a freshly decoded record may lack
func (r *Record) ApplyDefaults() {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.ContentType == "" {
		r.ContentType = ContentTypeUnknown
	}
	if r.Platform.Kind == "" {
		r.Platform.Kind = PlatformUnknown
	}
	if r.Version == "" {
		r.Version = DefaultVersion
	}
	if r.Tags == nil {
		r.Tags = []Tag{}
	}
	now := Now()
	if r.DateCreated.IsZero() {
		r.DateCreated = now
	}
	if r.DateUpdated.IsZero() {
		r.DateUpdated = r.DateCreated
	}
}

// Touch advances DateUpdated. The new value is always strictly later than
// the previous one, even when the clock has not moved.
func (r *Record) Touch() {
	now := Now()
	if !now.After(r.DateUpdated) {
		now = r.DateUpdated.Add(time.Microsecond)
	}
	if now.Before(r.DateCreated) {
		now = r.DateCreated
	}
	r.DateUpdated = now
}

// IsDeployed reports whether the record tracks a deployment
func (r *Record) IsDeployed() bool {
	return r.DeployedPath != "" && r.DeployedType != ""
}

// SetDeployment records a completed deployment and touches the record
func (r *Record) SetDeployment(path string, kind DeployType) {
	r.DeployedPath = path
	r.DeployedType = kind
	r.Touch()
}

// ClearDeployment drops deployment tracking and touches the record
func (r *Record) ClearDeployment() {
	r.DeployedPath = ""
	r.DeployedType = ""
	r.Touch()
}

// SetSize stores a calculated archive size
func (r *Record) SetSize(size uint64) {
	r.SizeBytes = &size
}

// Size returns the stored size and whether one was ever calculated
func (r *Record) Size() (uint64, bool) {
	if r.SizeBytes == nil {
		return 0, false
	}
	return *r.SizeBytes, true
}

// Clone returns a deep copy so callers never share state with the store
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.SizeBytes != nil {
		size := *r.SizeBytes
		out.SizeBytes = &size
	}
	if r.Tags != nil {
		out.Tags = make([]Tag, len(r.Tags))
		copy(out.Tags, r.Tags)
	}
	return &out
}

// Library is the interchange shape used by export/import and listings.
// It is never the source of truth.
type Library struct {
	Entries []Record `json:"entries"`
}
