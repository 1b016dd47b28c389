package store

import "time"

// Location is the logical collection entities are filed under
type Location struct {
	ID              string
	ShortID         string
	DisplayName     string
	ShortName       string
	State           string
	Type            string
	GPSLat          *float64
	GPSLng          *float64
	GPSAccuracy     *float64
	GPSSource       string
	GPSVerified     bool
	AddrStreet      string
	AddrCity        string
	AddrCounty      string
	AddrState       string
	AddrZip         string
	AddrConfidence  string
	AddrGeocodedAt  *time.Time
	FlagHistoric    bool
	FlagFavorite    bool
	FlagHostOnly    bool
	HeroFingerprint string
	BagStatus       string
	BagLastVerified *time.Time
	BagLastError    string

	StatsImageCount    int
	StatsVideoCount    int
	StatsDocumentCount int
	StatsMapCount      int
	StatsTotalBytes    int64
	StatsRefreshedAt   *time.Time

	CreatedAt       time.Time
	UpdatedAt       time.Time
	StatusChangedAt time.Time
}

// MediaKind names which per-kind table a media record belongs to.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaMap      MediaKind = "map"
)

// Media is the common shape of a media record across all four kind
// tables; kind-specific fields not relevant to a given kind are left
// zero-valued
type Media struct {
	Fingerprint         string
	Kind                MediaKind
	OriginalFilename    string
	ArchiveFilename     string
	OriginalPath        string
	ArchivePath         string
	LocationID          string
	SublocationID       string
	Importer            string
	ImportedAt          time.Time
	SizeBytes           int64
	Width               *int
	Height              *int
	DurationSeconds     *float64
	Codec               string
	CaptureDate         *time.Time
	GPSLat              *float64
	GPSLng              *float64
	Camera              string
	ThumbSmallPath      string
	ThumbLargePath      string
	PreviewPath         string
	PosterPath          string
	ProxyPath           string
	Hidden              bool
	HiddenReason        string
	IsLivePhoto         bool
	Contributed         bool
	ContributionSource  string
	XMPSynced           bool
}

// Hidden reason values invariant on media records.
const (
	HiddenReasonUser            = "user"
	HiddenReasonLivePhoto       = "live_photo"
	HiddenReasonSDRDuplicate    = "sdr_duplicate"
	HiddenReasonMetadataSidecar = "metadata_sidecar"
)

// Import summarizes one completed ingest session.
type Import struct {
	ID             string
	SessionID      string
	LocationID     string
	Importer       string
	CopyStrategy   string
	FileCount      int
	ByteCount      int64
	DuplicateCount int
	ErrorCount     int
	CreatedAt      time.Time
}

// SessionStatus is one of the import session lifecycle states
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionScanning   SessionStatus = "scanning"
	SessionHashing    SessionStatus = "hashing"
	SessionCopying    SessionStatus = "copying"
	SessionValidating SessionStatus = "validating"
	SessionFinalizing SessionStatus = "finalizing"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
	SessionFailed     SessionStatus = "failed"
)

// ImportSession is the durable, resumable row backing one orchestrator
// invocation
type ImportSession struct {
	SessionID          string
	LocationID         string
	Status             SessionStatus
	SourcePaths        []string
	CopyStrategy       string
	TotalFiles         int
	TotalBytes         int64
	LastStep           int
	ErrorMessage       string
	Resumable          bool
	ScanResultJSON     string
	HashResultJSON     string
	CopyResultJSON     string
	ValidateResultJSON string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ReferenceMap and ReferencePoint model external pin data
type ReferenceMap struct {
	ID         string
	FilePath   string
	Kind       string // "kml", "gpx", "geojson", "csv"
	PointCount int
	CreatedAt  time.Time
}

type ReferencePoint struct {
	ID               string
	MapID            string
	Name             string
	Description      string
	Lat              float64
	Lng              float64
	State            string
	Category         string
	AkaNames         []string
	LinkedLocationID string
	RawMetadataJSON  string
}
