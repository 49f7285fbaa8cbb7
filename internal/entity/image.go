package entity

import "time"

// Source types
const (
	SourceUpload = "upload"
	SourceURL    = "url"
)

// SourceImage is the durable metadata of one logical image, keyed by the
// content hash of its original bytes. Created on first intake, read-only
// after.
type SourceImage struct {
	ID               string             `bson:"_id,omitempty" json:"metadata_id"`
	ContentHash      string             `bson:"content_hash" json:"content_hash"`
	PerceptualHash   string             `bson:"phash" json:"perceptual_hash"`
	Filename         string             `bson:"filename" json:"filename"`
	OriginalFilename string             `bson:"original_filename" json:"original_filename,omitempty"`
	SourceType       string             `bson:"source_type" json:"source_type"`
	SourceURL        string             `bson:"source_url,omitempty" json:"source_url,omitempty"`
	StorageKey       string             `bson:"storage_key" json:"-"`
	UploadDate       time.Time          `bson:"upload_date" json:"upload_date"`
	ProcessedImages  []ProcessedVersion `bson:"processed_images" json:"processed_images,omitempty"`
}

// ProcessedVersion is one distinct processed variant of a source image.
// Exactly one exists per fingerprint; re-requesting the same fingerprint
// returns the existing record.
type ProcessedVersion struct {
	Fingerprint   string       `bson:"fingerprint" json:"fingerprint"`
	Operations    OperationSet `bson:"operations" json:"operations"`
	StorageKey    string       `bson:"storage_key" json:"storage_key"`
	OutputHash    string       `bson:"output_hash" json:"output_hash"`
	OutputFormat  string       `bson:"output_format" json:"output_format"`
	ProcessedDate time.Time    `bson:"processed_date" json:"processed_date"`
}

// CacheEntry is the transient fingerprint -> blob locator record. The
// ledger stays authoritative; expiry of an entry only costs a recompute.
type CacheEntry struct {
	StorageKey   string `json:"storage_key"`
	OutputFormat string `json:"output_format"`
	OutputHash   string `json:"output_hash"`
}

// Auth decision reasons
const (
	ReasonValidated           = "validated"
	ReasonDenied              = "denied"
	ReasonFallbackPermissive  = "fallback-permissive"
	ReasonFallbackRestrictive = "fallback-restrictive"
)

// AuthDecision is computed fresh per request and never cached: token
// state may change between requests.
type AuthDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	UserID  string `json:"user_id,omitempty"`
}

// UploadResponse is returned by POST /images/upload.
type UploadResponse struct {
	Message        string `json:"message"`
	MetadataID     string `json:"metadata_id"`
	ContentHash    string `json:"content_hash"`
	PerceptualHash string `json:"perceptual_hash"`
	Filename       string `json:"filename"`
}

// VersionsResponse is returned by GET /images/:hash/versions.
type VersionsResponse struct {
	ContentHash string             `json:"content_hash"`
	Count       int                `json:"count"`
	Versions    []ProcessedVersion `json:"versions"`
}

// ErrorResponse is the structured error body of every failed request.
type ErrorResponse struct {
	Message string `json:"message"`
}
