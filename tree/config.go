package tree

import (
	"encoding/hex"
	"log/slog"

	"github.com/google/uuid"
)

// Config holds configuration for a Tree. Start from DefaultConfig; the
// boolean switches default to false in the zero Config.
type Config struct {
	// Logger receives operational logs.
	// Default: slog.Default()
	Logger *slog.Logger

	// NewID generates record ids for Create and bucket names for root-level
	// Create.
	// Default: time-ordered UUIDv7 rendered as 32 lowercase hex characters
	NewID func() string

	// SyncBucketCleanup drops a bucket in the same call as the delete that
	// emptied it. When false, cleanup is left to the stream handler.
	// Default: true
	SyncBucketCleanup bool

	// VerifyWrites re-reads written locations and checks adapter change
	// counts, reporting ErrStorage on a mismatch.
	// Default: true
	VerifyWrites bool

	// IndexNotDefinedAsEmpty turns an ordering without a matching index rule
	// into an empty result plus a warning log instead of an
	// IndexNotDefinedError.
	// Default: false
	IndexNotDefinedAsEmpty bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		SyncBucketCleanup: true,
		VerifyWrites:      true,
	}
}

// validate fills in unset dependencies.
func (c *Config) validate() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.NewID == nil {
		c.NewID = newID
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return hex.EncodeToString(id[:])
}
