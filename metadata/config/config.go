package config

// MaxRestarts bounds the number of times the refresh loop may restart after
// root succession or a verification failure before it gives up with
// ErrVerificationLoop.
const MaxRestarts = 5

// UpdaterConfig holds the limits and behavior knobs that guard a refresh
// cycle: maximum root versions to walk during succession, per-document
// download ceilings, and how many times to retry before failing.
type UpdaterConfig struct {
	MaxRootRotations   int64
	MaxRestarts        int
	RootMaxLength      int64
	TimestampMaxLength int64
	SnapshotMaxLength  int64
	MirrorsMaxLength   int64
	IndexMaxLength     int64
}

// New creates an UpdaterConfig with sane defaults, overridable by the CLI
// or embedding host.
func New() *UpdaterConfig {
	return &UpdaterConfig{
		MaxRootRotations:   32,
		MaxRestarts:        MaxRestarts,
		RootMaxLength:      512000,   // bytes
		TimestampMaxLength: 16384,    // bytes
		SnapshotMaxLength:  2000000,  // bytes
		MirrorsMaxLength:   100000,   // bytes
		IndexMaxLength:     50000000, // bytes
	}
}
