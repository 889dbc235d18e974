// Package artifact defines the deployable-unit model shared by the
// retrieval, diff, and deployment stages, plus the content hashing used
// to compare artifact trees across environments.
package artifact

// ContentState describes how far retrieval got for one artifact.
type ContentState int

const (
	// Unretrieved means no retrieval has been attempted yet.
	Unretrieved ContentState = iota

	// LocalFiles means the artifact's files were materialized locally
	// and can be hashed and deployed directly.
	LocalFiles

	// MarkerOnly means the artifact provably exists on the environment
	// but its bytes could not be brought to the local filesystem. The
	// artifact is real; it just cannot be compared by content.
	MarkerOnly

	// RetrievalFailed means every strategy was exhausted (or the
	// platform reported not-found). See FailureReason.
	RetrievalFailed
)

// String returns a human-readable name for logs.
func (s ContentState) String() string {
	switch s {
	case Unretrieved:
		return "unretrieved"
	case LocalFiles:
		return "local-files"
	case MarkerOnly:
		return "marker-only"
	case RetrievalFailed:
		return "retrieval-failed"
	default:
		return "invalid"
	}
}

// FailureReason distinguishes "does not exist" from "could not inspect".
// Conflating the two would let the diff stage silently skip deploying an
// artifact that in fact differs.
type FailureReason int

const (
	// FailureNone: retrieval did not fail.
	FailureNone FailureReason = iota

	// FailureNotFound: the platform definitively reported the artifact
	// does not exist on that environment.
	FailureNotFound

	// FailureUnknown: every strategy failed without a definitive answer.
	FailureUnknown
)

// String returns a human-readable name for logs.
func (r FailureReason) String() string {
	switch r {
	case FailureNone:
		return "none"
	case FailureNotFound:
		return "not-found"
	case FailureUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Artifact is one named deployable unit on one environment.
// Created fresh per reconciliation run; never persisted.
type Artifact struct {
	// Name is the unique key within an inventory.
	Name string

	// State records the retrieval outcome.
	State ContentState

	// Dir is the local directory holding the files. Only meaningful
	// when State is LocalFiles.
	Dir string

	// Hash is the content hash of the file tree under Dir. Only set
	// when State is LocalFiles.
	Hash Hash

	// Reason is set when State is RetrievalFailed.
	Reason FailureReason
}

// Comparable reports whether the artifact's content can participate in a
// hash comparison.
func (a Artifact) Comparable() bool {
	return a.State == LocalFiles
}

// SentinelFileName is the legacy marker file older toolkit versions
// dropped into retrieved directories. It carries no content and is
// excluded from hashing and deployment payloads wherever trees from
// those versions are encountered.
const SentinelFileName = ".stacksync-retrieved"
