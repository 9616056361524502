package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built softwares version.
	Version string = KMSSemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

const (
	// KMSSemVer is the current version of the KMS.
	// It's the Semantic Version of the software.
	// Must be a string because scripts like dist.sh read this file.
	KMSSemVer = "0.3.0"
)

// Protocol is used for implementation agnostic versioning.
type Protocol uint64

// Uint64 returns the Protocol version as a uint64.
func (p Protocol) Uint64() uint64 {
	return uint64(p)
}

var (
	// WireProtocol versions the sign request envelopes and the canonical
	// sign bytes.
	WireProtocol Protocol = 1

	// StateProtocol versions the persisted high-water-mark record.
	StateProtocol Protocol = 1
)

// Info is printed by `kms version --verbose`.
type Info struct {
	KMS           string `json:"kms"`
	GitCommit     string `json:"git_commit,omitempty"`
	WireProtocol  uint64 `json:"wire_protocol"`
	StateProtocol uint64 `json:"state_protocol"`
}

// Current returns the Info of this build.
func Current() Info {
	return Info{
		KMS:           Version,
		GitCommit:     GitCommit,
		WireProtocol:  WireProtocol.Uint64(),
		StateProtocol: StateProtocol.Uint64(),
	}
}
