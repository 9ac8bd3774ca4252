package version

// Version and Commit are overridden at build time with -ldflags "-X".
var (
	Version = "dev"
	Commit  = ""
)

// String is the one-line form printed by `repx version`.
func String() string {
	if Commit == "" {
		return "repx " + Version
	}
	return "repx " + Version + " (" + Commit + ")"
}
