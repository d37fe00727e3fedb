package common

const GridEngineVersion = "1.0.0"

const UserAgent = "compute-core/" + GridEngineVersion

// AddComponentTag prefixes a log/user-agent style string with an optional
// caller-supplied component tag, mirroring the engine's convention of
// stamping outbound identifiers with a short origin marker.
func AddComponentTag(tag, s string) string {
	if len(tag) == 0 {
		return s
	}
	return tag + " " + s
}
