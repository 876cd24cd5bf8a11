package routes

const apiVersion = "v1"

// Base returns the versioned API base path ("/api/v1").
func Base() string {
	return "/api/" + apiVersion
}

// Transcripts returns the transcripts resource path ("/api/v1/transcripts").
func Transcripts() string {
	return Base() + "/transcripts"
}

func Ingest() string { return Transcripts() + "/ingest" }
func Query() string  { return Transcripts() + "/query" }

// Health is unversioned so liveness checks survive API version bumps.
func Health() string {
	return "/health"
}
