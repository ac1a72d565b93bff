package deps

// CheckFFmpeg reports the FFmpeg binary the converter will execute. An empty
// value falls back to "ffmpeg" on PATH.
func CheckFFmpeg(configured string) Status {
	return Check(Requirement{
		Name:        "FFmpeg",
		Command:     configured,
		Fallback:    "ffmpeg",
		Description: "Required to resample calls before transcription",
	})
}
