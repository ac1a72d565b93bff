// Package audio implements the convert worker's unit of work: every call in
// the staging inbound directory is normalized with ffmpeg, transcribed with
// WhisperX, and handed to analysis as a transcript in the transcribing stage.
//
// A call that fails is returned to inbound for another pass while its failure
// is retryable and its attempt budget lasts. Otherwise it is parked in the
// failed stage. One bad recording never stops the rest of the pass.
package audio
