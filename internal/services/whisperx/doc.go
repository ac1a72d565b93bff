// Package whisperx wraps the two external tools the convert worker shells out
// to: ffmpeg, which normalizes a downloaded call to mono 16 kHz PCM, and
// WhisperX (launched through uvx), which transcribes the normalized audio.
//
// Commands run through a pluggable runner so tests can record invocations and
// fabricate WhisperX output without the real binaries.
package whisperx
