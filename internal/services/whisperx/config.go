package whisperx

// Config captures runtime settings for WhisperX operations.
type Config struct {
	// Model is the WhisperX model to use (e.g., "large-v3-turbo").
	Model string
	// CUDAEnabled runs inference on the GPU.
	CUDAEnabled bool
	// Language is a BCP 47 or ISO 639 code; empty lets WhisperX detect it.
	Language string
}

// WhisperX invocation constants tuned for short, noisy radio calls.
const (
	DefaultModel   = "large-v3"
	CUDAIndexURL   = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL   = "https://pypi.org/simple"
	BatchSize      = "8"
	VADOnset       = "0.3"
	VADOffset      = "0.2"
	BeamSize       = "5"
	Temperature    = "0.0"
	OutputFormat   = "json"
	CPUDevice      = "cpu"
	CUDADevice     = "cuda"
	CPUComputeType = "int8"
	VADMethod      = "silero"
)

// Command names for external tools.
const (
	UVXCommand    = "uvx"
	FFmpegCommand = "ffmpeg"
)
