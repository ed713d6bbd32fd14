// Package ffmpeg builds ffmpeg invocations and runs them as child processes.
package ffmpeg

import "github.com/listenupapp/mediawatch/internal/capability"

// Video encoders per acceleration path.
const (
	CodecNVENC    = "h264_nvenc"
	CodecVAAPI    = "h264_vaapi"
	CodecSoftware = "libx264"
)

// ArgsSpec describes one transcode.
type ArgsSpec struct {
	Token        capability.Token
	Input        string
	Subtitle     string // optional
	Output       string
	VAAPIDevice  string
	Language     string
	AudioBitrate string
}

// VideoCodec returns the encoder used for a token.
func VideoCodec(token capability.Token) string {
	switch token {
	case capability.TokenNVENC:
		return CodecNVENC
	case capability.TokenVAAPI:
		return CodecVAAPI
	default:
		return CodecSoftware
	}
}

// BuildArgs constructs the ffmpeg arguments for one item. Every output option
// follows the last input so ffmpeg applies it to the output file.
func BuildArgs(spec ArgsSpec) []string {
	args := []string{"-y"}

	switch spec.Token {
	case capability.TokenNVENC:
		args = append(args, "-hwaccel", "cuda")
	case capability.TokenVAAPI:
		args = append(args, "-hwaccel", "vaapi", "-vaapi_device", spec.VAAPIDevice)
	}

	args = append(args, "-i", spec.Input)
	if spec.Subtitle != "" {
		args = append(args, "-i", spec.Subtitle)
	}

	args = append(args, "-map", "0:v:0", "-map", "0:a?")
	if spec.Subtitle != "" {
		args = append(args, "-map", "1:s:0")
	}

	if spec.Token == capability.TokenVAAPI {
		args = append(args, "-vf", "format=nv12,hwupload")
	}
	args = append(args, "-c:v", VideoCodec(spec.Token))

	if spec.Subtitle != "" {
		args = append(args,
			"-c:s", "mov_text",
			"-metadata:s:s:0", "language="+spec.Language,
		)
	}

	args = append(args,
		"-c:a", "aac",
		"-b:a", spec.AudioBitrate,
		"-profile:v", "main",
		"-level:v", "4.0",
		"-movflags", "+faststart",
		spec.Output,
	)

	return args
}
