package ffmpeg

// PresetH264 is the browser-safe video encode used for renditions: H.264
// high profile, yuv420p, veryfast at CRF 23.
func PresetH264() []Option {
	return []Option{
		VideoCodec("libx264"),
		Preset("veryfast"),
		CRF(23),
		PixelFormat("yuv420p"),
		ExtraArgs("-profile:v", "high"),
	}
}

// PresetAAC is stereo AAC at 128k.
func PresetAAC() []Option {
	return []Option{
		AudioCodec("aac"),
		AudioBitrate("128k"),
		ExtraArgs("-ac", "2"),
	}
}
