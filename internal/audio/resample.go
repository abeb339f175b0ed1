package audio

// DownsamplePCM16 reduces the sample rate of little-endian 16-bit PCM by an
// integer factor using simple decimation with neighbor averaging. Good
// enough for the 16kHz synthesis -> 8kHz telephony leg.
func DownsamplePCM16(pcm []byte, factor int) []byte {
	if factor <= 1 {
		return pcm
	}
	samples := len(pcm) / 2
	outSamples := samples / factor
	out := make([]byte, outSamples*2)
	for i := 0; i < outSamples; i++ {
		var acc int32
		for j := 0; j < factor; j++ {
			idx := (i*factor + j) * 2
			acc += int32(int16(uint16(pcm[idx]) | uint16(pcm[idx+1])<<8))
		}
		avg := int16(acc / int32(factor))
		out[2*i] = byte(avg)
		out[2*i+1] = byte(uint16(avg) >> 8)
	}
	return out
}

// StripWAVHeader removes a RIFF/WAVE header when present, returning the
// raw sample data. Synthesis providers sometimes return WAV containers.
func StripWAVHeader(data []byte) []byte {
	if len(data) > 44 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return data[44:]
	}
	return data
}
