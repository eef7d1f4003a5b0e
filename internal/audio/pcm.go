package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Duration returns the playing time of a PCM byte count at the pipeline
// format.
func Duration(byteLen int) time.Duration {
	if byteLen <= 0 {
		return 0
	}
	samples := byteLen / BytesPerSample
	return time.Duration(float64(samples) / float64(SampleRate) * float64(time.Second))
}

// Seconds is Duration expressed as a float, matching the position
// reporting convention of the player.
func Seconds(byteLen int) float64 {
	return Duration(byteLen).Seconds()
}

// Tone renders a sine burst as 16-bit PCM with a short linear fade on
// both edges so cues don't click.
func Tone(freq float64, d time.Duration, amplitude float64) []byte {
	if amplitude < 0 {
		amplitude = 0
	}
	if amplitude > 1 {
		amplitude = 1
	}

	samples := int(float64(SampleRate) * d.Seconds())
	fade := SampleRate / 100 // 10ms edges
	if fade*2 > samples {
		fade = samples / 2
	}

	out := make([]byte, samples*BytesPerSample)
	for i := 0; i < samples; i++ {
		v := math.Sin(2 * math.Pi * freq * float64(i) / float64(SampleRate))

		gain := 1.0
		if i < fade {
			gain = float64(i) / float64(fade)
		} else if i > samples-fade {
			gain = float64(samples-i) / float64(fade)
		}

		sample := int16(v * gain * amplitude * math.MaxInt16)
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(sample))
	}
	return out
}

// TrimWAVHeader strips a RIFF/WAVE header when present so raw PCM can be
// fed to the device. Data without a recognizable header passes through
// untouched.
func TrimWAVHeader(data []byte) []byte {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return data
	}

	// Walk chunks to the data chunk; a canonical header is 44 bytes but
	// encoders love to add LIST chunks.
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		if id == "data" {
			start := offset + 8
			end := start + size
			if end > len(data) || size <= 0 {
				end = len(data)
			}
			return data[start:end]
		}
		offset += 8 + size
	}
	return data
}
