package transcription

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
)

const (
	activityWindowMs = 40
	// noiseWindowCount covers roughly the first second of audio.
	noiseWindowCount = 25
	noiseMultiplier  = 3.5
	absoluteFloor    = 0.01
)

// FirstActivityMs locates the onset of real signal in a WAV file: RMS over
// 40 ms windows, a noise floor from the median of the first second, and the
// first window above max(absoluteFloor, 3.5x noise) that a neighboring
// window corroborates. Returns 0 when no window qualifies.
func FirstActivityMs(path string) (int, error) {
	samples, sampleRate, err := decodeWAV(path)
	if err != nil {
		return 0, err
	}
	windowSize := sampleRate * activityWindowMs / 1000
	if windowSize <= 0 || len(samples) < windowSize {
		return 0, nil
	}

	var rms []float64
	for start := 0; start+windowSize <= len(samples); start += windowSize {
		var sum float64
		for _, s := range samples[start : start+windowSize] {
			sum += s * s
		}
		rms = append(rms, math.Sqrt(sum/float64(windowSize)))
	}

	head := rms
	if len(head) > noiseWindowCount {
		head = head[:noiseWindowCount]
	}
	noise := medianOf(head)
	threshold := math.Max(absoluteFloor, noiseMultiplier*noise)

	for i, value := range rms {
		if value <= threshold {
			continue
		}
		corroborated := (i > 0 && rms[i-1] > threshold) || (i+1 < len(rms) && rms[i+1] > threshold)
		if corroborated {
			return i * activityWindowMs, nil
		}
	}
	return 0, nil
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// decodeWAV reads a RIFF/WAVE file into normalized mono samples in [-1,1].
// Supported encodings: 16/24/32-bit integer PCM and 32-bit float.
func decodeWAV(path string) ([]float64, int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, 0, errors.New("not a RIFF/WAVE file")
	}

	var (
		format        uint16
		channels      int
		sampleRate    int
		bitsPerSample int
		data          []byte
	)
	offset := 12
	for offset+8 <= len(raw) {
		chunkID := string(raw[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(raw[offset+4 : offset+8]))
		body := raw[offset+8:]
		if chunkSize > len(body) {
			chunkSize = len(body)
		}
		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, 0, errors.New("short fmt chunk")
			}
			format = binary.LittleEndian.Uint16(body[0:2])
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
		case "data":
			data = body[:chunkSize]
		}
		offset += 8 + chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
	}
	if data == nil || channels == 0 || sampleRate == 0 {
		return nil, 0, errors.New("missing fmt or data chunk")
	}

	bytesPer := bitsPerSample / 8
	if bytesPer == 0 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d", bitsPerSample)
	}
	frameSize := bytesPer * channels
	frames := len(data) / frameSize
	samples := make([]float64, 0, frames)
	for f := 0; f < frames; f++ {
		var sum float64
		for c := 0; c < channels; c++ {
			chunk := data[f*frameSize+c*bytesPer:]
			value, err := decodeSample(chunk, format, bitsPerSample)
			if err != nil {
				return nil, 0, err
			}
			sum += value
		}
		samples = append(samples, sum/float64(channels))
	}
	return samples, sampleRate, nil
}

func decodeSample(chunk []byte, format uint16, bits int) (float64, error) {
	const pcm, ieeeFloat = 1, 3
	switch {
	case format == pcm && bits == 16:
		return float64(int16(binary.LittleEndian.Uint16(chunk))) / 32768, nil
	case format == pcm && bits == 24:
		value := int32(chunk[0]) | int32(chunk[1])<<8 | int32(chunk[2])<<16
		if value&0x800000 != 0 {
			value -= 1 << 24
		}
		return float64(value) / 8388608, nil
	case format == pcm && bits == 32:
		return float64(int32(binary.LittleEndian.Uint32(chunk))) / 2147483648, nil
	case format == ieeeFloat && bits == 32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(chunk))), nil
	default:
		return 0, fmt.Errorf("unsupported sample format %d/%d-bit", format, bits)
	}
}
