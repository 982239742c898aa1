package prosody

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var errNotPCM16 = errors.New("wav: only 16-bit PCM is supported")

// ReadWAV decodes a 16-bit PCM RIFF file into mono samples in [-1, 1].
// Multi-channel input is averaged.
func ReadWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return DecodeWAV(f)
}

func DecodeWAV(r io.Reader) ([]float64, int, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, 0, fmt.Errorf("wav header: %w", err)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return nil, 0, errors.New("wav: not a RIFF/WAVE file")
	}

	var (
		channels   int
		sampleRate int
		haveFmt    bool
	)
	for {
		var ch [8]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			return nil, 0, fmt.Errorf("wav: missing data chunk: %w", err)
		}
		id := string(ch[0:4])
		size := int64(binary.LittleEndian.Uint32(ch[4:8]))

		switch id {
		case "fmt ":
			buf := make([]byte, size)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, 0, fmt.Errorf("wav fmt: %w", err)
			}
			if len(buf) < 16 {
				return nil, 0, errors.New("wav: short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(buf[0:2])
			channels = int(binary.LittleEndian.Uint16(buf[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(buf[4:8]))
			bits := binary.LittleEndian.Uint16(buf[14:16])
			// 0xFFFE is WAVE_FORMAT_EXTENSIBLE, which ffmpeg emits for some layouts
			if (format != 1 && format != 0xFFFE) || bits != 16 || channels < 1 {
				return nil, 0, errNotPCM16
			}
			haveFmt = true
			if size%2 == 1 {
				io.CopyN(io.Discard, r, 1)
			}
		case "data":
			if !haveFmt {
				return nil, 0, errors.New("wav: data before fmt")
			}
			raw, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return nil, 0, fmt.Errorf("wav data: %w", err)
			}
			return pcmToMono(raw, channels), sampleRate, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return nil, 0, fmt.Errorf("wav skip %q: %w", id, err)
			}
		}
	}
}

func pcmToMono(raw []byte, channels int) []float64 {
	frames := len(raw) / (2 * channels)
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			sum += float64(int16(binary.LittleEndian.Uint16(raw[off:]))) / 32768.0
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// EncodeWAV writes mono 16-bit PCM. Used by tests and fixtures.
func EncodeWAV(w io.Writer, samples []float64, sampleRate int) error {
	dataLen := uint32(len(samples) * 2)
	hdr := make([]byte, 44)
	copy(hdr[0:], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:], 36+dataLen)
	copy(hdr[8:], "WAVE")
	copy(hdr[12:], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:], 16)
	binary.LittleEndian.PutUint16(hdr[20:], 1)
	binary.LittleEndian.PutUint16(hdr[22:], 1)
	binary.LittleEndian.PutUint32(hdr[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(hdr[32:], 2)
	binary.LittleEndian.PutUint16(hdr[34:], 16)
	copy(hdr[36:], "data")
	binary.LittleEndian.PutUint32(hdr[40:], dataLen)
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	buf := make([]byte, 2)
	for _, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(buf, uint16(int16(s*32767)))
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
