package stt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// pcmAudio is the payload of a 16-bit PCM WAV file.
type pcmAudio struct {
	Data       []byte
	SampleRate int
	Channels   int
	BlockAlign int // bytes per sample frame
}

// parseWAV locates the fmt and data chunks of a RIFF/WAVE file. Input without
// a RIFF header is taken as raw 16 kHz mono PCM, the media splitter's format.
func parseWAV(b []byte) (pcmAudio, error) {
	a := pcmAudio{SampleRate: 16000, Channels: 1, BlockAlign: 2}
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		a.Data = b
		return a, nil
	}

	found := false
	for off := 12; off+8 <= len(b) && !found; {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		end := body + size
		if size < 0 || end > len(b) {
			// streamed writers leave the size unset
			end = len(b)
		}
		switch id {
		case "fmt ":
			if end-body < 16 {
				return a, errors.New("wav: short fmt chunk")
			}
			if f := binary.LittleEndian.Uint16(b[body:]); f != 1 {
				return a, fmt.Errorf("wav: format %d is not PCM", f)
			}
			if bits := binary.LittleEndian.Uint16(b[body+14:]); bits != 16 {
				return a, fmt.Errorf("wav: %d-bit samples, want 16", bits)
			}
			a.Channels = int(binary.LittleEndian.Uint16(b[body+2:]))
			a.SampleRate = int(binary.LittleEndian.Uint32(b[body+4:]))
			a.BlockAlign = int(binary.LittleEndian.Uint16(b[body+12:]))
		case "data":
			a.Data = b[body:end]
			found = true
		}
		off = end + size&1
	}
	if !found {
		return a, errors.New("wav: no data chunk")
	}
	if a.SampleRate <= 0 || a.BlockAlign <= 0 || a.Channels <= 0 {
		return a, errors.New("wav: invalid fmt chunk")
	}
	return a, nil
}

// seconds is the playing time of n payload bytes.
func (a pcmAudio) seconds(n int) float64 {
	return float64(n/a.BlockAlign) / float64(a.SampleRate)
}

// chunks cuts the payload on sample frame boundaries into pieces no longer
// than max.
func (a pcmAudio) chunks(max time.Duration) [][]byte {
	per := int(max.Seconds()*float64(a.SampleRate)) * a.BlockAlign
	if per <= 0 || len(a.Data) <= per {
		return [][]byte{a.Data}
	}
	out := make([][]byte, 0, len(a.Data)/per+1)
	for off := 0; off < len(a.Data); off += per {
		out = append(out, a.Data[off:min(off+per, len(a.Data))])
	}
	return out
}
