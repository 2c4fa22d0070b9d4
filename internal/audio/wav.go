package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/go-audio/wav"
)

const (
	HeaderSize        = 44
	DefaultSampleRate = 24000
	DefaultChannels   = 1
	DefaultBitDepth   = 16
	formatPCM         = 1
)

// Format describes linear PCM samples.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// SpeechFormat is the format returned by the speech capability:
// 16-bit little-endian mono at 24 kHz.
var SpeechFormat = Format{SampleRate: DefaultSampleRate, Channels: DefaultChannels, BitDepth: DefaultBitDepth}

func (f Format) blockAlign() int { return f.Channels * f.BitDepth / 8 }
func (f Format) byteRate() int   { return f.SampleRate * f.blockAlign() }

// Header holds the fields of a canonical 44-byte WAVE header.
type Header struct {
	ChunkSize     uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

// EncodeWAV wraps speech PCM in a playable WAVE container.
func EncodeWAV(pcm []byte) []byte {
	return EncodeWAVFormat(pcm, SpeechFormat)
}

func EncodeWAVFormat(pcm []byte, f Format) []byte {
	out := make([]byte, HeaderSize+len(pcm))
	le := binary.LittleEndian
	copy(out[0:4], "RIFF")
	le.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	le.PutUint32(out[16:20], 16)
	le.PutUint16(out[20:22], formatPCM)
	le.PutUint16(out[22:24], uint16(f.Channels))
	le.PutUint32(out[24:28], uint32(f.SampleRate))
	le.PutUint32(out[28:32], uint32(f.byteRate()))
	le.PutUint16(out[32:34], uint16(f.blockAlign()))
	le.PutUint16(out[34:36], uint16(f.BitDepth))
	copy(out[36:40], "data")
	le.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[HeaderSize:], pcm)
	return out
}

var ErrInvalidContainer = errors.New("not a canonical wave container")

// ParseHeader reads back the header written by EncodeWAV.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrInvalidContainer, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" ||
		string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return Header{}, ErrInvalidContainer
	}
	le := binary.LittleEndian
	return Header{
		ChunkSize:     le.Uint32(data[4:8]),
		AudioFormat:   le.Uint16(data[20:22]),
		Channels:      le.Uint16(data[22:24]),
		SampleRate:    le.Uint32(data[24:28]),
		ByteRate:      le.Uint32(data[28:32]),
		BlockAlign:    le.Uint16(data[32:34]),
		BitsPerSample: le.Uint16(data[34:36]),
		DataSize:      le.Uint32(data[40:44]),
	}, nil
}

// Info summarizes a decoded container.
type Info struct {
	SampleRate int           `json:"sampleRate"`
	Channels   int           `json:"channels"`
	BitDepth   int           `json:"bitDepth"`
	DataBytes  int64         `json:"dataBytes"`
	Duration   time.Duration `json:"duration"`
}

// Inspect validates a container with a general purpose wave decoder.
func Inspect(data []byte) (Info, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Info{}, ErrInvalidContainer
	}
	if err := dec.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("seek wave data: %w", err)
	}
	info := Info{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		DataBytes:  dec.PCMLen(),
	}
	if bytesPerSecond := info.SampleRate * info.Channels * info.BitDepth / 8; bytesPerSecond > 0 {
		info.Duration = time.Duration(info.DataBytes) * time.Second / time.Duration(bytesPerSecond)
	}
	return info, nil
}
