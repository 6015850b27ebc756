/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mediafoxhq/mediafox/internal/decode"
	"github.com/mediafoxhq/mediafox/internal/media"
	"github.com/mediafoxhq/mediafox/internal/source"
)

// wavChunkSamples is how many PCM frames each decode.Packet carries;
// the audio queue is sized for "~20 chunks", so a smaller chunk gives
// the scheduler more granularity to react to than handing it the
// whole file as one packet.
const wavChunkSamples = 4096

// wavContainer is a minimal PCM-WAV reader satisfying source.ContainerDemux.
// mediafoxctl ships it purely so probe/play/export-frame have something
// concrete to exercise the Engine Facade end-to-end; internal/source
// itself stays host-pluggable per its own design (see DESIGN.md).
type wavContainer struct {
	data       []byte
	dataOffset int
	channels   int
	sampleRate int
	bitsPerSample int
	durationSec   float64
}

func wavDemuxFactory(ctx context.Context, r io.ReadSeeker, mimeHint string) (source.ContainerDemux, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading wav bytes: %w", err)
	}
	return parseWAV(raw)
}

func parseWAV(raw []byte) (*wavContainer, error) {
	if len(raw) < 44 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	c := &wavContainer{}
	offset := 12
	var dataLen int
	for offset+8 <= len(raw) {
		id := string(raw[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(raw[offset+4 : offset+8]))
		body := offset + 8
		switch id {
		case "fmt ":
			if body+16 > len(raw) {
				return nil, fmt.Errorf("truncated fmt chunk")
			}
			c.channels = int(binary.LittleEndian.Uint16(raw[body+2 : body+4]))
			c.sampleRate = int(binary.LittleEndian.Uint32(raw[body+4 : body+8]))
			c.bitsPerSample = int(binary.LittleEndian.Uint16(raw[body+14 : body+16]))
		case "data":
			c.dataOffset = body
			dataLen = size
		}
		offset = body + size
		if size%2 == 1 {
			offset++ // chunks are word-aligned
		}
	}

	if c.channels == 0 || c.sampleRate == 0 || c.bitsPerSample == 0 {
		return nil, fmt.Errorf("missing fmt chunk")
	}
	if c.dataOffset == 0 {
		return nil, fmt.Errorf("missing data chunk")
	}
	if c.dataOffset+dataLen > len(raw) {
		dataLen = len(raw) - c.dataOffset
	}
	c.data = raw[c.dataOffset : c.dataOffset+dataLen]

	bytesPerFrame := c.channels * (c.bitsPerSample / 8)
	if bytesPerFrame > 0 {
		c.durationSec = float64(len(c.data)/bytesPerFrame) / float64(c.sampleRate)
	}
	return c, nil
}

func (c *wavContainer) Info() media.Info {
	return media.Info{Duration: c.durationSec, Container: "wav", MIME: "audio/wav", HasAudio: true}
}

func (c *wavContainer) Tracks() []media.Track {
	return []media.Track{{
		ID:         "a0",
		Kind:       media.TrackAudio,
		Codec:      wavCodecString(c.channels, c.sampleRate),
		Channels:   c.channels,
		SampleRate: c.sampleRate,
	}}
}

// wavCodecString packs channel count and sample rate into the codec
// identifier, since decode.DecoderFactory only receives (codec, kind)
// and a PCM decoder needs both to interpret raw bytes.
func wavCodecString(channels, sampleRate int) string {
	return fmt.Sprintf("pcm_s16le;ch=%d;sr=%d", channels, sampleRate)
}

func (c *wavContainer) OpenTrack(ctx context.Context, trackID string) (decode.Demuxer, error) {
	if trackID != "a0" {
		return nil, fmt.Errorf("wav: unknown track %q", trackID)
	}
	bytesPerFrame := c.channels * (c.bitsPerSample / 8)
	return &wavDemuxer{data: c.data, bytesPerFrame: bytesPerFrame, sampleRate: c.sampleRate}, nil
}

func (c *wavContainer) Close() {}

// wavDemuxer hands out fixed-size PCM chunks as decode.Packets.
type wavDemuxer struct {
	data          []byte
	bytesPerFrame int
	sampleRate    int
	framePos      int
}

func (d *wavDemuxer) NextPacket(ctx context.Context) (decode.Packet, error) {
	if d.bytesPerFrame == 0 {
		return decode.Packet{}, io.EOF
	}
	totalFrames := len(d.data) / d.bytesPerFrame
	if d.framePos >= totalFrames {
		return decode.Packet{}, io.EOF
	}
	end := d.framePos + wavChunkSamples
	if end > totalFrames {
		end = totalFrames
	}
	startByte := d.framePos * d.bytesPerFrame
	endByte := end * d.bytesPerFrame
	pts := float64(d.framePos) / float64(d.sampleRate)
	pkt := decode.Packet{PTS: pts, Data: d.data[startByte:endByte], Keyframe: true}
	d.framePos = end
	return pkt, nil
}

func (d *wavDemuxer) SeekToKeyframe(t float64) error {
	frame := int(t * float64(d.sampleRate))
	if frame < 0 {
		frame = 0
	}
	d.framePos = frame
	return nil
}

// wavDecoder turns a raw PCM packet into media.AudioSamples.
type wavDecoder struct {
	channels   int
	sampleRate int
}

func wavDecoderFactory(codec string, kind media.TrackKind) (decode.Decoder, error) {
	if kind != media.TrackAudio {
		return nil, fmt.Errorf("mediafoxctl: no video decoder available without a host-supplied demux library")
	}
	channels, sampleRate, err := parseWAVCodecString(codec)
	if err != nil {
		return nil, err
	}
	return wavDecoder{channels: channels, sampleRate: sampleRate}, nil
}

func parseWAVCodecString(codec string) (channels, sampleRate int, err error) {
	if _, err := fmt.Sscanf(codec, "pcm_s16le;ch=%d;sr=%d", &channels, &sampleRate); err != nil {
		return 0, 0, fmt.Errorf("mediafoxctl: unsupported codec %q", codec)
	}
	return channels, sampleRate, nil
}

func (d wavDecoder) Decode(pkt decode.Packet) (decode.Output, error) {
	const bytesPerSample = 2 // s16le
	n := len(pkt.Data) / bytesPerSample
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pkt.Data[i*2 : i*2+2]))
		samples[i] = float32(v) / 32768
	}
	duration := float64(n/max(d.channels, 1)) / float64(max(d.sampleRate, 1))
	return media.NewAudioSamples(pkt.PTS, duration, d.channels, d.sampleRate, true, samples), nil
}

func (d wavDecoder) Close() {}
