package stream

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/sonroyaalmerol/maobot/internal/utils"
)

// Transcoder plays one stream URL as a sequence of Opus packets.
type Transcoder struct {
	dec *Decoder
	enc *Encoder
}

// Open connects to streamURL and prepares the encoder. Failures here mean
// the stream is unusable, before any audio was produced.
func Open(streamURL string, bitrate int) (*Transcoder, error) {
	dec, err := OpenDecoder(streamURL, utils.BuildFFmpegHeaders(nil))
	if err != nil {
		return nil, err
	}
	enc, err := NewEncoder(bitrate)
	if err != nil {
		dec.Close()
		return nil, err
	}
	return &Transcoder{dec: dec, enc: enc}, nil
}

// Run feeds packets to onPacket until the stream ends, ctx is cancelled or
// onPacket fails. A natural end returns nil.
func (t *Transcoder) Run(ctx context.Context, onPacket OpusPacketHandler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := t.dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := t.enc.Encode(frame, onPacket); err != nil {
			return err
		}
	}
	return t.enc.Flush(onPacket)
}

func (t *Transcoder) Close() {
	t.enc.Close()
	t.dec.Close()
}
