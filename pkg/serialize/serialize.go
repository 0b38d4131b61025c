// Package serialize encodes episodes and patterns into the opaque body
// blobs the durable store persists (spec.md §4.2, §6, §8 round-trip
// invariant).
//
// Bodies are canonical JSON — the same wire shape the domain types already
// carry `json` tags for, and `encoding/json` already sorts map keys when
// marshaling, so the byte-level output for Metadata/Parameters maps is
// deterministic without extra work. The result is passed through
// pkg/compress's threshold/ratio gate, which decides whether to actually
// compress it and reports the boolean flag persisted alongside the blob.
package serialize

import (
	"encoding/json"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
	"github.com/r3e-network/agentmemory/internal/domain/pattern"
	"github.com/r3e-network/agentmemory/internal/memerr"
	"github.com/r3e-network/agentmemory/pkg/compress"
)

// EncodeEpisode marshals ep to JSON and runs it through the compression
// gate, reporting whether compression was applied.
func EncodeEpisode(ep *episode.Episode) ([]byte, bool, error) {
	body, err := json.Marshal(ep)
	if err != nil {
		return nil, false, memerr.Wrap(memerr.Serialization, "marshal episode", err)
	}

	out, compressed, err := compress.Encode(body)
	if err != nil {
		return nil, false, memerr.Wrap(memerr.Serialization, "compress episode", err)
	}
	return out, compressed, nil
}

// DecodeEpisode reverses EncodeEpisode.
func DecodeEpisode(body []byte, compressed bool) (*episode.Episode, error) {
	plain, err := compress.Decode(body, compressed)
	if err != nil {
		return nil, memerr.Wrap(memerr.Serialization, "decompress episode", err)
	}

	var ep episode.Episode
	if err := json.Unmarshal(plain, &ep); err != nil {
		return nil, memerr.Wrap(memerr.Serialization, "unmarshal episode", err)
	}
	return &ep, nil
}

// EncodePattern marshals p to JSON. The patterns table has no compression
// flag column — patterns are aggregated usage stats bounded well under
// compress.Threshold in practice, so the gate is not applied here.
func EncodePattern(p *pattern.Pattern) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, memerr.Wrap(memerr.Serialization, "marshal pattern", err)
	}
	return body, nil
}

// DecodePattern reverses EncodePattern.
func DecodePattern(body []byte) (*pattern.Pattern, error) {
	var p pattern.Pattern
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, memerr.Wrap(memerr.Serialization, "unmarshal pattern", err)
	}
	return &p, nil
}
