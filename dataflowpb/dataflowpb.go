// Package dataflowpb implements the wire encoding for Epoch, Mutation, and
// Barrier, plus the envelope used to multiplex Barrier control messages
// with opaque chunk payloads on one wire. No protoc toolchain runs in this
// environment, so the encode/decode pairs are hand-written against
// google.golang.org/protobuf/encoding/protowire directly, in the same
// tag/varint/length-delimited shape protoc-gen-go would emit for:
//
//	message Epoch {
//	  uint64 curr = 1;
//	  uint64 prev = 2;
//	}
//	message Mutation {
//	  uint32 kind = 1;
//	  repeated int32 actor_ids = 2;
//	  map<int32, int32> dispatcher = 3;
//	}
//	message Barrier {
//	  Epoch epoch = 1;
//	  Mutation mutation = 2;
//	  string span_name = 3;
//	}
//	message Envelope {
//	  oneof body {
//	    bytes chunk = 1;
//	    Barrier barrier = 2;
//	  }
//	}
package dataflowpb

import (
	"github.com/zeebo/errs"
	"google.golang.org/protobuf/encoding/protowire"

	"storj.io/dataflow/barrier"
)

// Error is the error class for malformed wire data.
var Error = errs.Class("dataflowpb")

const (
	epochFieldCurr = protowire.Number(1)
	epochFieldPrev = protowire.Number(2)

	mutationFieldKind       = protowire.Number(1)
	mutationFieldActorIDs   = protowire.Number(2)
	mutationFieldDispatcher = protowire.Number(3)
	dispatcherFieldKey      = protowire.Number(1)
	dispatcherFieldValue    = protowire.Number(2)

	barrierFieldEpoch    = protowire.Number(1)
	barrierFieldMutation = protowire.Number(2)
	barrierFieldSpanName = protowire.Number(3)

	envelopeFieldChunk   = protowire.Number(1)
	envelopeFieldBarrier = protowire.Number(2)
)

// EncodeEpoch appends e's wire encoding to buf.
func EncodeEpoch(buf []byte, e barrier.Epoch) []byte {
	if e.Curr != 0 {
		buf = protowire.AppendTag(buf, epochFieldCurr, protowire.VarintType)
		buf = protowire.AppendVarint(buf, e.Curr)
	}
	if e.Prev != 0 {
		buf = protowire.AppendTag(buf, epochFieldPrev, protowire.VarintType)
		buf = protowire.AppendVarint(buf, e.Prev)
	}
	return buf
}

// DecodeEpoch parses a wire-encoded Epoch from buf.
func DecodeEpoch(buf []byte) (barrier.Epoch, error) {
	var e barrier.Epoch
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return barrier.Epoch{}, Error.New("malformed epoch tag")
		}
		buf = buf[n:]
		switch {
		case num == epochFieldCurr && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return barrier.Epoch{}, Error.New("malformed epoch.curr")
			}
			e.Curr = v
			buf = buf[n:]
		case num == epochFieldPrev && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return barrier.Epoch{}, Error.New("malformed epoch.prev")
			}
			e.Prev = v
			buf = buf[n:]
		default:
			n, err := skipField(buf, typ)
			if err != nil {
				return barrier.Epoch{}, err
			}
			buf = buf[n:]
		}
	}
	return e, nil
}

// EncodeMutation appends m's wire encoding to buf.
func EncodeMutation(buf []byte, m barrier.Mutation) []byte {
	if m.Kind != barrier.MutationNone {
		buf = protowire.AppendTag(buf, mutationFieldKind, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(m.Kind))
	}
	for _, id := range m.ActorIDs {
		buf = protowire.AppendTag(buf, mutationFieldActorIDs, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(uint32(id)))
	}
	for k, v := range m.Dispatcher {
		var entry []byte
		entry = protowire.AppendTag(entry, dispatcherFieldKey, protowire.VarintType)
		entry = protowire.AppendVarint(entry, uint64(uint32(k)))
		entry = protowire.AppendTag(entry, dispatcherFieldValue, protowire.VarintType)
		entry = protowire.AppendVarint(entry, uint64(uint32(v)))
		buf = protowire.AppendTag(buf, mutationFieldDispatcher, protowire.BytesType)
		buf = protowire.AppendBytes(buf, entry)
	}
	return buf
}

// DecodeMutation parses a wire-encoded Mutation from buf.
func DecodeMutation(buf []byte) (barrier.Mutation, error) {
	var m barrier.Mutation
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return barrier.Mutation{}, Error.New("malformed mutation tag")
		}
		buf = buf[n:]
		switch {
		case num == mutationFieldKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return barrier.Mutation{}, Error.New("malformed mutation.kind")
			}
			m.Kind = barrier.MutationKind(v)
			buf = buf[n:]
		case num == mutationFieldActorIDs && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return barrier.Mutation{}, Error.New("malformed mutation.actor_ids")
			}
			m.ActorIDs = append(m.ActorIDs, int32(uint32(v)))
			buf = buf[n:]
		case num == mutationFieldDispatcher && typ == protowire.BytesType:
			entry, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return barrier.Mutation{}, Error.New("malformed mutation.dispatcher entry")
			}
			buf = buf[n:]
			k, v, err := decodeDispatcherEntry(entry)
			if err != nil {
				return barrier.Mutation{}, err
			}
			if m.Dispatcher == nil {
				m.Dispatcher = make(map[int32]int32)
			}
			m.Dispatcher[k] = v
		default:
			n, err := skipField(buf, typ)
			if err != nil {
				return barrier.Mutation{}, err
			}
			buf = buf[n:]
		}
	}
	return m, nil
}

func decodeDispatcherEntry(buf []byte) (key, value int32, err error) {
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return 0, 0, Error.New("malformed dispatcher entry tag")
		}
		buf = buf[n:]
		switch {
		case num == dispatcherFieldKey && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return 0, 0, Error.New("malformed dispatcher entry key")
			}
			key = int32(uint32(v))
			buf = buf[n:]
		case num == dispatcherFieldValue && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return 0, 0, Error.New("malformed dispatcher entry value")
			}
			value = int32(uint32(v))
			buf = buf[n:]
		default:
			n, err := skipField(buf, typ)
			if err != nil {
				return 0, 0, err
			}
			buf = buf[n:]
		}
	}
	return key, value, nil
}

// EncodeBarrier appends b's wire encoding to buf.
func EncodeBarrier(buf []byte, b barrier.Barrier) []byte {
	epochBuf := EncodeEpoch(nil, b.Epoch)
	buf = protowire.AppendTag(buf, barrierFieldEpoch, protowire.BytesType)
	buf = protowire.AppendBytes(buf, epochBuf)

	if mutBuf := EncodeMutation(nil, b.Mutation); len(mutBuf) > 0 {
		buf = protowire.AppendTag(buf, barrierFieldMutation, protowire.BytesType)
		buf = protowire.AppendBytes(buf, mutBuf)
	}
	if b.SpanName != "" {
		buf = protowire.AppendTag(buf, barrierFieldSpanName, protowire.BytesType)
		buf = protowire.AppendBytes(buf, []byte(b.SpanName))
	}
	return buf
}

// DecodeBarrier parses a wire-encoded Barrier from buf.
func DecodeBarrier(buf []byte) (barrier.Barrier, error) {
	var out barrier.Barrier
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return barrier.Barrier{}, Error.New("malformed barrier tag")
		}
		buf = buf[n:]
		switch {
		case num == barrierFieldEpoch && typ == protowire.BytesType:
			sub, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return barrier.Barrier{}, Error.New("malformed barrier.epoch")
			}
			buf = buf[n:]
			e, err := DecodeEpoch(sub)
			if err != nil {
				return barrier.Barrier{}, err
			}
			out.Epoch = e
		case num == barrierFieldMutation && typ == protowire.BytesType:
			sub, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return barrier.Barrier{}, Error.New("malformed barrier.mutation")
			}
			buf = buf[n:]
			m, err := DecodeMutation(sub)
			if err != nil {
				return barrier.Barrier{}, err
			}
			out.Mutation = m
		case num == barrierFieldSpanName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return barrier.Barrier{}, Error.New("malformed barrier.span_name")
			}
			out.SpanName = string(v)
			buf = buf[n:]
		default:
			n, err := skipField(buf, typ)
			if err != nil {
				return barrier.Barrier{}, err
			}
			buf = buf[n:]
		}
	}
	return out, nil
}

// Envelope multiplexes an opaque, caller-encoded chunk payload with a
// Barrier on one wire, matching the StreamChunk|Barrier message duality the
// aligner consumes. The CLI's --dump-barriers output uses only barrier
// envelopes; it writes chunk rows as plain JSON.
type Envelope struct {
	// Chunk is non-nil for a chunk envelope, nil for a barrier envelope.
	Chunk []byte
	// Barrier is the zero value for a chunk envelope.
	Barrier barrier.Barrier
	isBarrier bool
}

// EncodeEnvelope appends env's wire encoding to buf.
func EncodeEnvelope(buf []byte, env Envelope) []byte {
	if env.isBarrier {
		bb := EncodeBarrier(nil, env.Barrier)
		buf = protowire.AppendTag(buf, envelopeFieldBarrier, protowire.BytesType)
		buf = protowire.AppendBytes(buf, bb)
		return buf
	}
	buf = protowire.AppendTag(buf, envelopeFieldChunk, protowire.BytesType)
	buf = protowire.AppendBytes(buf, env.Chunk)
	return buf
}

// ChunkEnvelope wraps an opaque chunk payload.
func ChunkEnvelope(payload []byte) Envelope { return Envelope{Chunk: payload} }

// BarrierEnvelope wraps a Barrier.
func BarrierEnvelope(b barrier.Barrier) Envelope { return Envelope{Barrier: b, isBarrier: true} }

// IsBarrier reports whether env carries a Barrier rather than a chunk.
func (env Envelope) IsBarrier() bool { return env.isBarrier }

// DecodeEnvelope parses a wire-encoded Envelope from buf.
func DecodeEnvelope(buf []byte) (Envelope, error) {
	num, typ, n := protowire.ConsumeTag(buf)
	if n < 0 {
		return Envelope{}, Error.New("malformed envelope tag")
	}
	buf = buf[n:]
	switch {
	case num == envelopeFieldChunk && typ == protowire.BytesType:
		payload, n := protowire.ConsumeBytes(buf)
		if n < 0 {
			return Envelope{}, Error.New("malformed envelope.chunk")
		}
		return ChunkEnvelope(append([]byte{}, payload...)), nil
	case num == envelopeFieldBarrier && typ == protowire.BytesType:
		sub, n := protowire.ConsumeBytes(buf)
		if n < 0 {
			return Envelope{}, Error.New("malformed envelope.barrier")
		}
		b, err := DecodeBarrier(sub)
		if err != nil {
			return Envelope{}, err
		}
		return BarrierEnvelope(b), nil
	default:
		return Envelope{}, Error.New("unknown envelope field %d", num)
	}
}

// skipField advances past one field's value of the given wire type, used
// to tolerate unknown fields from a newer writer, matching the forward-
// compatibility protoc-gen-go code provides for free.
func skipField(buf []byte, typ protowire.Type) (int, error) {
	n := protowire.ConsumeFieldValue(0, typ, buf)
	if n < 0 {
		return 0, Error.New("malformed field value")
	}
	return n, nil
}
