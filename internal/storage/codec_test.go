package storage

import (
	"errors"
	"testing"
	"time"

	"safegym/internal/model"
)

func TestRunCodecRejectsVersionMismatch(t *testing.T) {
	run := sampleRun("r1", time.Unix(0, 0))
	run.SchemaVersion = CurrentSchemaVersion + 1

	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestEpisodesCodecChecksEveryRecord(t *testing.T) {
	episodes := sampleEpisodes("r1")
	episodes[1].CodecVersion = 0

	data, err := EncodeEpisodes(episodes)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeEpisodes(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestTraceCodecRoundTrip(t *testing.T) {
	data, err := EncodeTrace(sampleTrace())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	trace, err := DecodeTrace(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(trace) != 1 || !trace[0].Intervention || trace[0].Scaled != (model.Action{-0.25, -1}) {
		t.Fatalf("unexpected trace: %+v", trace)
	}

	if _, err := DecodeTrace([]byte(`{"schema_version":2,"codec_version":1,"steps":[]}`)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}
