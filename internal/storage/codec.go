package storage

import (
	"encoding/json"
	"errors"

	"safegym/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Versioned stamps a record with the current schema and codec versions.
func Versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(run model.RunRecord) ([]byte, error) {
	return json.Marshal(run)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeEpisodes(episodes []model.EpisodeSummary) ([]byte, error) {
	return json.Marshal(episodes)
}

func DecodeEpisodes(data []byte) ([]model.EpisodeSummary, error) {
	var episodes []model.EpisodeSummary
	if err := json.Unmarshal(data, &episodes); err != nil {
		return nil, err
	}
	for _, episode := range episodes {
		if err := checkVersion(episode.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return episodes, nil
}

// traceEnvelope carries version metadata for traces, whose rows are unversioned.
type traceEnvelope struct {
	model.VersionedRecord
	Steps []model.StepTrace `json:"steps"`
}

func EncodeTrace(trace []model.StepTrace) ([]byte, error) {
	return json.Marshal(traceEnvelope{VersionedRecord: Versioned(), Steps: trace})
}

func DecodeTrace(data []byte) ([]model.StepTrace, error) {
	var env traceEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if err := checkVersion(env.VersionedRecord); err != nil {
		return nil, err
	}
	return env.Steps, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
