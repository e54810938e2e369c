package app

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/neso/internal/services/federation/domain"
	"github.com/louisbranch/neso/internal/services/federation/storage"
)

// metaKey is the payload key internal annotations surface under when a caller
// asks for them; it never round-trips into the stored wire payload.
const metaKey = "_meta"

var kindToStorage = map[domain.Kind]storage.ObjectKind{
	domain.KindObject:   storage.ObjectKindObject,
	domain.KindActor:    storage.ObjectKindActor,
	domain.KindActivity: storage.ObjectKindActivity,
}

// buildRecord converts a classified payload into its storage form: encoded
// wire payload, flattened reference ids for activities, and the owning
// username for local actors.
func (s *Store) buildRecord(kind domain.Kind, payload domain.Payload, metaJSON string) (storage.ObjectRecord, error) {
	objectID := payload.ID()
	if objectID == "" {
		return storage.ObjectRecord{}, fmt.Errorf("payload id is required")
	}

	wire := payload.Clone()
	delete(wire, metaKey)
	encoded, err := domain.EncodePayload(wire)
	if err != nil {
		return storage.ObjectRecord{}, err
	}

	record := storage.ObjectRecord{
		ID:          objectID,
		Kind:        kindToStorage[kind],
		PayloadJSON: string(encoded),
		MetaJSON:    metaJSON,
	}
	if kind == domain.KindActivity {
		record.ActorRefs = payload.Ref("actor").IDs()
		record.ObjectRefs = payload.Ref("object").IDs()
		record.TargetRefs = payload.Ref("target").IDs()
	}
	if kind == domain.KindActor {
		if username, ok := s.addresses.UsernameFromID(objectID); ok {
			record.Username = username
		}
	}
	return record, nil
}

// payloadFromRecord decodes a stored record back into its wire payload,
// surfacing internal annotations under metaKey when requested.
func payloadFromRecord(record storage.ObjectRecord, includeMeta bool) (domain.Payload, error) {
	payload, err := domain.DecodePayload([]byte(record.PayloadJSON))
	if err != nil {
		return nil, err
	}
	if includeMeta {
		meta, err := decodeMeta(record.MetaJSON)
		if err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			payload[metaKey] = meta
		}
	}
	return payload, nil
}

func decodeMeta(metaJSON string) (map[string][]any, error) {
	if metaJSON == "" || metaJSON == "{}" {
		return nil, nil
	}
	var meta map[string][]any
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, fmt.Errorf("decode object meta: %w", err)
	}
	return meta, nil
}

func encodeMeta(meta map[string][]any) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode object meta: %w", err)
	}
	return string(encoded), nil
}
