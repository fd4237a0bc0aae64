package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// uuidRecord is a bun record keyed by a string uuid column named id.
type uuidRecord interface {
	recordID() string
	setRecordID(id string)
}

func (r *webhookTargetRecord) recordID() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.ID)
}

func (r *webhookTargetRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}

func (r *leadActivityRecord) recordID() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.ID)
}

func (r *leadActivityRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}

func uuidHandlers[T uuidRecord](newRecord func() T) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			return parseUUID(record.recordID())
		},
		SetID: func(record T, id uuid.UUID) {
			record.setRecordID(id.String())
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record T) string {
			return record.recordID()
		},
	}
}

func webhookTargetHandlers() repository.ModelHandlers[*webhookTargetRecord] {
	return uuidHandlers(func() *webhookTargetRecord { return &webhookTargetRecord{} })
}

func leadActivityHandlers() repository.ModelHandlers[*leadActivityRecord] {
	return uuidHandlers(func() *leadActivityRecord { return &leadActivityRecord{} })
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
