package persistence

import "sync"

// InMemoryJournal is a reference Journal used in tests and as the default
// when no durable journal is configured. It answers every write and
// replay request synchronously, in the caller's goroutine.
type InMemoryJournal struct {
	mu   sync.Mutex
	logs map[string][]PersistentRepr
}

func NewInMemoryJournal() *InMemoryJournal {
	return &InMemoryJournal{logs: make(map[string][]PersistentRepr)}
}

func (j *InMemoryJournal) WriteMessages(req WriteMessages, respond func(any)) {
	j.mu.Lock()
	for _, repr := range req.Messages {
		j.logs[req.PersistenceID] = append(j.logs[req.PersistenceID], repr)
		respond(WriteMessageSuccess{Repr: repr, InstanceID: req.InstanceID})
	}
	j.mu.Unlock()
	respond(WriteMessagesSuccessful{InstanceID: req.InstanceID})
}

func (j *InMemoryJournal) ReplayMessages(req ReplayMessages, respond func(any)) {
	j.mu.Lock()
	log := append([]PersistentRepr(nil), j.logs[req.PersistenceID]...)
	j.mu.Unlock()

	var highest uint64
	for _, repr := range log {
		if repr.SequenceNr < req.FromSequenceNr {
			continue
		}
		if req.ToSequenceNr != 0 && repr.SequenceNr > req.ToSequenceNr {
			continue
		}
		respond(ReplayedMessage{Repr: repr, InstanceID: req.InstanceID})
		if repr.SequenceNr > highest {
			highest = repr.SequenceNr
		}
	}
	respond(RecoverySuccess{HighestSequenceNr: highest, InstanceID: req.InstanceID})
}

func (j *InMemoryJournal) HighestSequenceNr(persistenceID string, instanceID uint64, respond func(any)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var highest uint64
	for _, repr := range j.logs[persistenceID] {
		if repr.SequenceNr > highest {
			highest = repr.SequenceNr
		}
	}
	respond(HighestSequenceNr{SequenceNr: highest, InstanceID: instanceID})
}

// InMemorySnapshotStore is a reference SnapshotStore.
type InMemorySnapshotStore struct {
	mu   sync.Mutex
	byID map[string]LoadSnapshotResult
}

func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{byID: make(map[string]LoadSnapshotResult)}
}

func (s *InMemorySnapshotStore) SaveSnapshot(req SaveSnapshot, respond func(any)) {
	s.mu.Lock()
	meta := req.Metadata
	s.byID[req.Metadata.PersistenceID] = LoadSnapshotResult{Metadata: &meta, Snapshot: req.Snapshot, InstanceID: req.InstanceID}
	s.mu.Unlock()
	respond(SaveSnapshotSuccess{Metadata: req.Metadata, InstanceID: req.InstanceID})
}

func (s *InMemorySnapshotStore) LoadSnapshot(req LoadSnapshot, respond func(any)) {
	s.mu.Lock()
	result, ok := s.byID[req.PersistenceID]
	s.mu.Unlock()
	if !ok {
		respond(LoadSnapshotResult{InstanceID: req.InstanceID})
		return
	}
	result.InstanceID = req.InstanceID
	respond(result)
}
