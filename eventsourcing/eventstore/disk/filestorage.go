// Package disk provides a file-backed EventStore. Every event is one JSON
// file under its stream directory, with a symlink per event in all/ giving
// the global commit order. Good enough for a single writer per process.
package disk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	cqrs "github.com/terraskye/customers/eventsourcing"
)

var _ cqrs.EventStore = (*FilesStore)(nil)

type FilesStore struct {
	baseDir   string
	mu        sync.Mutex
	notify    chan struct{}
	globalSeq uint64
}

func NewFileStore(dir string) (*FilesStore, error) {
	allDir := filepath.Join(dir, "all")
	if err := os.MkdirAll(allDir, 0o755); err != nil {
		return nil, err
	}

	// Resume the global sequence from what is already on disk.
	entries, err := os.ReadDir(allDir)
	if err != nil {
		return nil, err
	}
	var seq uint64
	for _, entry := range entries {
		parts := strings.SplitN(entry.Name(), "-", 2)
		n, err := strconv.ParseUint(parts[0], 10, 64)
		if err == nil && n > seq {
			seq = n
		}
	}

	return &FilesStore{
		baseDir:   dir,
		notify:    make(chan struct{}, 1),
		globalSeq: seq,
	}, nil
}

func (f *FilesStore) streamDir(id string) string {
	return filepath.Join(f.baseDir, id)
}

func (f *FilesStore) Save(ctx context.Context, events []cqrs.Envelope, revision cqrs.StreamState) (cqrs.AppendResult, error) {
	if len(events) == 0 {
		return cqrs.AppendResult{Successful: true}, nil
	}

	streamID := events[0].StreamID
	for i, env := range events {
		if env.StreamID != streamID {
			return cqrs.AppendResult{}, fmt.Errorf(
				"save events to stream %q: %w: event %d has different stream ID %q",
				streamID, cqrs.ErrInvalidEventBatch, i, env.StreamID,
			)
		}
	}

	sdir := f.streamDir(streamID)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(sdir, 0o755); err != nil {
		return cqrs.AppendResult{}, err
	}

	files, err := os.ReadDir(sdir)
	if err != nil {
		return cqrs.AppendResult{}, err
	}
	currentVersion := uint64(len(files))

	switch rev := revision.(type) {
	case cqrs.Any:
		// No concurrency check
	case cqrs.NoStream:
		if currentVersion != 0 {
			return cqrs.AppendResult{}, fmt.Errorf("stream %q: %w", streamID, cqrs.ErrStreamExists)
		}
	case cqrs.StreamExists:
		if currentVersion == 0 {
			return cqrs.AppendResult{}, fmt.Errorf("stream %q: %w", streamID, cqrs.ErrStreamNotFound)
		}
	case cqrs.Revision:
		if currentVersion != uint64(rev) {
			return cqrs.AppendResult{}, &cqrs.StreamRevisionConflictError{
				Stream:           streamID,
				ExpectedRevision: rev,
				ActualRevision:   cqrs.Revision(currentVersion),
			}
		}
	default:
		return cqrs.AppendResult{}, fmt.Errorf("unsupported revision type %T for stream %q: %w",
			revision, streamID, cqrs.ErrInvalidRevision)
	}

	for i := range events {
		if err := ctx.Err(); err != nil {
			return cqrs.AppendResult{}, err
		}

		currentVersion++
		f.globalSeq++
		events[i].Version = currentVersion
		events[i].GlobalVersion = f.globalSeq

		stored := storedEvent{
			EventID:       events[i].EventID,
			StreamID:      events[i].StreamID,
			Metadata:      events[i].Metadata,
			EventType:     events[i].Event.EventType(),
			Version:       events[i].Version,
			GlobalVersion: events[i].GlobalVersion,
			OccurredAt:    events[i].OccurredAt,
		}
		stored.Data, err = json.Marshal(events[i].Event)
		if err != nil {
			return cqrs.AppendResult{}, fmt.Errorf("marshal event %q: %w", stored.EventType, err)
		}
		data, err := json.Marshal(stored)
		if err != nil {
			return cqrs.AppendResult{}, fmt.Errorf("marshal envelope %q: %w", stored.EventType, err)
		}

		fname := fmt.Sprintf("%010d-%s.json", events[i].Version, stored.EventType)
		path := filepath.Join(sdir, fname)
		if err := writeFileSync(path, data); err != nil {
			return cqrs.AppendResult{}, err
		}

		all := filepath.Join(f.baseDir, "all", fmt.Sprintf("%010d-%s.json", events[i].GlobalVersion, stored.EventType))
		rel, err := filepath.Rel(filepath.Join(f.baseDir, "all"), path)
		if err != nil {
			return cqrs.AppendResult{}, err
		}
		if err := os.Symlink(rel, all); err != nil {
			return cqrs.AppendResult{}, err
		}
	}

	select {
	case f.notify <- struct{}{}:
	default:
		// A wakeup is already pending
	}

	return cqrs.AppendResult{
		Successful:          true,
		StreamID:            streamID,
		NextExpectedVersion: currentVersion,
	}, nil
}

func writeFileSync(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (f *FilesStore) LoadStream(ctx context.Context, id string) (*cqrs.Iterator[*cqrs.Envelope], error) {
	if _, err := os.Stat(f.streamDir(id)); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("load stream %q: %w", id, cqrs.ErrStreamNotFound)
		}
		return nil, err
	}
	return f.loadFromDir(f.streamDir(id), 0)
}

func (f *FilesStore) LoadStreamFrom(ctx context.Context, id string, afterVersion uint64) (*cqrs.Iterator[*cqrs.Envelope], error) {
	if _, err := os.Stat(f.streamDir(id)); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("load stream %q: %w", id, cqrs.ErrStreamNotFound)
		}
		return nil, err
	}
	return f.loadFromDir(f.streamDir(id), afterVersion)
}

func (f *FilesStore) LoadFromAll(ctx context.Context, afterGlobal uint64) (*cqrs.Iterator[*cqrs.Envelope], error) {
	return f.loadFromDir(filepath.Join(f.baseDir, "all"), afterGlobal)
}

// loadFromDir yields envelopes from a directory of stored events whose
// position (the numeric filename prefix) is greater than after. ReadDir
// returns names sorted, and the zero-padded prefix keeps that order correct.
func (f *FilesStore) loadFromDir(dir string, after uint64) (*cqrs.Iterator[*cqrs.Envelope], error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return cqrs.NewSliceIterator[*cqrs.Envelope](nil), nil
		}
		return nil, err
	}

	idx := 0
	nextFunc := func(ctx context.Context) (*cqrs.Envelope, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for idx < len(files) {
			fi := files[idx]
			idx++
			if fi.IsDir() {
				continue
			}

			parts := strings.SplitN(fi.Name(), "-", 2)
			if len(parts) < 2 {
				continue
			}
			pos, err := strconv.ParseUint(parts[0], 10, 64)
			if err != nil || pos <= after {
				continue
			}

			path := filepath.Join(dir, fi.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, cqrs.WrapEventStoreError(fmt.Errorf("read event file %q: %w", fi.Name(), err))
			}

			var stored storedEvent
			if err := json.Unmarshal(data, &stored); err != nil {
				return nil, cqrs.WrapEventStoreError(fmt.Errorf("decode event file %q: %w", fi.Name(), err))
			}

			ev, err := cqrs.NewEventByName(stored.EventType)
			if err != nil {
				return nil, cqrs.WrapEventStoreError(fmt.Errorf("cannot create event %q: %w", stored.EventType, err))
			}
			if err := json.Unmarshal(stored.Data, ev); err != nil {
				return nil, cqrs.WrapEventStoreError(fmt.Errorf("cannot unmarshal event %q: %w", stored.EventType, err))
			}

			envelope := cqrs.Envelope{
				EventID:       stored.EventID,
				StreamID:      stored.StreamID,
				Event:         derefEvent(ev),
				Metadata:      stored.Metadata,
				Version:       stored.Version,
				GlobalVersion: stored.GlobalVersion,
				OccurredAt:    stored.OccurredAt,
			}

			return &envelope, nil
		}
		return nil, io.EOF
	}

	return cqrs.NewIteratorFunc(nextFunc), nil
}

// derefEvent unwraps the pointer the event factory returned, so replayed
// events have the same concrete type as live ones.
func derefEvent(ev cqrs.Event) cqrs.Event {
	v := reflect.ValueOf(ev)
	if v.Kind() == reflect.Ptr && !v.IsNil() {
		if e, ok := v.Elem().Interface().(cqrs.Event); ok {
			return e
		}
	}
	return ev
}

func (f *FilesStore) Tail() <-chan struct{} {
	return f.notify
}

func (f *FilesStore) Close() error {
	return nil
}

type storedEvent struct {
	EventID       uuid.UUID       `json:"event_id"`
	StreamID      string          `json:"stream_id"`
	Metadata      map[string]any  `json:"metadata"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Version       uint64          `json:"version"`
	GlobalVersion uint64          `json:"global_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
