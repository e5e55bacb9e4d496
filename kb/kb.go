// Package kb is an in-memory, thread-safe catalog of named physical models.
// Planners look models up by name; the catalog itself never runs a solve.
package kb

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/signalsfoundry/trajectory-planner/model"
)

// DefaultModelName is the catalog entry for model.DefaultPhysicalModel.
const DefaultModelName = "default"

var (
	// ErrModelExists is returned when adding a name that is already present.
	ErrModelExists = errors.New("physical model already exists")
	// ErrModelNotFound is returned when a name is absent.
	ErrModelNotFound = errors.New("physical model not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventModelUpdated EventType = iota
	EventModelRemoved
)

// Event is emitted to subscribers when a catalog entry changes.
type Event struct {
	Type  EventType
	Name  string
	Model model.PhysicalModel
}

// Entry is the JSON shape of one catalog record. An entry without a
// "mass" key gets the default model's mass.
type Entry struct {
	Name string `json:"name"`
	model.PhysicalModel
}

// UnmarshalJSON fills an omitted mass from model.DefaultPhysicalModel.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name string `json:"name"`
		model.PhysicalModel
		Mass *float64 `json:"mass"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Name = raw.Name
	e.PhysicalModel = raw.PhysicalModel
	if raw.Mass != nil {
		e.Mass = *raw.Mass
	} else {
		e.Mass = model.DefaultPhysicalModel().Mass
	}
	return nil
}

// KnowledgeBase maps names to validated physical models. Models are values,
// so callers always receive copies they may share freely.
type KnowledgeBase struct {
	mu sync.RWMutex

	models map[string]model.PhysicalModel

	subs   map[int]func(Event)
	nextID int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		models: make(map[string]model.PhysicalModel),
		subs:   make(map[int]func(Event)),
	}
}

// NewWithDefaults constructs a KB holding DefaultModelName.
func NewWithDefaults() *KnowledgeBase {
	kb := NewKnowledgeBase()
	kb.models[DefaultModelName] = model.DefaultPhysicalModel()
	return kb
}

// AddModel stores a new model. It fails if the name is empty, already
// present, or the model does not validate.
func (kb *KnowledgeBase) AddModel(name string, m model.PhysicalModel) error {
	if name == "" {
		return fmt.Errorf("%w: model name is required", model.ErrInvalidModel)
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("model %q: %w", name, err)
	}

	kb.mu.Lock()
	if _, exists := kb.models[name]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrModelExists, name)
	}
	kb.models[name] = m
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventModelUpdated, Name: name, Model: m})
	return nil
}

// PutModel stores or replaces a model.
func (kb *KnowledgeBase) PutModel(name string, m model.PhysicalModel) error {
	if name == "" {
		return fmt.Errorf("%w: model name is required", model.ErrInvalidModel)
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("model %q: %w", name, err)
	}

	kb.mu.Lock()
	kb.models[name] = m
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventModelUpdated, Name: name, Model: m})
	return nil
}

// GetModel returns the model stored under name.
func (kb *KnowledgeBase) GetModel(name string) (model.PhysicalModel, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	m, ok := kb.models[name]
	if !ok {
		return model.PhysicalModel{}, fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}
	return m, nil
}

// RemoveModel deletes a model.
func (kb *KnowledgeBase) RemoveModel(name string) error {
	kb.mu.Lock()
	m, ok := kb.models[name]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}
	delete(kb.models, name)
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventModelRemoved, Name: name, Model: m})
	return nil
}

// ListModels returns the catalog names in sorted order.
func (kb *KnowledgeBase) ListModels() []string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	names := make([]string, 0, len(kb.models))
	for name := range kb.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads a JSON array of entries and stores each one, replacing
// existing names. It returns the number of entries stored and stops at the
// first invalid entry.
func (kb *KnowledgeBase) Load(r io.Reader) (int, error) {
	var entries []Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return 0, fmt.Errorf("decode physical models: %w", err)
	}
	for i, e := range entries {
		if err := kb.PutModel(e.Name, e.PhysicalModel); err != nil {
			return i, err
		}
	}
	return len(entries), nil
}

// LoadFile is Load over the file at path.
func (kb *KnowledgeBase) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return kb.Load(f)
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextID
	kb.nextID++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

func (kb *KnowledgeBase) snapshotSubsLocked() []func(Event) {
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, kb.subs[id])
	}
	return subs
}

// notify runs subscribers outside the lock to avoid deadlocks.
func notify(subs []func(Event), e Event) {
	for _, sub := range subs {
		sub(e)
	}
}
