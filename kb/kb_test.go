package kb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/signalsfoundry/trajectory-planner/model"
)

func TestAddAndGetModel(t *testing.T) {
	store := NewKnowledgeBase()
	m := model.DefaultPhysicalModel()
	m.Mass = 250
	if err := store.AddModel("glider", m); err != nil {
		t.Fatalf("AddModel error: %v", err)
	}
	got, err := store.GetModel("glider")
	if err != nil || got != m {
		t.Fatalf("GetModel returned %#v, %v; want %#v", got, err, m)
	}
}

func TestAddModelDuplicate(t *testing.T) {
	store := NewWithDefaults()
	err := store.AddModel(DefaultModelName, model.DefaultPhysicalModel())
	if !errors.Is(err, ErrModelExists) {
		t.Fatalf("duplicate AddModel error = %v, want ErrModelExists", err)
	}
}

func TestAddModelValidates(t *testing.T) {
	store := NewKnowledgeBase()
	bad := model.DefaultPhysicalModel()
	bad.Mass = -1
	if err := store.AddModel("bad", bad); !errors.Is(err, model.ErrInvalidModel) {
		t.Fatalf("AddModel error = %v, want ErrInvalidModel", err)
	}
	if err := store.AddModel("", model.DefaultPhysicalModel()); !errors.Is(err, model.ErrInvalidModel) {
		t.Fatalf("AddModel with empty name error = %v, want ErrInvalidModel", err)
	}
	if len(store.ListModels()) != 0 {
		t.Fatalf("invalid models should not be stored: %v", store.ListModels())
	}
}

func TestGetAndRemoveMissingModel(t *testing.T) {
	store := NewKnowledgeBase()
	if _, err := store.GetModel("missing"); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("GetModel error = %v, want ErrModelNotFound", err)
	}
	if err := store.RemoveModel("missing"); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("RemoveModel error = %v, want ErrModelNotFound", err)
	}
}

func TestListModelsSorted(t *testing.T) {
	store := NewWithDefaults()
	for _, name := range []string{"zeppelin", "arrow"} {
		if err := store.PutModel(name, model.DefaultPhysicalModel()); err != nil {
			t.Fatalf("PutModel(%q): %v", name, err)
		}
	}
	got := strings.Join(store.ListModels(), ",")
	if got != "arrow,default,zeppelin" {
		t.Fatalf("ListModels = %s", got)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	store := NewKnowledgeBase()

	var events []Event
	unsubscribe := store.Subscribe(func(e Event) {
		events = append(events, e)
	})

	m := model.DefaultPhysicalModel()
	if err := store.PutModel("lunar", m); err != nil {
		t.Fatalf("PutModel: %v", err)
	}
	if err := store.RemoveModel("lunar"); err != nil {
		t.Fatalf("RemoveModel: %v", err)
	}
	if len(events) != 2 || events[0].Type != EventModelUpdated || events[1].Type != EventModelRemoved {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].Name != "lunar" || events[0].Model != m {
		t.Fatalf("event payload = %+v", events[0])
	}

	unsubscribe()
	if err := store.PutModel("lunar", m); err != nil {
		t.Fatalf("PutModel: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("received event after unsubscribe: %+v", events)
	}
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.json")
	data := `[
		{"name": "default", "gravity": 9.81, "air_density": 1.225, "drag_coefficient": 0.5, "reference_area": 1.0, "mass": 1000},
		{"name": "vacuum", "gravity": 9.81, "air_density": 0, "drag_coefficient": 0, "reference_area": 1.0, "mass": 1}
	]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	store := NewKnowledgeBase()
	n, err := store.LoadFile(path)
	if err != nil || n != 2 {
		t.Fatalf("LoadFile = %d, %v; want 2, nil", n, err)
	}
	got, err := store.GetModel("default")
	if err != nil || got != model.DefaultPhysicalModel() {
		t.Fatalf("default model = %+v, %v", got, err)
	}
	if vac, _ := store.GetModel("vacuum"); vac.Drag(100) != 0 {
		t.Fatalf("vacuum model should be drag-free, got drag %v", vac.Drag(100))
	}
}

func TestLoadStopsAtInvalidEntry(t *testing.T) {
	store := NewKnowledgeBase()
	n, err := store.Load(strings.NewReader(`[
		{"name": "ok", "gravity": 9.81, "mass": 1},
		{"name": "massless", "gravity": 9.81, "mass": 0}
	]`))
	if !errors.Is(err, model.ErrInvalidModel) || n != 1 {
		t.Fatalf("Load = %d, %v; want 1, ErrInvalidModel", n, err)
	}
	if _, err := store.Load(strings.NewReader("{")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestLoadDefaultsOmittedMass(t *testing.T) {
	store := NewKnowledgeBase()
	n, err := store.Load(strings.NewReader(`[
		{"name": "sea-level", "gravity": 9.81, "air_density": 1.225, "drag_coefficient": 0.5, "reference_area": 1.0}
	]`))
	if err != nil || n != 1 {
		t.Fatalf("Load = %d, %v; want 1, nil", n, err)
	}
	got, err := store.GetModel("sea-level")
	if err != nil {
		t.Fatalf("GetModel: %v", err)
	}
	if got != model.DefaultPhysicalModel() {
		t.Fatalf("model = %+v, want the default model", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := NewWithDefaults()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("m%d", i)
			_ = store.PutModel(name, model.DefaultPhysicalModel())
			_, _ = store.GetModel(DefaultModelName)
			_ = store.ListModels()
		}(i)
	}
	wg.Wait()
	if got := len(store.ListModels()); got != 17 {
		t.Fatalf("ListModels len = %d, want 17", got)
	}
}
