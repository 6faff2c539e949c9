package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"SpotAgent/internal/domain/models"
)

// JSONFile persists one value as indented JSON. Writes go through a temp
// file and rename so a crash never leaves a half-written record.
type JSONFile[T any] struct {
	path string
	mu   sync.Mutex
}

func NewJSONFile[T any](path string) *JSONFile[T] {
	return &JSONFile[T]{path: path}
}

func (f *JSONFile[T]) Path() string { return f.path }

// Load returns def when the file does not exist or is empty.
func (f *JSONFile[T]) Load(def T) (T, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return def, false, nil
		}
		return def, false, fmt.Errorf("read %s: %w", f.path, err)
	}
	if len(data) == 0 {
		return def, false, nil
	}
	v := def
	if err := json.Unmarshal(data, &v); err != nil {
		return def, false, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return v, true, nil
}

func (f *JSONFile[T]) Save(v T) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// Files groups the three persisted records.
type Files struct {
	Runtime  *JSONFile[models.RuntimeConfig]
	Weights  *JSONFile[models.WeightsRecord]
	Learning *JSONFile[[]models.LearningEvent]
}

func NewFiles(runtimePath, weightsPath, learningPath string) *Files {
	return &Files{
		Runtime:  NewJSONFile[models.RuntimeConfig](runtimePath),
		Weights:  NewJSONFile[models.WeightsRecord](weightsPath),
		Learning: NewJSONFile[[]models.LearningEvent](learningPath),
	}
}

// SaveLearning writes at most the newest MaxLearningEvents.
func (f *Files) SaveLearning(events []models.LearningEvent) error {
	if n := len(events); n > models.MaxLearningEvents {
		events = events[n-models.MaxLearningEvents:]
	}
	return f.Learning.Save(events)
}
