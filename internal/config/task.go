package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/Epistemic-Technology/docextract/models"
	"github.com/pelletier/go-toml/v2"
)

// taskFile mirrors the on-disk TOML layout of a task definition.
type taskFile struct {
	PromptDescription string        `toml:"prompt_description"`
	Examples          []exampleFile `toml:"examples"`
}

type exampleFile struct {
	Text        string           `toml:"text"`
	Extractions []extractionFile `toml:"extractions"`
}

type extractionFile struct {
	Class      string            `toml:"extraction_class"`
	Text       string            `toml:"extraction_text"`
	Attributes map[string]string `toml:"attributes"`
}

// LoadTask reads a prompt description and its worked examples from a TOML file.
func LoadTask(path string) (*models.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Configuration("load task", err)
	}
	return ParseTask(data)
}

// ParseTask decodes and validates a TOML task definition.
func ParseTask(data []byte) (*models.Task, error) {
	var tf taskFile
	if err := toml.Unmarshal(data, &tf); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, errs.Configuration("parse task", fmt.Errorf("line %d column %d: %w", row, col, err))
		}
		return nil, errs.Configuration("parse task", err)
	}

	task := &models.Task{PromptDescription: strings.TrimSpace(tf.PromptDescription)}
	for _, ex := range tf.Examples {
		example := models.ExtractionExample{Text: ex.Text}
		for _, e := range ex.Extractions {
			example.Extractions = append(example.Extractions, models.Extraction{
				Class:      e.Class,
				Text:       e.Text,
				Attributes: e.Attributes,
			})
		}
		task.Examples = append(task.Examples, example)
	}
	if err := ValidateTask(task); err != nil {
		return nil, err
	}
	return task, nil
}

// ValidateTask checks the prompt is present and every example record is labeled.
func ValidateTask(task *models.Task) error {
	if task == nil || task.PromptDescription == "" {
		return errs.Configurationf("task", "prompt description is required")
	}
	for i, ex := range task.Examples {
		if strings.TrimSpace(ex.Text) == "" {
			return errs.Configurationf("task", "example %d has no text", i)
		}
		for j, e := range ex.Extractions {
			if strings.TrimSpace(e.Class) == "" {
				return errs.Configurationf("task", "example %d extraction %d has an empty class", i, j)
			}
		}
	}
	return nil
}
