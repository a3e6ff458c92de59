// Package planner loads pre-written plans from YAML or JSON files. It
// stands in for an external planner service.
package planner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"browser-observer/internal/application/port/output"
	"browser-observer/internal/domain/entity"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var _ output.Planner = (*FilePlanner)(nil)

var ErrUnknownTask = errors.New("no plan for task")

// File is the on-disk layout. A file holds either a list under plans or a
// single plan at the top level.
type File struct {
	App   string            `yaml:"app" json:"app"`
	Plans []entity.Plan     `yaml:"plans" json:"plans"`
	Task  string            `yaml:"task" json:"task"`
	Steps []entity.PlanStep `yaml:"steps" json:"steps"`
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return Parse(data, strings.ToLower(filepath.Ext(path)))
}

// Parse decodes JSON when ext is ".json" and YAML otherwise.
func Parse(data []byte, ext string) (*File, error) {
	var f File
	if ext == ".json" {
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse plan json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse plan yaml: %w", err)
		}
	}

	if f.Task != "" || len(f.Steps) > 0 {
		f.Plans = append([]entity.Plan{{Task: f.Task, Steps: f.Steps}}, f.Plans...)
		f.Task, f.Steps = "", nil
	}
	if len(f.Plans) == 0 {
		return nil, errors.New("plan file contains no plans")
	}
	for i := range f.Plans {
		for j := range f.Plans[i].Steps {
			step := &f.Plans[i].Steps[j]
			step.Action = entity.ActionType(strings.ToLower(strings.TrimSpace(string(step.Action))))
		}
	}
	return &f, nil
}

// FilePlanner answers plan requests from loaded files, keyed by task.
type FilePlanner struct {
	plans map[string]entity.Plan
	order []string
}

func NewFilePlanner(files ...*File) *FilePlanner {
	p := &FilePlanner{plans: make(map[string]entity.Plan)}
	for _, f := range files {
		for _, plan := range f.Plans {
			if _, ok := p.plans[plan.Task]; !ok {
				p.order = append(p.order, plan.Task)
			}
			p.plans[plan.Task] = plan
		}
	}
	return p
}

func (p *FilePlanner) Plan(_ context.Context, task string) (*entity.Plan, error) {
	plan, ok := p.plans[task]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}
	plan.Steps = append([]entity.PlanStep(nil), plan.Steps...)
	return &plan, nil
}

// Tasks lists known tasks in the order they were first loaded.
func (p *FilePlanner) Tasks() []string {
	return append([]string(nil), p.order...)
}
