// Package plan defines the decomposition a strategist returns for a parent task.
package plan

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/taskcrew/internal/domain/agent"
	"github.com/Strob0t/taskcrew/internal/domain/task"
)

// Item describes one child task to spawn under a parent.
type Item struct {
	Type        task.Type       `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	AssignTo    agent.Role      `json:"assignTo,omitempty"`
	Priority    int             `json:"priority,omitempty"`
	Input       json.RawMessage `json:"input,omitempty"`
	Context     json.RawMessage `json:"context,omitempty"`
}

// Phase groups items, e.g. by campaign week.
type Phase struct {
	Week  int    `json:"week"`
	Focus string `json:"focus,omitempty"`
	Tasks []Item `json:"tasks"`
}

// Plan is the strategist's output. Either a flat list of subtasks or a list of
// phases may be present; Items flattens both.
type Plan struct {
	Name       string  `json:"name,omitempty"`
	CampaignID string  `json:"campaignId,omitempty"`
	Subtasks   []Item  `json:"subtasks,omitempty"`
	Phases     []Phase `json:"phases,omitempty"`
}

// Len returns the number of items across subtasks and phases.
func (p *Plan) Len() int {
	n := len(p.Subtasks)
	for _, ph := range p.Phases {
		n += len(ph.Tasks)
	}
	return n
}

// Parse extracts a plan from a worker output. The plan may sit at the top level
// or be nested under "plan". ok is false when the output carries no items.
func Parse(output json.RawMessage) (p Plan, ok bool, err error) {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Plan{}, false, nil
	}

	var nested struct {
		Plan *Plan `json:"plan"`
	}
	if err := json.Unmarshal(trimmed, &nested); err == nil && nested.Plan != nil && nested.Plan.Len() > 0 {
		return *nested.Plan, true, nil
	}

	if err := json.Unmarshal(trimmed, &p); err != nil {
		return Plan{}, false, fmt.Errorf("decode plan: %w", err)
	}
	return p, p.Len() > 0, nil
}

// Items flattens the plan into spawnable items. Phase items get the phase week
// and the plan's campaign id merged into their input, as the campaign
// builder expects.
func (p *Plan) Items() ([]Item, error) {
	items := make([]Item, 0, p.Len())
	for _, it := range p.Subtasks {
		it, err := withInput(it, p.CampaignID, 0)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	for _, ph := range p.Phases {
		for _, it := range ph.Tasks {
			it, err := withInput(it, p.CampaignID, ph.Week)
			if err != nil {
				return nil, err
			}
			items = append(items, it)
		}
	}
	return items, nil
}

func withInput(it Item, campaignID string, week int) (Item, error) {
	fields := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(it.Input)) > 0 {
		if err := json.Unmarshal(it.Input, &fields); err != nil {
			return it, fmt.Errorf("item %q: %w", it.Title, ErrItemNotObject)
		}
		if fields == nil {
			fields = map[string]json.RawMessage{}
		}
	}
	set := func(key string, v any) {
		if _, exists := fields[key]; exists {
			return
		}
		raw, err := json.Marshal(v)
		if err == nil {
			fields[key] = raw
		}
	}
	if campaignID != "" {
		set("campaignId", campaignID)
	}
	if week > 0 {
		set("phase", week)
	}
	if len(it.Context) > 0 {
		if _, exists := fields["context"]; !exists {
			fields["context"] = it.Context
		}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return it, fmt.Errorf("item %q: encode input: %w", it.Title, err)
	}
	it.Input = raw
	return it, nil
}
