package routing

import (
	"github.com/Strob0t/taskcrew/internal/domain/agent"
	"github.com/Strob0t/taskcrew/internal/domain/task"
)

// Activity folds tasks into per-role activity, in roster order. Running tasks
// are counted; for terminal tasks only the most recently finished one per
// role is kept. Tasks that do not route to a role are skipped.
func Activity(tasks []task.Task) []task.RoleActivity {
	byRole := make(map[agent.Role]*task.RoleActivity)
	for i := range tasks {
		t := &tasks[i]
		role, err := Resolve(t)
		if err != nil {
			continue
		}
		a, ok := byRole[role]
		if !ok {
			a = &task.RoleActivity{Role: role}
			byRole[role] = a
		}
		switch {
		case t.Status == task.StatusRunning:
			a.Running++
		case t.Status.IsTerminal() && t.CompletedAt != nil:
			if a.LastFinishedAt == nil || t.CompletedAt.After(*a.LastFinishedAt) {
				finished := *t.CompletedAt
				a.LastFinishedAt = &finished
				a.LastStatus = t.Status
			}
		}
	}

	out := make([]task.RoleActivity, 0, len(byRole))
	for _, r := range agent.Roster {
		if a, ok := byRole[r]; ok {
			out = append(out, *a)
		}
	}
	return out
}
