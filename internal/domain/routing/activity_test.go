package routing

import (
	"testing"
	"time"

	"github.com/Strob0t/taskcrew/internal/domain/agent"
	"github.com/Strob0t/taskcrew/internal/domain/task"
)

func TestActivity(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	earlier := now.Add(-time.Hour)

	tasks := []task.Task{
		{ID: "1", Type: task.TypeWrite, Status: task.StatusRunning},
		{ID: "2", Type: task.TypeWrite, Status: task.StatusRunning},
		{ID: "3", Type: task.TypeResearch, Status: task.StatusFailed, CompletedAt: &earlier},
		{ID: "4", Type: task.TypeResearch, Status: task.StatusCompleted, CompletedAt: &now},
		{ID: "5", Type: task.TypeAnalyze, AssignedTo: agent.RoleSpy, Status: task.StatusFailed, CompletedAt: &now},
		{ID: "6", Type: task.TypeAnalyze, AssignedTo: "ghost", Status: task.StatusRunning},
	}

	got := Activity(tasks)
	if len(got) != 3 {
		t.Fatalf("expected 3 roles, got %d: %+v", len(got), got)
	}

	// Roster order: scout, spy, writer.
	if got[0].Role != agent.RoleScout || got[0].LastStatus != task.StatusCompleted || !got[0].LastFinishedAt.Equal(now) {
		t.Errorf("scout: %+v", got[0])
	}
	if got[1].Role != agent.RoleSpy || got[1].LastStatus != task.StatusFailed {
		t.Errorf("spy: %+v", got[1])
	}
	if got[2].Role != agent.RoleWriter || got[2].Running != 2 || got[2].LastFinishedAt != nil {
		t.Errorf("writer: %+v", got[2])
	}
}

func TestActivityEmpty(t *testing.T) {
	if got := Activity(nil); len(got) != 0 {
		t.Fatalf("expected no activity, got %+v", got)
	}
}
