package generation

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/snapstudio-backend/internal/pricing"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
)

// PlanTasks expands a priced operation into one task per image, in the
// order the artifacts are returned.
func PlanTasks(opID uuid.UUID, accountID string, kind enums.OperationKind, params pricing.Parameters, quote pricing.Quote) []Task {
	scenes := []string{""}
	if kind == enums.OperationGenerate && !params.HasCustomPrompt() {
		scenes = params.SceneList()
	}
	variations := max(1, quote.Variations)

	tasks := make([]Task, 0, len(scenes)*variations)
	for _, scene := range scenes {
		for v := 1; v <= variations; v++ {
			tasks = append(tasks, Task{
				OperationID: opID,
				AccountID:   accountID,
				Kind:        kind,
				Index:       len(tasks),
				Scene:       scene,
				Variation:   v,
				Parameters:  params,
			})
		}
	}
	return tasks
}
