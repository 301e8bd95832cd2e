package idempotency

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

func ExampleManager_CheckAndMarkProcessed() {
	ctx := context.Background()
	manager, _ := NewManager(newMemoryStore(), 0)
	deduction := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	project := func() string {
		already, _ := manager.CheckAndMarkProcessed(ctx, "analytics", deduction)
		if already {
			return "skip redelivered deduction"
		}
		return "project deduction"
	}

	fmt.Println(project())
	fmt.Println(project())
	_ = manager.Release(ctx, "analytics", deduction)
	fmt.Println(project())
	// Output:
	// project deduction
	// skip redelivered deduction
	// project deduction
}
