package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type namedJob struct {
	name string
}

func (j *namedJob) Name() string              { return j.name }
func (j *namedJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	stale := &namedJob{name: "stale-operation-release"}
	export := &namedJob{name: "usage-export"}
	retention := &namedJob{name: "outbox-retention"}
	registry := NewRegistry(stale, nil, export)
	registry.Register(retention)

	jobs := registry.Jobs()
	require.Len(t, jobs, 3)
	require.Same(t, stale, jobs[0])
	require.Same(t, export, jobs[1])
	require.Same(t, retention, jobs[2])

	jobs[0] = nil
	require.NotNil(t, registry.Jobs()[0], "internal slice leaked")
}

func TestRegistryReplacesJobWithSameName(t *testing.T) {
	first := &namedJob{name: "stale-operation-release"}
	second := &namedJob{name: "stale-operation-release"}
	export := &namedJob{name: "usage-export"}
	registry := NewRegistry(first, export, second)

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	require.Same(t, second, jobs[0])
	require.Same(t, export, jobs[1])
}
