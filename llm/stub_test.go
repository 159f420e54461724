package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/taskqueen/model"
	"github.com/c360studio/taskqueen/tdd"
)

func TestStubExecutorGreenFailuresScript(t *testing.T) {
	stub := NewStubExecutor()
	stub.FailGreenNTimes("t1", 2)

	task := &model.TaskNode{ID: "t1", Name: "demo", AcceptanceTests: []*model.AcceptanceTest{{ID: "at1", Name: "at1"}}}
	req := PhaseRequest{Task: task, State: &tdd.State{Phase: model.PhaseRunTestGreen, AcceptanceTests: task.AcceptanceTests}}

	resp, err := stub.ExecutePhase(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.UnitGreenResult.Passed)

	resp, err = stub.ExecutePhase(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.UnitGreenResult.Passed)

	resp, err = stub.ExecutePhase(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.UnitGreenResult.Passed)
	assert.True(t, resp.AcceptanceGreenResults["at1"].Passed)
}

func TestStubExecutorAlwaysFailGreen(t *testing.T) {
	stub := NewStubExecutor()
	stub.AlwaysFailGreen("t2")
	task := &model.TaskNode{ID: "t2"}
	req := PhaseRequest{Task: task, State: &tdd.State{Phase: model.PhaseRunTestGreen}}

	for i := 0; i < 5; i++ {
		resp, err := stub.ExecutePhase(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, resp.UnitGreenResult.Passed)
	}
}

func TestStubExecutorWriteTestAndWriteCode(t *testing.T) {
	stub := NewStubExecutor()
	task := &model.TaskNode{ID: "t3", Name: "demo"}

	resp, err := stub.ExecutePhase(context.Background(), PhaseRequest{Task: task, State: &tdd.State{Phase: model.PhaseWriteTest}})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.TestCode)

	resp, err = stub.ExecutePhase(context.Background(), PhaseRequest{Task: task, State: &tdd.State{Phase: model.PhaseWriteCode}})
	require.NoError(t, err)
	require.Len(t, resp.Artifacts, 1)
	assert.Equal(t, model.ChangeCreate, resp.Artifacts[0].ChangeType)
}
