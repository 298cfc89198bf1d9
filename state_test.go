package surge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateMachineRejectsDisallowedTransition(t *testing.T) {
	sm := NewStateMachine()
	_, err := sm.Transition(StateConnected, nil)
	require.Error(t, err)

	cur, gen := sm.Current()
	require.Equal(t, StateInitialized, cur)
	require.Equal(t, uint64(0), gen)
}

func TestStateMachineIncrementsGenerationOnConnected(t *testing.T) {
	sm := NewStateMachine()
	_, err := sm.Transition(StateConnecting, nil)
	require.NoError(t, err)

	_, err = sm.Transition(StateConnected, nil)
	require.NoError(t, err)

	_, gen := sm.Current()
	require.Equal(t, uint64(1), gen)

	_, err = sm.Transition(StateDisconnected, nil)
	require.NoError(t, err)
	_, err = sm.Transition(StateConnecting, nil)
	require.NoError(t, err)
	_, err = sm.Transition(StateConnected, nil)
	require.NoError(t, err)

	_, gen = sm.Current()
	require.Equal(t, uint64(2), gen)
}

func TestAwaitStateSurvivesNonTerminalDetour(t *testing.T) {
	sm := NewStateMachine()
	sm.Transition(StateConnecting, nil)

	wait := sm.AwaitState(StateConnected)

	_, err := sm.Transition(StateDisconnected, NewError(ConnectionError, "dns failure"))
	require.NoError(t, err)

	select {
	case <-wait:
		t.Fatal("waiter resolved on a non-terminal detour")
	default:
	}

	_, err = sm.Transition(StateConnecting, nil)
	require.NoError(t, err)
	_, err = sm.Transition(StateConnected, nil)
	require.NoError(t, err)

	event := <-wait
	require.Equal(t, StateConnected, event.Current)
}

func TestAwaitStateRejectsOnTerminalDetour(t *testing.T) {
	sm := NewStateMachine()
	sm.Transition(StateConnecting, nil)

	wait := sm.AwaitState(StateConnected)

	_, err := sm.Transition(StateFailed, NewError(AuthFailure, "bad key"))
	require.NoError(t, err)

	event := <-wait
	require.Equal(t, StateFailed, event.Current)
	require.NotNil(t, event.Error)
}

func TestAwaitStateResolvesImmediatelyIfAlreadyThere(t *testing.T) {
	sm := NewStateMachine()
	wait := sm.AwaitState(StateInitialized)
	event := <-wait
	require.Equal(t, StateInitialized, event.Current)
}

func TestCanTransitionMatchesTable(t *testing.T) {
	require.True(t, CanTransition(StateInitialized, StateConnecting))
	require.False(t, CanTransition(StateInitialized, StateConnected))
	require.True(t, CanTransition(StateClosed, StateConnecting))
	require.False(t, CanTransition(StateClosed, StateConnected))
}

func TestStateMachineListenersFireInOrder(t *testing.T) {
	sm := NewStateMachine()
	var order []string
	sm.OnChange(func(e StateChangeEvent) { order = append(order, "first:"+e.Current.String()) })
	sm.OnChange(func(e StateChangeEvent) { order = append(order, "second:"+e.Current.String()) })

	sm.Transition(StateConnecting, nil)

	require.Equal(t, []string{"first:connecting", "second:connecting"}, order)
}
