package event

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBusDeliversToWildcardAndRunChannel(t *testing.T) {
	bus := NewBus(zap.NewNop().Sugar())

	var all, mine, other []Type
	bus.Subscribe("*", func(evt *Event) { all = append(all, evt.Type) })
	bus.Subscribe(RunChannel("run-1"), func(evt *Event) { mine = append(mine, evt.Type) })
	bus.Subscribe(RunChannel("run-2"), func(evt *Event) { other = append(other, evt.Type) })

	bus.Publish(&Event{RunID: "run-1", Type: TypeNodeStart})
	bus.Publish(&Event{RunID: "run-1", Type: TypeNodeComplete})
	bus.Publish(&Event{RunID: "run-2", Type: TypeDone})

	require.Equal(t, []Type{TypeNodeStart, TypeNodeComplete, TypeDone}, all)
	require.Equal(t, []Type{TypeNodeStart, TypeNodeComplete}, mine)
	require.Equal(t, []Type{TypeDone}, other)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zap.NewNop().Sugar())

	var got int
	bus.Subscribe(RunChannel("run-1"), func(evt *Event) { got++ })

	bus.Publish(&Event{RunID: "run-1", Type: TypeNodeStart})
	bus.Unsubscribe(RunChannel("run-1"))
	bus.Publish(&Event{RunID: "run-1", Type: TypeNodeComplete})

	require.Equal(t, 1, got)
}
