package eventbus

import (
	"testing"

	"github.com/brightline-voice/dialogd/internal/dialoglog"
	"github.com/brightline-voice/dialogd/internal/dialogmodel"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversToMatchingSubscriberOnly(t *testing.T) {
	b := New(dialoglog.GetDefault())
	_, c1 := b.Subscribe("call-1")
	_, call2 := b.Subscribe("call-2")
	_, all := b.Subscribe("")

	b.Publish(dialogmodel.OperatorEvent{Type: dialogmodel.EventTranscript, CallID: "call-1"})

	ev := <-c1
	require.Equal(t, "call-1", ev.CallID)
	require.Equal(t, uint64(1), ev.Seq)

	ev = <-all
	require.Equal(t, "call-1", ev.CallID)

	select {
	case <-call2:
		t.Fatal("call-2 subscriber should not receive call-1 events")
	default:
	}
}

func TestBus_SequenceNumbersPerCall(t *testing.T) {
	b := New(dialoglog.GetDefault())
	_, ch := b.Subscribe("call-1")

	b.Publish(dialogmodel.OperatorEvent{Type: dialogmodel.EventTranscript, CallID: "call-1"})
	b.Publish(dialogmodel.OperatorEvent{Type: dialogmodel.EventTranscript, CallID: "call-1"})

	first := <-ch
	second := <-ch
	require.Equal(t, uint64(1), first.Seq)
	require.Equal(t, uint64(2), second.Seq)
}

func TestBus_DropsOldestAndNoticesLagWhenFull(t *testing.T) {
	b := New(dialoglog.GetDefault())
	_, ch := b.Subscribe("call-1")

	for i := 0; i < subscriberQueueDepth+2; i++ {
		b.Publish(dialogmodel.OperatorEvent{Type: dialogmodel.EventTranscript, CallID: "call-1"})
	}

	var sawLagged bool
	var dropped int
	for len(ch) > 0 {
		ev := <-ch
		if ev.Type == dialogmodel.EventLagged {
			sawLagged = true
			n, _ := ev.Data["dropped"].(int)
			dropped = n
		}
	}
	require.True(t, sawLagged)
	require.Greater(t, dropped, 0)
}

func TestBus_CommandRoutesToRegisteredHandler(t *testing.T) {
	b := New(dialoglog.GetDefault())
	var got dialogmodel.OperatorVerdict
	b.RegisterVerdictHandler("call-1", func(v dialogmodel.OperatorVerdict) { got = v })

	err := b.Command("call-1", "booking-1", dialogmodel.VerdictApprove)
	require.NoError(t, err)
	require.Equal(t, dialogmodel.VerdictApprove, got)
}

func TestBus_CommandUnknownCall(t *testing.T) {
	b := New(dialoglog.GetDefault())
	err := b.Command("ghost", "booking-1", dialogmodel.VerdictApprove)
	require.ErrorIs(t, err, ErrUnknownCall)
}

func TestBus_UnregisterMakesCommandUnknown(t *testing.T) {
	b := New(dialoglog.GetDefault())
	b.RegisterVerdictHandler("call-1", func(dialogmodel.OperatorVerdict) {})
	b.UnregisterVerdictHandler("call-1")

	err := b.Command("call-1", "booking-1", dialogmodel.VerdictApprove)
	require.ErrorIs(t, err, ErrUnknownCall)
}
