package dispatch

import "roomcast/internal/eventbus"

// BusSink publishes outcomes on bus as EventMessageSent events.
func BusSink(bus eventbus.Bus) Sink {
	return SinkFunc(func(o Outcome) error {
		_, err := bus.Publish(eventbus.Event{Type: EventMessageSent, Time: o.At, Data: o})
		return err
	})
}
