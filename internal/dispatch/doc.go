// Package dispatch drains a FIFO of outbound chat messages into a live room.
//
// A Dispatcher owns one Queue. Callers push text with Notify (from any
// goroutine); Start launches a single worker loop that pops the oldest
// message, waits the room's per-message delay, hands the text to a Deliverer
// and emits a "message_sent" Outcome to a Sink. The loop then waits the poll
// interval and repeats until Stop is called.
//
// # Concurrency
//
// The queue and its running flag sit behind one mutex. The mutex is never held
// across a wait or a delivery call, so Notify/Stop stay fast while a slow send
// is in flight. Only one worker loop is active per Dispatcher: Start returns
// ErrAlreadyRunning while the flag is set, and a loop started right after a
// Stop does not dequeue until the previous loop has exited.
//
// # Cancellation
//
// Stop is cooperative and non-blocking. Waits (delay and poll) wake early; an
// in-flight Deliver call is allowed to finish. A message whose delay was cut
// short by Stop is dropped and reported as a failed Outcome.
package dispatch
